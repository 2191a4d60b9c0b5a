// ABOUTME: Wires the repository, credential manager, Google provider and orchestrator together
// ABOUTME: The single entry point the CLI and MCP layers call after writing a transaction
package sync

import (
	"database/sql"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/harperreed/closingcal/db"
)

type Engine struct {
	*Orchestrator

	Repo        *db.CalendarRepository
	Credentials *CredentialManager
	Provider    *GoogleProvider
	OAuth       *oauth2.Config
	Config      *Config
	Location    *time.Location
	Logger      *log.Logger
	Metrics     *Metrics
}

// NewEngine builds a sync engine backed by database. Extra provider options are
// passed to the Google provider, which tests use to point it at a fake server.
func NewEngine(database *sql.DB, cfg *Config, logger *log.Logger, metrics *Metrics, opts ...GoogleProviderOption) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = discardLogger()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	repo := db.NewCalendarRepository(database)
	oauthCfg := NewOAuthConfig(cfg)
	provider := NewGoogleProvider(oauthCfg, cfg.CalendarID, loc, cfg.ProviderTimeout.Duration, opts...)
	credentials := NewCredentialManager(repo, provider, cfg.RefreshSkew.Duration, logger, metrics)

	orchestrator := NewOrchestrator(Options{
		Events:       repo,
		Status:       repo,
		Tokens:       credentials,
		Provider:     provider,
		Materializer: NewMaterializer(loc),
		Logger:       logger,
		Metrics:      metrics,
	})

	return &Engine{
		Orchestrator: orchestrator,
		Repo:         repo,
		Credentials:  credentials,
		Provider:     provider,
		OAuth:        oauthCfg,
		Config:       cfg,
		Location:     loc,
		Logger:       logger,
		Metrics:      metrics,
	}, nil
}
