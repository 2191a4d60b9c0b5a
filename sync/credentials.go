// ABOUTME: Credential manager handing out valid provider access tokens
// ABOUTME: Refreshes on demand inside the skew window and deactivates connections whose refresh fails
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
)

var (
	// ErrNotConnected means the user has no active provider connection.
	ErrNotConnected = errors.New("calendar provider not connected")
	// ErrReauthRequired means the stored grant no longer works and the user must reconnect.
	ErrReauthRequired = errors.New("calendar provider reconnect required")
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// ConnectionStore is the subset of the repository the credential manager needs.
type ConnectionStore interface {
	GetActiveConnection(ctx context.Context, userID, provider string) (*models.CalendarConnection, error)
	UpdateConnectionToken(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiry time.Time) error
	DeactivateConnection(ctx context.Context, id uuid.UUID) error
}

type CredentialManager struct {
	store     ConnectionStore
	refresher TokenRefresher
	skew      time.Duration
	logger    *log.Logger
	metrics   *Metrics
	now       func() time.Time
}

func NewCredentialManager(store ConnectionStore, refresher TokenRefresher, skew time.Duration, logger *log.Logger, metrics *Metrics) *CredentialManager {
	if logger == nil {
		logger = discardLogger()
	}
	return &CredentialManager{
		store:     store,
		refresher: refresher,
		skew:      skew,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// ValidAccessToken returns an access token that stays valid for at least the skew window.
// Returns ErrNotConnected or ErrReauthRequired for the expected credential states;
// any other error comes from the local store.
func (m *CredentialManager) ValidAccessToken(ctx context.Context, userID, provider string) (string, error) {
	conn, err := m.store.GetActiveConnection(ctx, userID, provider)
	if errors.Is(err, db.ErrConnectionNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("failed to load calendar connection: %w", err)
	}

	if conn.AccessToken != "" && conn.TokenExpiry.After(m.now().Add(m.skew)) {
		return conn.AccessToken, nil
	}

	token, err := m.refresher.RefreshToken(ctx, conn.RefreshToken)
	if err == nil && token.AccessToken == "" {
		err = fmt.Errorf("refresh response missing access token")
	}
	if err != nil {
		m.metrics.TokenRefresh(false)
		m.logger.Warn("token refresh failed, deactivating connection",
			"user", userID, "provider", provider, "connection", conn.ID, "err", err)

		// The caller may have given up on the refresh; the deactivation must still land.
		if derr := m.store.DeactivateConnection(context.WithoutCancel(ctx), conn.ID); derr != nil {
			return "", fmt.Errorf("failed to deactivate calendar connection: %w", derr)
		}
		return "", ErrReauthRequired
	}

	if token.Expiry.IsZero() {
		token.Expiry = m.now().Add(defaultTokenLifetime)
		m.logger.Warn("refresh response had no expiry, assuming default lifetime",
			"user", userID, "provider", provider, "lifetime", defaultTokenLifetime)
	}

	if err := m.store.UpdateConnectionToken(context.WithoutCancel(ctx), conn.ID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	m.metrics.TokenRefresh(true)
	m.logger.Debug("refreshed access token", "user", userID, "provider", provider, "expiry", token.Expiry)

	return token.AccessToken, nil
}
