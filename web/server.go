// ABOUTME: Read-only HTTP server for calendar subscriptions
// ABOUTME: Serves transaction milestones as .ics feeds plus Prometheus metrics
package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

// feedLimit caps how many transactions the merged feed includes.
const feedLimit = 500

type Server struct {
	db       *sql.DB
	repo     *db.CalendarRepository
	userID   string
	gatherer prometheus.Gatherer
	logger   *log.Logger
}

// NewServer serves feeds for the engine's configured user. A nil gatherer disables /metrics.
func NewServer(database *sql.DB, engine *sync.Engine, gatherer prometheus.Gatherer) *Server {
	return &Server{
		db:       database,
		repo:     engine.Repo,
		userID:   engine.Config.UserID,
		gatherer: gatherer,
		logger:   engine.Logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendar.ics", s.handleFeed)
	mux.HandleFunc("GET /transactions/{id}/calendar.ics", s.handleTransactionFeed)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "ok")
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start blocks serving on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting feed server", "url", "http://"+addr+"/calendar.ics")
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	transactions, err := db.ListTransactions(s.db, s.userID, feedLimit)
	if err != nil {
		s.serverError(w, err)
		return
	}

	eventsByTx := make(map[uuid.UUID][]models.CalendarEvent, len(transactions))
	for _, tx := range transactions {
		events, err := s.repo.ListTransactionEvents(ctx, tx.ID)
		if err != nil {
			s.serverError(w, err)
			return
		}
		eventsByTx[tx.ID] = events
	}

	s.writeCalendar(w, func() error {
		return sync.BuildFeed("Closings", transactions, eventsByTx).SerializeTo(w)
	})
}

func (s *Server) handleTransactionFeed(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid transaction ID", http.StatusBadRequest)
		return
	}

	tx, err := db.GetTransaction(s.db, id)
	if errors.Is(err, db.ErrTransactionNotFound) || (err == nil && tx.UserID != s.userID) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}

	events, err := s.repo.ListTransactionEvents(r.Context(), tx.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	s.writeCalendar(w, func() error {
		return sync.ExportICS(w, tx, events)
	})
}

func (s *Server) writeCalendar(w http.ResponseWriter, write func() error) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	if err := write(); err != nil {
		// Headers are already sent; nothing left but to log.
		s.logger.Error("failed to write calendar feed", "err", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("feed request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
