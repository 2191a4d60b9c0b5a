// ABOUTME: Sync orchestrator keeping a transaction's local and remote calendar events in step with its milestones
// ABOUTME: Local writes are authoritative; provider pushes and deletes are best-effort and never roll back
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
)

// Warnings surfaced to callers. At most one is set per result.
const (
	WarningReconnectCalendar = "reconnect calendar"
	WarningPushFailed        = "some events could not be added to your calendar provider"
	WarningDeleteFailed      = "some events could not be removed from your calendar provider"
)

// EventStore persists local calendar events.
type EventStore interface {
	CreateCalendarEvent(ctx context.Context, event *models.CalendarEvent) error
	SetPushOutcome(ctx context.Context, id uuid.UUID, outcome models.PushOutcome) error
	ListTransactionEvents(ctx context.Context, transactionID uuid.UUID) ([]models.CalendarEvent, error)
	DeleteTransactionEvents(ctx context.Context, transactionID uuid.UUID) (int, error)
}

// StatusStore records per-transaction sync status.
type StatusStore interface {
	UpdateTransactionSyncStatus(ctx context.Context, transactionID uuid.UUID, status string, errorMsg *string) error
	RecordTransactionSync(ctx context.Context, transactionID uuid.UUID, eventsCreated, pushFailures int, warning string) error
}

// AccessTokenSource hands out provider tokens. Implemented by CredentialManager.
type AccessTokenSource interface {
	ValidAccessToken(ctx context.Context, userID, provider string) (string, error)
}

type Options struct {
	Events       EventStore
	Status       StatusStore
	Tokens       AccessTokenSource
	Provider     Provider
	ProviderName string
	Materializer *Materializer
	Logger       *log.Logger
	Metrics      *Metrics
}

// SyncResult summarizes one sync, resync or delete call.
type SyncResult struct {
	RunID          string `json:"run_id"`
	EventsCreated  int    `json:"events_created"`
	EventsSkipped  int    `json:"events_skipped,omitempty"`
	EventsPushed   int    `json:"events_pushed"`
	PushFailures   int    `json:"push_failures,omitempty"`
	EventsDeleted  int    `json:"events_deleted,omitempty"`
	DeleteFailures int    `json:"delete_failures,omitempty"`
	ProviderState  string `json:"provider_state,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

// Summary is the user-facing line for a sync. Provider errors never appear here.
func (r *SyncResult) Summary() string {
	var b strings.Builder
	noun := "events"
	if r.EventsCreated == 1 {
		noun = "event"
	}
	fmt.Fprintf(&b, "%d %s added to your calendar", r.EventsCreated, noun)
	if r.ProviderState == models.ProviderStateNotConnected && r.EventsCreated > 0 {
		b.WriteString(" (calendar provider not connected)")
	}
	if r.Warning != "" {
		b.WriteString("; ")
		b.WriteString(r.Warning)
	}
	return b.String()
}

// Orchestrator runs each call sequentially on the caller's goroutine.
// Concurrent calls for the same transaction are not serialized.
type Orchestrator struct {
	events       EventStore
	status       StatusStore
	tokens       AccessTokenSource
	provider     Provider
	providerName string
	materializer *Materializer
	logger       *log.Logger
	metrics      *Metrics
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		events:       opts.Events,
		status:       opts.Status,
		tokens:       opts.Tokens,
		provider:     opts.Provider,
		providerName: opts.ProviderName,
		materializer: opts.Materializer,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if o.providerName == "" {
		o.providerName = models.ProviderGoogle
	}
	if o.materializer == nil {
		o.materializer = NewMaterializer(time.UTC)
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}
	return o
}

func newRunID() string {
	return ulid.Make().String()
}

// providerToken resolves the access token and the provider state it implies.
// ok is false when the provider must be skipped.
func (o *Orchestrator) providerToken(ctx context.Context, userID string) (token, state string, ok bool, err error) {
	if o.tokens == nil || o.provider == nil {
		return "", models.ProviderStateNotConnected, false, nil
	}

	token, err = o.tokens.ValidAccessToken(ctx, userID, o.providerName)
	switch {
	case err == nil:
		return token, models.ProviderStateConnected, true, nil
	case errors.Is(err, ErrNotConnected):
		return "", models.ProviderStateNotConnected, false, nil
	case errors.Is(err, ErrReauthRequired):
		return "", models.ProviderStateReauthRequired, false, nil
	default:
		return "", "", false, err
	}
}

// SyncTransaction creates a local event for every milestone of tx and pushes the
// new ones to the provider when a valid token is available.
func (o *Orchestrator) SyncTransaction(ctx context.Context, tx *models.Transaction) (*SyncResult, error) {
	result := &SyncResult{RunID: newRunID()}
	logger := o.logger.With("run", result.RunID, "transaction", tx.ID)
	started := time.Now()
	defer func() { o.metrics.ObserveSync(time.Since(started)) }()

	milestones := ExtractMilestones(tx)
	if len(milestones) == 0 {
		logger.Debug("no milestones, nothing to sync")
		if err := o.recordSync(ctx, tx.ID, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := o.setStatus(ctx, tx.ID, models.SyncStatusSyncing, nil); err != nil {
		return nil, err
	}

	var created []*models.CalendarEvent
	for _, milestone := range milestones {
		event := o.materializer.Materialize(milestone, tx.UserID, tx.ID)
		if err := o.events.CreateCalendarEvent(ctx, event); err != nil {
			if errors.Is(err, db.ErrDuplicateEvent) {
				logger.Info("event already exists, skipping", "category", milestone.Category)
				result.EventsSkipped++
				continue
			}
			o.failSync(ctx, tx.ID, err)
			return nil, fmt.Errorf("failed to create calendar event for %s: %w", milestone.Category, err)
		}
		created = append(created, event)
	}
	result.EventsCreated = len(created)
	o.metrics.EventsCreated(len(created))

	token, state, ok, err := o.providerToken(ctx, tx.UserID)
	if err != nil {
		o.failSync(ctx, tx.ID, err)
		return nil, err
	}
	result.ProviderState = state

	switch {
	case state == models.ProviderStateReauthRequired:
		result.Warning = WarningReconnectCalendar
		logger.Warn("calendar connection needs reauthorization, events kept local only", "events", len(created))
	case !ok:
		logger.Debug("no calendar connection, events kept local only", "events", len(created))
	default:
		for _, event := range created {
			o.pushEvent(ctx, logger, token, event, result)
		}
		if result.PushFailures > 0 {
			result.Warning = WarningPushFailed
		}
	}

	if err := o.recordSync(ctx, tx.ID, result); err != nil {
		return nil, err
	}

	logger.Info("synced transaction calendar",
		"created", result.EventsCreated, "pushed", result.EventsPushed, "failed", result.PushFailures, "provider", result.ProviderState)

	return result, nil
}

// pushEvent creates one remote event and stores the outcome. Provider failures are
// recorded on the event; only a local-store failure is logged as an error.
func (o *Orchestrator) pushEvent(ctx context.Context, logger *log.Logger, token string, event *models.CalendarEvent, result *SyncResult) {
	remoteID, err := o.provider.CreateEvent(ctx, token, event)

	outcome := models.Synced(remoteID)
	if err != nil {
		outcome = models.Failed(pushFailureReason(err))
		result.PushFailures++
		o.metrics.ProviderPush(false)
		logger.Warn("provider push failed", "category", event.EventType, "class", describeProviderError(err), "err", err)
	} else {
		result.EventsPushed++
		o.metrics.ProviderPush(true)
	}

	// The context may have expired during the push; the local write must still land.
	storeCtx := context.WithoutCancel(ctx)
	if serr := o.events.SetPushOutcome(storeCtx, event.ID, outcome); serr != nil {
		logger.Error("failed to record push outcome", "category", event.EventType, "remote_id", remoteID, "err", serr)
		return
	}
	event.PushStatus = outcome.Status
	event.PushError = outcome.Reason
	if outcome.Status == models.PushStatusSynced {
		event.RemoteEventID = &remoteID
	}
}

// ResyncTransaction removes every event of tx and recreates them from its current dates.
func (o *Orchestrator) ResyncTransaction(ctx context.Context, tx *models.Transaction) (*SyncResult, error) {
	deleted, err := o.DeleteTransactionEvents(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	result, err := o.SyncTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	result.EventsDeleted = deleted.EventsDeleted
	result.DeleteFailures = deleted.DeleteFailures
	if result.Warning == "" {
		result.Warning = deleted.Warning
	}
	return result, nil
}

// DeleteTransactionEvents deletes remote copies where possible, then always deletes
// the local events. Remote events whose delete fails are left behind and logged.
func (o *Orchestrator) DeleteTransactionEvents(ctx context.Context, transactionID uuid.UUID) (*SyncResult, error) {
	result := &SyncResult{RunID: newRunID()}
	logger := o.logger.With("run", result.RunID, "transaction", transactionID)

	events, err := o.events.ListTransactionEvents(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}

	var (
		token    string
		resolved bool
		usable   bool
	)
	for _, event := range events {
		if event.RemoteEventID == nil {
			continue
		}

		if !resolved {
			var state string
			token, state, usable, err = o.providerToken(ctx, event.UserID)
			if err != nil {
				return nil, err
			}
			result.ProviderState = state
			resolved = true
			if state == models.ProviderStateReauthRequired {
				result.Warning = WarningReconnectCalendar
			}
		}
		if !usable {
			logger.Warn("leaving remote event in place, provider unavailable", "category", event.EventType, "remote_id", *event.RemoteEventID)
			result.DeleteFailures++
			o.metrics.ProviderDelete(false)
			continue
		}

		if err := o.provider.DeleteEvent(ctx, token, *event.RemoteEventID); err != nil {
			result.DeleteFailures++
			o.metrics.ProviderDelete(false)
			logger.Warn("provider delete failed, remote event orphaned",
				"category", event.EventType, "remote_id", *event.RemoteEventID, "class", describeProviderError(err), "err", err)
			continue
		}
		o.metrics.ProviderDelete(true)
	}

	deleted, err := o.events.DeleteTransactionEvents(context.WithoutCancel(ctx), transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete calendar events: %w", err)
	}
	result.EventsDeleted = deleted

	if result.DeleteFailures > 0 && result.Warning == "" {
		result.Warning = WarningDeleteFailed
	}

	logger.Info("deleted transaction calendar events", "deleted", deleted, "remote_failures", result.DeleteFailures)
	return result, nil
}

func (o *Orchestrator) setStatus(ctx context.Context, transactionID uuid.UUID, status string, errMsg *string) error {
	if o.status == nil {
		return nil
	}
	if err := o.status.UpdateTransactionSyncStatus(ctx, transactionID, status, errMsg); err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordSync(ctx context.Context, transactionID uuid.UUID, result *SyncResult) error {
	if o.status == nil {
		return nil
	}
	if err := o.status.RecordTransactionSync(ctx, transactionID, result.EventsCreated, result.PushFailures, result.Warning); err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return nil
}

// failSync marks the transaction as errored. The original error is what the caller sees.
func (o *Orchestrator) failSync(ctx context.Context, transactionID uuid.UUID, cause error) {
	msg := cause.Error()
	if err := o.setStatus(context.WithoutCancel(ctx), transactionID, models.SyncStatusError, &msg); err != nil {
		o.logger.Error("failed to record sync error", "transaction", transactionID, "err", err)
	}
}
