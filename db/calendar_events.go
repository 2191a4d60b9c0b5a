// ABOUTME: Repository for local calendar events and their provider push outcomes
// ABOUTME: Enforces one event per transaction and milestone category
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/harperreed/closingcal/models"
)

var (
	ErrDuplicateEvent = errors.New("calendar event already exists for transaction and category")
	ErrEventNotFound  = errors.New("calendar event not found")
)

const eventColumns = `id, user_id, transaction_id, title, description, start_time, end_time,
	event_type, remote_event_id, push_status, push_error, created_at, updated_at`

// CalendarRepository stores calendar events, provider connections, and per-transaction sync state.
type CalendarRepository struct {
	db *sql.DB
}

// NewCalendarRepository creates a new calendar repository.
func NewCalendarRepository(db *sql.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreateCalendarEvent inserts a new event. Returns ErrDuplicateEvent when the
// transaction already has an event for the same category.
func (r *CalendarRepository) CreateCalendarEvent(ctx context.Context, event *models.CalendarEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	event.ID = uuid.New()
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	if event.PushStatus == "" {
		event.PushStatus = models.PushStatusNotAttempted
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID.String(), event.UserID, event.TransactionID.String(), event.Title, event.Description,
		event.StartTime, event.EndTime, event.EventType, event.RemoteEventID, event.PushStatus,
		event.PushError, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to create calendar event: %w", err)
	}

	return nil
}

// SetPushOutcome records the provider result for an event.
func (r *CalendarRepository) SetPushOutcome(ctx context.Context, id uuid.UUID, outcome models.PushOutcome) error {
	var remoteID, pushError *string
	if outcome.RemoteID != "" {
		remoteID = &outcome.RemoteID
	}
	if outcome.Reason != "" {
		pushError = &outcome.Reason
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE calendar_events
		SET remote_event_id = ?, push_status = ?, push_error = ?, updated_at = ?
		WHERE id = ?
	`, remoteID, outcome.Status, pushError, time.Now(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update push outcome: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update push outcome: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}

	return nil
}

func scanEvent(row rowScanner) (*models.CalendarEvent, error) {
	var e models.CalendarEvent
	var description, remoteID, pushError sql.NullString

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.TransactionID,
		&e.Title,
		&description,
		&e.StartTime,
		&e.EndTime,
		&e.EventType,
		&remoteID,
		&e.PushStatus,
		&pushError,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Description = description.String
	e.PushError = pushError.String
	if remoteID.Valid {
		e.RemoteEventID = &remoteID.String
	}

	return &e, nil
}

func (r *CalendarRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]models.CalendarEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}
		events = append(events, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendar events: %w", err)
	}

	return events, nil
}

// GetCalendarEvent retrieves an event by ID.
func (r *CalendarRepository) GetCalendarEvent(ctx context.Context, id uuid.UUID) (*models.CalendarEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id.String())

	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar event: %w", err)
	}

	return e, nil
}

// ListTransactionEvents returns a transaction's events in chronological order.
func (r *CalendarRepository) ListTransactionEvents(ctx context.Context, transactionID uuid.UUID) ([]models.CalendarEvent, error) {
	return r.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE transaction_id = ?
		ORDER BY start_time, rowid
	`, transactionID.String())
}

// ListUserEvents returns a user's events. When unsyncedOnly is set only events
// whose push failed or was never attempted are returned.
func (r *CalendarRepository) ListUserEvents(ctx context.Context, userID string, unsyncedOnly bool, limit int) ([]models.CalendarEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	if unsyncedOnly {
		return r.queryEvents(ctx, `
			SELECT `+eventColumns+`
			FROM calendar_events
			WHERE user_id = ? AND push_status != ?
			ORDER BY start_time, rowid
			LIMIT ?
		`, userID, models.PushStatusSynced, limit)
	}

	return r.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM calendar_events
		WHERE user_id = ?
		ORDER BY start_time, rowid
		LIMIT ?
	`, userID, limit)
}

// DeleteTransactionEvents removes every local event for a transaction and returns the count.
func (r *CalendarRepository) DeleteTransactionEvents(ctx context.Context, transactionID uuid.UUID) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE transaction_id = ?`, transactionID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete calendar events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete calendar events: %w", err)
	}

	return int(affected), nil
}
