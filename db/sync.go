// ABOUTME: Database operations for the transaction_sync_state table
// ABOUTME: Tracks syncing/idle/error status and last results for each transaction's calendar
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/harperreed/closingcal/models"
)

// GetTransactionSyncState retrieves the sync state for a transaction. Returns nil, nil
// when the transaction has never been synced.
func (r *CalendarRepository) GetTransactionSyncState(ctx context.Context, transactionID uuid.UUID) (*models.TransactionSyncState, error) {
	var state models.TransactionSyncState
	var lastSyncTime sql.NullTime
	var warning sql.NullString
	var errorMessage sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT transaction_id, status, last_sync_time, events_created, push_failures, warning, error_message, updated_at
		FROM transaction_sync_state
		WHERE transaction_id = ?
	`, transactionID.String()).Scan(
		&state.TransactionID,
		&state.Status,
		&lastSyncTime,
		&state.EventsCreated,
		&state.PushFailures,
		&warning,
		&errorMessage,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	state.Warning = warning.String
	state.ErrorMessage = errorMessage.String

	return &state, nil
}

// UpdateTransactionSyncStatus sets the status and error message, leaving last results untouched.
func (r *CalendarRepository) UpdateTransactionSyncStatus(ctx context.Context, transactionID uuid.UUID, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_sync_state (transaction_id, status, error_message, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(transaction_id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, transactionID.String(), status, errorMsgVal)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// RecordTransactionSync stores the results of a completed sync and marks it idle.
func (r *CalendarRepository) RecordTransactionSync(ctx context.Context, transactionID uuid.UUID, eventsCreated, pushFailures int, warning string) error {
	var warningVal sql.NullString
	if warning != "" {
		warningVal = sql.NullString{String: warning, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transaction_sync_state (transaction_id, status, last_sync_time, events_created, push_failures, warning, updated_at)
		VALUES (?, 'idle', CURRENT_TIMESTAMP, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(transaction_id) DO UPDATE SET
			status = 'idle',
			last_sync_time = CURRENT_TIMESTAMP,
			events_created = excluded.events_created,
			push_failures = excluded.push_failures,
			warning = excluded.warning,
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, transactionID.String(), eventsCreated, pushFailures, warningVal)
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}

	return nil
}
