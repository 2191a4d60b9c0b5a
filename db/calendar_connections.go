// ABOUTME: Calendar provider connection storage
// ABOUTME: Keeps at most one active OAuth grant per user and provider
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/closingcal/models"
)

var ErrConnectionNotFound = errors.New("calendar connection not found")

const connectionColumns = `id, user_id, provider, access_token, refresh_token, token_expiry,
	active, created_at, updated_at`

func scanConnection(row rowScanner) (*models.CalendarConnection, error) {
	var c models.CalendarConnection
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Provider,
		&c.AccessToken,
		&c.RefreshToken,
		&c.TokenExpiry,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConnection stores a new active connection, deactivating any previous
// active connection for the same user and provider.
func (r *CalendarRepository) SaveConnection(ctx context.Context, conn *models.CalendarConnection) error {
	if conn == nil {
		return fmt.Errorf("connection cannot be nil")
	}
	if conn.UserID == "" || conn.Provider == "" {
		return fmt.Errorf("user id and provider are required")
	}

	conn.ID = uuid.New()
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	conn.Active = true

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	_, err = tx.ExecContext(ctx, `
		UPDATE calendar_connections
		SET active = 0, updated_at = ?
		WHERE user_id = ? AND provider = ? AND active = 1
	`, now, conn.UserID, conn.Provider)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous connection: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calendar_connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, conn.ID.String(), conn.UserID, conn.Provider, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiry, conn.Active, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	return tx.Commit()
}

// GetActiveConnection returns ErrConnectionNotFound when the user has no active connection.
func (r *CalendarRepository) GetActiveConnection(ctx context.Context, userID, provider string) (*models.CalendarConnection, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM calendar_connections
		WHERE user_id = ? AND provider = ? AND active = 1
	`, userID, provider)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active connection: %w", err)
	}

	return conn, nil
}

// GetLatestConnection returns the most recent connection, active or not.
func (r *CalendarRepository) GetLatestConnection(ctx context.Context, userID, provider string) (*models.CalendarConnection, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM calendar_connections
		WHERE user_id = ? AND provider = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, userID, provider)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return conn, nil
}

// UpdateConnectionToken stores refreshed credentials in place. An empty
// refreshToken keeps the stored one.
func (r *CalendarRepository) UpdateConnectionToken(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calendar_connections
		SET access_token = ?,
			refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
			token_expiry = ?,
			updated_at = ?
		WHERE id = ?
	`, accessToken, refreshToken, refreshToken, expiry, time.Now(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update connection token: %w", err)
	}

	return nil
}

// DeactivateConnection marks a connection inactive. The row is kept.
func (r *CalendarRepository) DeactivateConnection(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE calendar_connections
		SET active = 0, updated_at = ?
		WHERE id = ?
	`, time.Now(), id.String())
	if err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}
	if affected == 0 {
		return ErrConnectionNotFound
	}

	return nil
}
