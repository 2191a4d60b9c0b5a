// ABOUTME: Transaction database operations
// ABOUTME: Handles CRUD for real-estate transactions and their milestone dates
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closingcal/models"
)

var ErrTransactionNotFound = errors.New("transaction not found")

const transactionColumns = `id, user_id, property_address, buyer_name, seller_name,
	offer_date, acceptance_date, inspection_date, inspection_deadline,
	appraisal_date, appraisal_deadline, financing_deadline, title_deadline,
	closing_date, possession_date, created_at, updated_at`

// dateOnly drops time-of-day and zone, keeping the calendar date as midnight UTC.
func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func normalizeDates(tx *models.Transaction) {
	for _, category := range models.MilestoneCategories {
		tx.SetMilestoneDate(category, dateOnly(tx.MilestoneDate(category)))
	}
}

func CreateTransaction(db *sql.DB, tx *models.Transaction) error {
	if tx.PropertyAddress == "" {
		return fmt.Errorf("property address is required")
	}
	if tx.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	tx.ID = uuid.New()
	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	normalizeDates(tx)

	_, err := db.Exec(`
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID.String(), tx.UserID, tx.PropertyAddress, tx.BuyerName, tx.SellerName,
		tx.OfferDate, tx.AcceptanceDate, tx.InspectionDate, tx.InspectionDeadline,
		tx.AppraisalDate, tx.AppraisalDeadline, tx.FinancingDeadline, tx.TitleDeadline,
		tx.ClosingDate, tx.PossessionDate, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var buyer, seller sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.PropertyAddress,
		&buyer,
		&seller,
		&tx.OfferDate,
		&tx.AcceptanceDate,
		&tx.InspectionDate,
		&tx.InspectionDeadline,
		&tx.AppraisalDate,
		&tx.AppraisalDeadline,
		&tx.FinancingDeadline,
		&tx.TitleDeadline,
		&tx.ClosingDate,
		&tx.PossessionDate,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.BuyerName = buyer.String
	tx.SellerName = seller.String

	return tx, nil
}

// GetTransaction returns ErrTransactionNotFound when no row matches.
func GetTransaction(db *sql.DB, id uuid.UUID) (*models.Transaction, error) {
	row := db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id.String())

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

func ListTransactions(db *sql.DB, userID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}

	return transactions, rows.Err()
}

func UpdateTransaction(db *sql.DB, tx *models.Transaction) error {
	tx.UpdatedAt = time.Now()
	normalizeDates(tx)

	result, err := db.Exec(`
		UPDATE transactions
		SET property_address = ?, buyer_name = ?, seller_name = ?,
			offer_date = ?, acceptance_date = ?, inspection_date = ?, inspection_deadline = ?,
			appraisal_date = ?, appraisal_deadline = ?, financing_deadline = ?, title_deadline = ?,
			closing_date = ?, possession_date = ?, updated_at = ?
		WHERE id = ?
	`, tx.PropertyAddress, tx.BuyerName, tx.SellerName,
		tx.OfferDate, tx.AcceptanceDate, tx.InspectionDate, tx.InspectionDeadline,
		tx.AppraisalDate, tx.AppraisalDeadline, tx.FinancingDeadline, tx.TitleDeadline,
		tx.ClosingDate, tx.PossessionDate, tx.UpdatedAt, tx.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

// DeleteTransaction removes the transaction and its sync state.
// Calendar events are removed by the sync engine before this is called.
func DeleteTransaction(db *sql.DB, id uuid.UUID) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	_, err = tx.Exec(`DELETE FROM transaction_sync_state WHERE transaction_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM transactions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return tx.Commit()
}
