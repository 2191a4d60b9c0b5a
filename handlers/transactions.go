// ABOUTME: Transaction MCP tool handlers
// ABOUTME: Implements create/update/delete/list transaction tools that commit first and then sync the calendar
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

const dateLayout = "2006-01-02"

type TransactionHandlers struct {
	db     *sql.DB
	engine *sync.Engine
	userID string
}

func NewTransactionHandlers(database *sql.DB, engine *sync.Engine, userID string) *TransactionHandlers {
	return &TransactionHandlers{db: database, engine: engine, userID: userID}
}

// MilestoneDates carries the ten optional dates as YYYY-MM-DD strings.
type MilestoneDates struct {
	OfferDate          string `json:"offer_date,omitempty" jsonschema:"Offer date (YYYY-MM-DD)"`
	AcceptanceDate     string `json:"acceptance_date,omitempty" jsonschema:"Offer acceptance date (YYYY-MM-DD)"`
	InspectionDate     string `json:"inspection_date,omitempty" jsonschema:"Home inspection date (YYYY-MM-DD)"`
	InspectionDeadline string `json:"inspection_deadline,omitempty" jsonschema:"Inspection contingency deadline (YYYY-MM-DD)"`
	AppraisalDate      string `json:"appraisal_date,omitempty" jsonschema:"Appraisal date (YYYY-MM-DD)"`
	AppraisalDeadline  string `json:"appraisal_deadline,omitempty" jsonschema:"Appraisal contingency deadline (YYYY-MM-DD)"`
	FinancingDeadline  string `json:"financing_deadline,omitempty" jsonschema:"Financing contingency deadline (YYYY-MM-DD)"`
	TitleDeadline      string `json:"title_deadline,omitempty" jsonschema:"Title review deadline (YYYY-MM-DD)"`
	ClosingDate        string `json:"closing_date,omitempty" jsonschema:"Closing date (YYYY-MM-DD)"`
	PossessionDate     string `json:"possession_date,omitempty" jsonschema:"Possession date (YYYY-MM-DD)"`
}

func (d MilestoneDates) byCategory() map[string]string {
	return map[string]string{
		models.CategoryOffer:              d.OfferDate,
		models.CategoryAcceptance:         d.AcceptanceDate,
		models.CategoryInspection:         d.InspectionDate,
		models.CategoryInspectionDeadline: d.InspectionDeadline,
		models.CategoryAppraisal:          d.AppraisalDate,
		models.CategoryAppraisalDeadline:  d.AppraisalDeadline,
		models.CategoryFinancingDeadline:  d.FinancingDeadline,
		models.CategoryTitleDeadline:      d.TitleDeadline,
		models.CategoryClosing:            d.ClosingDate,
		models.CategoryPossession:         d.PossessionDate,
	}
}

// applyTo sets every non-empty date on tx, checking categories in extraction order.
func (d MilestoneDates) applyTo(tx *models.Transaction) error {
	dates := d.byCategory()
	for _, category := range models.MilestoneCategories {
		value := dates[category]
		if value == "" {
			continue
		}
		parsed, err := ParseDate(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", category, err)
		}
		tx.SetMilestoneDate(category, parsed)
	}
	return nil
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and keeps only the calendar date.
func ParseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		var rfcErr error
		t, rfcErr = time.Parse(time.RFC3339, value)
		if rfcErr != nil {
			return nil, fmt.Errorf("date %q must be YYYY-MM-DD", value)
		}
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

type CreateTransactionInput struct {
	PropertyAddress string `json:"property_address" jsonschema:"Property address (required)"`
	BuyerName       string `json:"buyer_name,omitempty" jsonschema:"Buyer name"`
	SellerName      string `json:"seller_name,omitempty" jsonschema:"Seller name"`
	MilestoneDates
}

type UpdateTransactionInput struct {
	ID              string   `json:"id" jsonschema:"Transaction ID (required)"`
	PropertyAddress string   `json:"property_address,omitempty" jsonschema:"New property address"`
	BuyerName       string   `json:"buyer_name,omitempty" jsonschema:"New buyer name"`
	SellerName      string   `json:"seller_name,omitempty" jsonschema:"New seller name"`
	ClearDates      []string `json:"clear_dates,omitempty" jsonschema:"Milestone categories whose date should be removed, e.g. inspection"`
	MilestoneDates
}

type TransactionIDInput struct {
	ID string `json:"id" jsonschema:"Transaction ID (required)"`
}

type ListTransactionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum results (default 50)"`
}

type ListEventsInput struct {
	TransactionID string `json:"transaction_id,omitempty" jsonschema:"Only events for this transaction"`
	UnsyncedOnly  bool   `json:"unsynced_only,omitempty" jsonschema:"Only events not yet in the calendar provider"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum results (default 100)"`
}

type CalendarSyncOutput struct {
	EventsCreated  int    `json:"events_created"`
	EventsPushed   int    `json:"events_pushed"`
	PushFailures   int    `json:"push_failures,omitempty"`
	EventsDeleted  int    `json:"events_deleted,omitempty"`
	DeleteFailures int    `json:"delete_failures,omitempty"`
	ProviderState  string `json:"provider_state,omitempty"`
	Warning        string `json:"warning,omitempty"`
	Message        string `json:"message"`
}

type TransactionOutput struct {
	ID              string              `json:"id"`
	PropertyAddress string              `json:"property_address"`
	BuyerName       string              `json:"buyer_name,omitempty"`
	SellerName      string              `json:"seller_name,omitempty"`
	Dates           map[string]string   `json:"dates,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
	Calendar        *CalendarSyncOutput `json:"calendar,omitempty"`
}

type TransactionListOutput struct {
	Transactions []TransactionOutput `json:"transactions"`
}

type DeleteTransactionOutput struct {
	ID       string             `json:"id"`
	Deleted  bool               `json:"deleted"`
	Calendar CalendarSyncOutput `json:"calendar"`
}

type EventOutput struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	Category      string `json:"category"`
	Title         string `json:"title"`
	Start         string `json:"start"`
	End           string `json:"end"`
	PushStatus    string `json:"push_status"`
	RemoteEventID string `json:"remote_event_id,omitempty"`
	PushError     string `json:"push_error,omitempty"`
}

type EventListOutput struct {
	Events []EventOutput `json:"events"`
}

func (h *TransactionHandlers) CreateTransaction(ctx context.Context, _ *mcp.CallToolRequest, input CreateTransactionInput) (*mcp.CallToolResult, TransactionOutput, error) {
	if strings.TrimSpace(input.PropertyAddress) == "" {
		return nil, TransactionOutput{}, fmt.Errorf("property_address is required")
	}

	tx := &models.Transaction{
		UserID:          h.userID,
		PropertyAddress: strings.TrimSpace(input.PropertyAddress),
		BuyerName:       input.BuyerName,
		SellerName:      input.SellerName,
	}
	if err := input.MilestoneDates.applyTo(tx); err != nil {
		return nil, TransactionOutput{}, err
	}

	if err := db.CreateTransaction(h.db, tx); err != nil {
		return nil, TransactionOutput{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	result, err := h.engine.SyncTransaction(ctx, tx)
	if err != nil {
		return nil, TransactionOutput{}, fmt.Errorf("transaction %s saved but calendar sync failed: %w", tx.ID, err)
	}

	out := transactionToOutput(tx)
	out.Calendar = syncToOutput(result)
	return nil, out, nil
}

func (h *TransactionHandlers) UpdateTransaction(ctx context.Context, _ *mcp.CallToolRequest, input UpdateTransactionInput) (*mcp.CallToolResult, TransactionOutput, error) {
	tx, err := h.loadTransaction(input.ID)
	if err != nil {
		return nil, TransactionOutput{}, err
	}

	if input.PropertyAddress != "" {
		tx.PropertyAddress = strings.TrimSpace(input.PropertyAddress)
	}
	if input.BuyerName != "" {
		tx.BuyerName = input.BuyerName
	}
	if input.SellerName != "" {
		tx.SellerName = input.SellerName
	}
	for _, category := range input.ClearDates {
		if !isCategory(category) {
			return nil, TransactionOutput{}, fmt.Errorf("unknown milestone category %q (valid: %s)", category, strings.Join(models.MilestoneCategories, ", "))
		}
		tx.SetMilestoneDate(category, nil)
	}
	if err := input.MilestoneDates.applyTo(tx); err != nil {
		return nil, TransactionOutput{}, err
	}

	if err := db.UpdateTransaction(h.db, tx); err != nil {
		return nil, TransactionOutput{}, fmt.Errorf("failed to update transaction: %w", err)
	}

	result, err := h.engine.ResyncTransaction(ctx, tx)
	if err != nil {
		return nil, TransactionOutput{}, fmt.Errorf("transaction %s saved but calendar resync failed: %w", tx.ID, err)
	}

	out := transactionToOutput(tx)
	out.Calendar = syncToOutput(result)
	return nil, out, nil
}

func (h *TransactionHandlers) DeleteTransaction(ctx context.Context, _ *mcp.CallToolRequest, input TransactionIDInput) (*mcp.CallToolResult, DeleteTransactionOutput, error) {
	tx, err := h.loadTransaction(input.ID)
	if err != nil {
		return nil, DeleteTransactionOutput{}, err
	}

	result, err := h.engine.DeleteTransactionEvents(ctx, tx.ID)
	if err != nil {
		return nil, DeleteTransactionOutput{}, fmt.Errorf("failed to delete calendar events: %w", err)
	}

	if err := db.DeleteTransaction(h.db, tx.ID); err != nil {
		return nil, DeleteTransactionOutput{}, fmt.Errorf("failed to delete transaction: %w", err)
	}

	calendar := syncToOutput(result)
	calendar.Message = fmt.Sprintf("%d events removed from your calendar", result.EventsDeleted)
	if result.Warning != "" {
		calendar.Message += "; " + result.Warning
	}

	return nil, DeleteTransactionOutput{ID: tx.ID.String(), Deleted: true, Calendar: *calendar}, nil
}

func (h *TransactionHandlers) ResyncTransactionCalendar(ctx context.Context, _ *mcp.CallToolRequest, input TransactionIDInput) (*mcp.CallToolResult, TransactionOutput, error) {
	tx, err := h.loadTransaction(input.ID)
	if err != nil {
		return nil, TransactionOutput{}, err
	}

	result, err := h.engine.ResyncTransaction(ctx, tx)
	if err != nil {
		return nil, TransactionOutput{}, fmt.Errorf("failed to resync calendar: %w", err)
	}

	out := transactionToOutput(tx)
	out.Calendar = syncToOutput(result)
	return nil, out, nil
}

func (h *TransactionHandlers) ListTransactions(_ context.Context, _ *mcp.CallToolRequest, input ListTransactionsInput) (*mcp.CallToolResult, TransactionListOutput, error) {
	transactions, err := db.ListTransactions(h.db, h.userID, input.Limit)
	if err != nil {
		return nil, TransactionListOutput{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	out := TransactionListOutput{Transactions: make([]TransactionOutput, 0, len(transactions))}
	for i := range transactions {
		out.Transactions = append(out.Transactions, transactionToOutput(&transactions[i]))
	}
	return nil, out, nil
}

func (h *TransactionHandlers) ListTransactionEvents(ctx context.Context, _ *mcp.CallToolRequest, input ListEventsInput) (*mcp.CallToolResult, EventListOutput, error) {
	var (
		events []models.CalendarEvent
		err    error
	)

	if input.TransactionID != "" {
		tx, lerr := h.loadTransaction(input.TransactionID)
		if lerr != nil {
			return nil, EventListOutput{}, lerr
		}
		events, err = h.engine.Repo.ListTransactionEvents(ctx, tx.ID)
		if err == nil && input.UnsyncedOnly {
			events = filterUnsynced(events)
		}
	} else {
		events, err = h.engine.Repo.ListUserEvents(ctx, h.userID, input.UnsyncedOnly, input.Limit)
	}
	if err != nil {
		return nil, EventListOutput{}, fmt.Errorf("failed to list calendar events: %w", err)
	}

	out := EventListOutput{Events: make([]EventOutput, 0, len(events))}
	for i := range events {
		out.Events = append(out.Events, eventToOutput(&events[i]))
	}
	return nil, out, nil
}

func (h *TransactionHandlers) loadTransaction(id string) (*models.Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction ID: %w", err)
	}

	tx, err := db.GetTransaction(h.db, txID)
	if errors.Is(err, db.ErrTransactionNotFound) {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx.UserID != h.userID {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	return tx, nil
}

func isCategory(category string) bool {
	for _, c := range models.MilestoneCategories {
		if c == category {
			return true
		}
	}
	return false
}

func filterUnsynced(events []models.CalendarEvent) []models.CalendarEvent {
	var out []models.CalendarEvent
	for _, e := range events {
		if e.PushStatus != models.PushStatusSynced {
			out = append(out, e)
		}
	}
	return out
}

func transactionToOutput(tx *models.Transaction) TransactionOutput {
	dates := map[string]string{}
	for _, category := range models.MilestoneCategories {
		if d := tx.MilestoneDate(category); d != nil {
			dates[category] = d.Format(dateLayout)
		}
	}

	return TransactionOutput{
		ID:              tx.ID.String(),
		PropertyAddress: tx.PropertyAddress,
		BuyerName:       tx.BuyerName,
		SellerName:      tx.SellerName,
		Dates:           dates,
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       tx.UpdatedAt.Format(time.RFC3339),
	}
}

func syncToOutput(result *sync.SyncResult) *CalendarSyncOutput {
	return &CalendarSyncOutput{
		EventsCreated:  result.EventsCreated,
		EventsPushed:   result.EventsPushed,
		PushFailures:   result.PushFailures,
		EventsDeleted:  result.EventsDeleted,
		DeleteFailures: result.DeleteFailures,
		ProviderState:  result.ProviderState,
		Warning:        result.Warning,
		Message:        result.Summary(),
	}
}

func eventToOutput(event *models.CalendarEvent) EventOutput {
	out := EventOutput{
		ID:            event.ID.String(),
		TransactionID: event.TransactionID.String(),
		Category:      event.EventType,
		Title:         event.Title,
		Start:         event.StartTime.Format(time.RFC3339),
		End:           event.EndTime.Format(time.RFC3339),
		PushStatus:    event.PushStatus,
		PushError:     event.PushError,
	}
	if event.RemoteEventID != nil {
		out.RemoteEventID = *event.RemoteEventID
	}
	return out
}
