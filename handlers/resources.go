// ABOUTME: MCP resource handlers for exposing transactions and their calendar events
// ABOUTME: Provides read-only JSON and iCalendar views via closingcal:// URIs
package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

const resourceScheme = "closingcal://"

type ResourceHandlers struct {
	db     *sql.DB
	engine *sync.Engine
	tx     *TransactionHandlers
	userID string
}

func NewResourceHandlers(database *sql.DB, engine *sync.Engine, userID string) *ResourceHandlers {
	return &ResourceHandlers{
		db:     database,
		engine: engine,
		tx:     NewTransactionHandlers(database, engine, userID),
		userID: userID,
	}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch {
	case len(parts) == 1 && parts[0] == "transactions":
		return h.readAllTransactions(uri)
	case len(parts) == 2 && parts[0] == "transactions":
		return h.readTransaction(ctx, uri, parts[1])
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "events":
		return h.readTransactionEvents(ctx, uri, parts[1])
	case len(parts) == 3 && parts[0] == "transactions" && parts[2] == "calendar.ics":
		return h.readTransactionICS(ctx, uri, parts[1])
	case len(parts) == 2 && parts[0] == "calendar" && parts[1] == "status":
		return h.readCalendarStatus(ctx, uri)
	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

func (h *ResourceHandlers) readAllTransactions(uri string) (*mcp.ReadResourceResult, error) {
	transactions, err := db.ListTransactions(h.db, h.userID, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	out := make([]TransactionOutput, 0, len(transactions))
	for i := range transactions {
		out = append(out, transactionToOutput(&transactions[i]))
	}
	return jsonResource(uri, out)
}

// transactionResource is a transaction plus its last calendar sync.
type transactionResource struct {
	TransactionOutput
	SyncState *models.TransactionSyncState `json:"sync_state,omitempty"`
}

func (h *ResourceHandlers) readTransaction(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
	tx, err := h.tx.loadTransaction(id)
	if err != nil {
		return nil, err
	}

	state, err := h.engine.Repo.GetTransactionSyncState(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync state: %w", err)
	}

	return jsonResource(uri, transactionResource{TransactionOutput: transactionToOutput(tx), SyncState: state})
}

func (h *ResourceHandlers) readTransactionEvents(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
	tx, err := h.tx.loadTransaction(id)
	if err != nil {
		return nil, err
	}

	events, err := h.engine.Repo.ListTransactionEvents(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	out := make([]EventOutput, 0, len(events))
	for i := range events {
		out = append(out, eventToOutput(&events[i]))
	}
	return jsonResource(uri, out)
}

func (h *ResourceHandlers) readTransactionICS(ctx context.Context, uri, id string) (*mcp.ReadResourceResult, error) {
	tx, err := h.tx.loadTransaction(id)
	if err != nil {
		return nil, err
	}

	events, err := h.engine.Repo.ListTransactionEvents(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var buf bytes.Buffer
	if err := sync.ExportICS(&buf, tx, events); err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "text/calendar",
			Text:     buf.String(),
		},
	}}, nil
}

type CalendarStatus struct {
	Provider    string `json:"provider"`
	State       string `json:"state"`
	TokenExpiry string `json:"token_expiry,omitempty"`
}

func (h *ResourceHandlers) readCalendarStatus(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	status, err := ConnectionStatus(ctx, h.engine.Repo, h.userID)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, status)
}

// ConnectionStatus reports whether the user's Google connection is usable.
func ConnectionStatus(ctx context.Context, repo *db.CalendarRepository, userID string) (CalendarStatus, error) {
	status := CalendarStatus{Provider: models.ProviderGoogle, State: models.ProviderStateNotConnected}

	conn, err := repo.GetLatestConnection(ctx, userID, models.ProviderGoogle)
	if errors.Is(err, db.ErrConnectionNotFound) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("failed to fetch calendar connection: %w", err)
	}

	if conn.Active {
		status.State = models.ProviderStateConnected
		status.TokenExpiry = conn.TokenExpiry.Format(time.RFC3339)
	} else {
		status.State = models.ProviderStateReauthRequired
	}
	return status, nil
}
