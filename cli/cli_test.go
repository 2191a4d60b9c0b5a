// ABOUTME: Tests for transaction, calendar and MCP CLI commands
// ABOUTME: Runs commands against a temp database with no calendar provider connected
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/handlers"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

func setupTestCLI(t *testing.T) (*sql.DB, *sync.Engine) {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	engine, err := sync.NewEngine(database, sync.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	return database, engine
}

func onlyTransaction(t *testing.T, database *sql.DB) models.Transaction {
	t.Helper()
	list, err := db.ListTransactions(database, sync.DefaultUserID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestTxnAddCommand(t *testing.T) {
	database, engine := setupTestCLI(t)

	err := TxnAddCommand(database, engine, []string{
		"--address", "123 Main St",
		"--buyer", "Alice Buyer",
		"--offer", "2025-05-01",
		"--closing", "2025-06-20",
	})
	require.NoError(t, err)

	tx := onlyTransaction(t, database)
	assert.Equal(t, "123 Main St", tx.PropertyAddress)
	assert.Equal(t, sync.DefaultUserID, tx.UserID)

	events, err := engine.Repo.ListTransactionEvents(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.CategoryOffer, events[0].EventType)
	assert.Equal(t, models.CategoryClosing, events[1].EventType)
	assert.Equal(t, models.PushStatusNotAttempted, events[1].PushStatus)
}

func TestTxnAddCommandValidation(t *testing.T) {
	database, engine := setupTestCLI(t)

	err := TxnAddCommand(database, engine, []string{"--buyer", "Alice"})
	assert.ErrorContains(t, err, "--address is required")

	err = TxnAddCommand(database, engine, []string{"--address", "1 Elm", "--closing", "June 20"})
	assert.Error(t, err, "unparseable date should be rejected")

	list, err := db.ListTransactions(database, sync.DefaultUserID, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is saved when input is invalid")
}

func TestTxnUpdateCommandRebuildsEvents(t *testing.T) {
	database, engine := setupTestCLI(t)

	require.NoError(t, TxnAddCommand(database, engine, []string{
		"--address", "123 Main St",
		"--offer", "2025-05-01",
		"--inspection", "2025-05-10",
		"--closing", "2025-06-20",
	}))
	tx := onlyTransaction(t, database)

	err := TxnUpdateCommand(database, engine, []string{
		"--id", tx.ID.String(),
		"--closing", "2025-06-27",
		"--clear", "inspection, offer",
	})
	require.NoError(t, err)

	events, err := engine.Repo.ListTransactionEvents(context.Background(), tx.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.CategoryClosing, events[0].EventType)
	assert.Equal(t, 27, events[0].StartTime.Day())

	got, err := db.GetTransaction(database, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, got.InspectionDate)
	assert.Nil(t, got.OfferDate)
}

func TestTxnUpdateCommandRejectsUnknownCategory(t *testing.T) {
	database, engine := setupTestCLI(t)

	require.NoError(t, TxnAddCommand(database, engine, []string{"--address", "1 Elm", "--closing", "2025-06-20"}))
	tx := onlyTransaction(t, database)

	err := TxnUpdateCommand(database, engine, []string{"--id", tx.ID.String(), "--clear", "walkthrough"})
	assert.ErrorContains(t, err, "unknown milestone category")

	assert.ErrorContains(t, TxnUpdateCommand(database, engine, nil), "--id is required")
}

func TestTxnDeleteCommand(t *testing.T) {
	database, engine := setupTestCLI(t)

	require.NoError(t, TxnAddCommand(database, engine, []string{"--address", "1 Elm", "--closing", "2025-06-20"}))
	tx := onlyTransaction(t, database)

	require.NoError(t, TxnDeleteCommand(database, engine, []string{"--id", tx.ID.String()}))

	_, err := db.GetTransaction(database, tx.ID)
	assert.ErrorIs(t, err, db.ErrTransactionNotFound)

	events, err := engine.Repo.ListTransactionEvents(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.Error(t, TxnDeleteCommand(database, engine, []string{"--id", tx.ID.String()}))
}

func TestTxnResyncListAndShow(t *testing.T) {
	database, engine := setupTestCLI(t)

	require.NoError(t, TxnListCommand(database, engine, nil))

	require.NoError(t, TxnAddCommand(database, engine, []string{"--address", "1 Elm", "--seller", "Sam", "--closing", "2025-06-20"}))
	tx := onlyTransaction(t, database)

	require.NoError(t, TxnResyncCommand(database, engine, []string{"--id", tx.ID.String()}))
	require.NoError(t, TxnListCommand(database, engine, []string{"--limit", "5"}))
	require.NoError(t, TxnShowCommand(database, engine, []string{"--id", tx.ID.String()}))

	events, err := engine.Repo.ListTransactionEvents(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1, "resync replaces events rather than duplicating them")

	state, err := engine.Repo.GetTransactionSyncState(context.Background(), tx.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.SyncStatusIdle, state.Status)
}

func TestTxnShowScopedToUser(t *testing.T) {
	database, engine := setupTestCLI(t)

	other := &models.Transaction{UserID: "someone-else", PropertyAddress: "9 Cedar"}
	require.NoError(t, db.CreateTransaction(database, other))

	err := TxnShowCommand(database, engine, []string{"--id", other.ID.String()})
	assert.ErrorIs(t, err, db.ErrTransactionNotFound)

	err = TxnShowCommand(database, engine, []string{"--id", "not-a-uuid"})
	assert.ErrorContains(t, err, "invalid transaction ID")
}

func TestCalendarStatusAndDisconnect(t *testing.T) {
	database, engine := setupTestCLI(t)
	ctx := context.Background()

	require.NoError(t, CalendarStatusCommand(database, engine, nil))
	require.NoError(t, CalendarDisconnectCommand(database, engine, nil), "disconnect without a connection is a no-op")

	require.NoError(t, engine.Repo.SaveConnection(ctx, &models.CalendarConnection{
		UserID:       sync.DefaultUserID,
		Provider:     models.ProviderGoogle,
		AccessToken:  "a",
		RefreshToken: "r",
		TokenExpiry:  time.Now().Add(time.Hour),
	}))
	require.NoError(t, CalendarStatusCommand(database, engine, nil))

	require.NoError(t, CalendarDisconnectCommand(database, engine, nil))

	status, err := handlers.ConnectionStatus(ctx, engine.Repo, sync.DefaultUserID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStateReauthRequired, status.State)
}

func TestCalendarConnectRequiresOAuthClient(t *testing.T) {
	database, engine := setupTestCLI(t)

	err := CalendarConnectCommand(database, engine, []string{"--no-browser"})
	assert.Error(t, err)
}

func TestCalendarEventsCommand(t *testing.T) {
	database, engine := setupTestCLI(t)

	require.NoError(t, CalendarEventsCommand(database, engine, nil))

	require.NoError(t, TxnAddCommand(database, engine, []string{"--address", "1 Elm", "--offer", "2025-05-01", "--closing", "2025-06-20"}))
	tx := onlyTransaction(t, database)

	require.NoError(t, CalendarEventsCommand(database, engine, []string{"--unsynced"}))
	require.NoError(t, CalendarEventsCommand(database, engine, []string{"--transaction", tx.ID.String(), "--unsynced"}))
}

func TestCalendarExportCommand(t *testing.T) {
	database, engine := setupTestCLI(t)

	require.NoError(t, TxnAddCommand(database, engine, []string{"--address", "1 Elm", "--buyer", "Alice", "--closing", "2025-06-20"}))
	tx := onlyTransaction(t, database)

	out := filepath.Join(t.TempDir(), "closing.ics")
	require.NoError(t, CalendarExportCommand(database, engine, []string{"--id", tx.ID.String(), "--output", out}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	ics := string(data)
	assert.True(t, strings.HasPrefix(ics, "BEGIN:VCALENDAR"))
	assert.Contains(t, ics, "SUMMARY:Closing")
	assert.Contains(t, ics, "1 Elm")
}

func connectMCP(t *testing.T, database *sql.DB, engine *sync.Engine) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := NewMCPServer(database, engine).Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestMCPServerRegistersTools(t *testing.T) {
	database, engine := setupTestCLI(t)
	session := connectMCP(t, database, engine)

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"create_transaction",
		"update_transaction",
		"delete_transaction",
		"resync_transaction_calendar",
		"list_transactions",
		"list_transaction_events",
	}, names)
}

func TestMCPCreateTransactionRoundTrip(t *testing.T) {
	database, engine := setupTestCLI(t)
	session := connectMCP(t, database, engine)
	ctx := context.Background()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "create_transaction",
		Arguments: map[string]any{
			"property_address": "123 Main St",
			"closing_date":     "2025-06-20",
			"inspection_date":  "2025-05-10",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out handlers.TransactionOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotNil(t, out.Calendar)
	assert.Equal(t, 2, out.Calendar.EventsCreated)
	assert.Equal(t, models.ProviderStateNotConnected, out.Calendar.ProviderState)
	assert.Equal(t, "2 events added to your calendar (calendar provider not connected)", out.Calendar.Message)

	resource, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "closingcal://transactions/" + out.ID + "/events"})
	require.NoError(t, err)
	require.Len(t, resource.Contents, 1)
	assert.Contains(t, resource.Contents[0].Text, "Home Inspection")

	status, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "closingcal://calendar/status"})
	require.NoError(t, err)
	require.Len(t, status.Contents, 1)
	assert.Contains(t, status.Contents[0].Text, models.ProviderStateNotConnected)

	prompt, err := session.GetPrompt(ctx, &mcp.GetPromptParams{
		Name:      "closing-checklist",
		Arguments: map[string]string{"transaction_id": out.ID},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, prompt.Messages)
}
