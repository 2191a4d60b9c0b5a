// ABOUTME: Tests for the calendar feed server
// ABOUTME: Drives the handler with httptest against a temp database
package web

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

type fixture struct {
	database *sql.DB
	engine   *sync.Engine
}

func setupServer(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	registry := prometheus.NewRegistry()
	engine, err := sync.NewEngine(database, sync.DefaultConfig(), nil, sync.NewMetrics(registry))
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(database, engine, registry).Handler())
	t.Cleanup(srv.Close)
	return srv, &fixture{database: database, engine: engine}
}

func addTransaction(t *testing.T, f *fixture, userID, address string) *models.Transaction {
	t.Helper()
	closing := time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC)
	tx := &models.Transaction{UserID: userID, PropertyAddress: address, ClosingDate: &closing}
	require.NoError(t, db.CreateTransaction(f.database, tx))
	_, err := f.engine.SyncTransaction(t.Context(), tx)
	require.NoError(t, err)
	return tx
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestFeedIncludesAllTransactions(t *testing.T) {
	srv, f := setupServer(t)
	addTransaction(t, f, sync.DefaultUserID, "123 Main St")
	addTransaction(t, f, sync.DefaultUserID, "9 Cedar Ln")
	addTransaction(t, f, "someone-else", "1 Private Rd")

	resp, body := get(t, srv.URL+"/calendar.ics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "9 Cedar Ln")
	assert.NotContains(t, body, "1 Private Rd")
}

func TestTransactionFeed(t *testing.T) {
	srv, f := setupServer(t)
	tx := addTransaction(t, f, sync.DefaultUserID, "123 Main St")
	other := addTransaction(t, f, "someone-else", "1 Private Rd")

	resp, body := get(t, srv.URL+"/transactions/"+tx.ID.String()+"/calendar.ics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "SUMMARY:Closing")

	resp, _ = get(t, srv.URL+"/transactions/"+other.ID.String()+"/calendar.ics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/transactions/"+uuid.NewString()+"/calendar.ics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/transactions/nope/calendar.ics")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsAndHealth(t *testing.T) {
	srv, f := setupServer(t)
	addTransaction(t, f, sync.DefaultUserID, "123 Main St")

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)

	resp, body = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "closingcal_events_created_total 1")
}
