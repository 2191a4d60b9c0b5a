// ABOUTME: Tests for per-transaction sync state tracking
// ABOUTME: Walks the syncing -> idle -> error lifecycle
package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestTransactionSyncStateLifecycle(t *testing.T) {
	database := setupTestDB(t)
	defer func() { _ = database.Close() }()

	repo := NewCalendarRepository(database)
	ctx := context.Background()
	txID := uuid.New()

	// 1. Never synced
	state, err := repo.GetTransactionSyncState(ctx, txID)
	if err != nil {
		t.Fatalf("failed to get sync state: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state for new transaction, got %+v", state)
	}

	// 2. Start sync
	if err := repo.UpdateTransactionSyncStatus(ctx, txID, "syncing", nil); err != nil {
		t.Fatalf("failed to update sync status: %v", err)
	}
	state, err = repo.GetTransactionSyncState(ctx, txID)
	if err != nil {
		t.Fatalf("failed to get sync state: %v", err)
	}
	if state.Status != "syncing" {
		t.Errorf("expected status 'syncing', got %q", state.Status)
	}
	if state.LastSyncTime != nil {
		t.Error("expected no last sync time before completion")
	}

	// 3. Complete sync
	if err := repo.RecordTransactionSync(ctx, txID, 4, 1, "reconnect calendar"); err != nil {
		t.Fatalf("failed to record sync: %v", err)
	}
	state, err = repo.GetTransactionSyncState(ctx, txID)
	if err != nil {
		t.Fatalf("failed to get sync state: %v", err)
	}
	if state.Status != "idle" {
		t.Errorf("expected status 'idle', got %q", state.Status)
	}
	if state.EventsCreated != 4 || state.PushFailures != 1 {
		t.Errorf("expected 4 created / 1 failure, got %d / %d", state.EventsCreated, state.PushFailures)
	}
	if state.Warning != "reconnect calendar" {
		t.Errorf("unexpected warning %q", state.Warning)
	}
	if state.LastSyncTime == nil {
		t.Error("expected last_sync_time to be set after sync")
	}

	// 4. Error keeps the last results
	errMsg := "database is locked"
	if err := repo.UpdateTransactionSyncStatus(ctx, txID, "error", &errMsg); err != nil {
		t.Fatalf("failed to update sync status: %v", err)
	}
	state, err = repo.GetTransactionSyncState(ctx, txID)
	if err != nil {
		t.Fatalf("failed to get sync state: %v", err)
	}
	if state.Status != "error" || state.ErrorMessage != errMsg {
		t.Errorf("expected error state with %q, got %q / %q", errMsg, state.Status, state.ErrorMessage)
	}
	if state.EventsCreated != 4 {
		t.Errorf("expected events_created preserved, got %d", state.EventsCreated)
	}
}
