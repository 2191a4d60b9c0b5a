// ABOUTME: Database schema definitions
// ABOUTME: Creates transaction, calendar event, connection, and sync state tables
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	property_address TEXT NOT NULL,
	buyer_name TEXT,
	seller_name TEXT,
	offer_date DATE,
	acceptance_date DATE,
	inspection_date DATE,
	inspection_deadline DATE,
	appraisal_date DATE,
	appraisal_deadline DATE,
	financing_deadline DATE,
	title_deadline DATE,
	closing_date DATE,
	possession_date DATE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);

CREATE TABLE IF NOT EXISTS calendar_events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	event_type TEXT NOT NULL,
	remote_event_id TEXT,
	push_status TEXT NOT NULL DEFAULT 'not_attempted' CHECK(push_status IN ('synced', 'not_attempted', 'failed')),
	push_error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (transaction_id) REFERENCES transactions(id),
	UNIQUE(transaction_id, event_type)
);

CREATE INDEX IF NOT EXISTS idx_calendar_events_user_id ON calendar_events(user_id);
CREATE INDEX IF NOT EXISTS idx_calendar_events_push_status ON calendar_events(push_status);

CREATE TABLE IF NOT EXISTS calendar_connections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	token_expiry DATETIME NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_calendar_connections_active
	ON calendar_connections(user_id, provider) WHERE active = 1;

CREATE TABLE IF NOT EXISTS transaction_sync_state (
	transaction_id TEXT PRIMARY KEY,
	status TEXT NOT NULL CHECK(status IN ('idle', 'syncing', 'error')),
	last_sync_time DATETIME,
	events_created INTEGER NOT NULL DEFAULT 0,
	push_failures INTEGER NOT NULL DEFAULT 0,
	warning TEXT,
	error_message TEXT,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
