package database

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool. In-memory databases are pinned
// to a single connection so every statement sees the same database.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if strings.Contains(dataSourceName, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema. The unique
// index on alerts(event_id, rule_id) is the authoritative guard against
// duplicate alert creation under concurrent retries.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		owner_user_id TEXT NOT NULL,
		api_key_hash TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE,
		email TEXT UNIQUE,
		password_hash TEXT,
		unread_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		store_id TEXT NOT NULL,
		device_id TEXT,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		payload_json TEXT,
		captured_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_store_type_time
		ON events (store_id, event_type, captured_at);

	CREATE TABLE IF NOT EXISTS rules (
		id TEXT NOT NULL PRIMARY KEY,
		store_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		params_json TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rules_store_active ON rules (store_id, is_active);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		channels_json TEXT,
		sent_at DATETIME,
		created_at DATETIME NOT NULL,
		UNIQUE (event_id, rule_id)
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts (sent_at) WHERE sent_at IS NULL;

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT,
		severity TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user_created
		ON notifications (user_id, created_at);

	CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id TEXT NOT NULL PRIMARY KEY,
		prefs_json TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS push_tokens (
		user_id TEXT NOT NULL,
		token TEXT NOT NULL,
		platform TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, token)
	);
	`
	_, err := db.Exec(sqlStmt)
	return err
}
