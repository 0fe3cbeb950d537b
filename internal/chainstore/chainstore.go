// Package chainstore is the durable proposal store: SQLite-backed CRUD
// for chain proposals, their participants, rejected-cycle cooldown
// records, escrow holds, and shipment tracking history. It is the single
// source of truth for lifecycle state.
package chainstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides persistent storage for the chain engine.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the chain engine's SQLite database.
func New(cfg Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "chainengine.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection, for callers (like the
// item-lock arbiter) that need raw access to run a conditional UPDATE.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		display_name TEXT NOT NULL,
		rating REAL NOT NULL DEFAULT 0,
		region TEXT NOT NULL DEFAULT '',
		completed_trades INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS wishlists (
		user_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wishlists_item ON wishlists(item_id);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		value_cents INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active'
	);

	CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);

	CREATE TABLE IF NOT EXISTS chain_proposals (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		total_value_cents INTEGER NOT NULL,
		value_tolerance_percent REAL NOT NULL,
		max_participants INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		executed_at INTEGER,
		failed_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_proposals_status ON chain_proposals(status);
	CREATE INDEX IF NOT EXISTS idx_proposals_expires ON chain_proposals(expires_at);

	CREATE TABLE IF NOT EXISTS chain_participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chain_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		gives_item_id INTEGER NOT NULL,
		receives_item_id INTEGER NOT NULL,
		gives_to_user_id INTEGER NOT NULL,
		receives_from_user_id INTEGER NOT NULL,
		cash_delta INTEGER NOT NULL,
		platform_fee_cents INTEGER NOT NULL DEFAULT 0,
		has_accepted INTEGER NOT NULL DEFAULT 0,
		has_funded INTEGER NOT NULL DEFAULT 0,
		has_shipped INTEGER NOT NULL DEFAULT 0,
		has_received INTEGER NOT NULL DEFAULT 0,
		tracking_number TEXT,
		carrier TEXT,
		accepted_at INTEGER,
		funded_at INTEGER,
		shipped_at INTEGER,
		received_at INTEGER,
		photo_url TEXT,
		FOREIGN KEY (chain_id) REFERENCES chain_proposals(id)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_chain ON chain_participants(chain_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_chain_user ON chain_participants(chain_id, user_id);

	CREATE TABLE IF NOT EXISTS rejected_chains (
		cycle_hash TEXT PRIMARY KEY,
		rejected_by_user_id INTEGER NOT NULL,
		original_chain_id TEXT NOT NULL,
		rejected_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rejected_expires ON rejected_chains(expires_at);

	CREATE TABLE IF NOT EXISTS escrow_holds (
		id TEXT PRIMARY KEY,
		chain_id TEXT NOT NULL,
		payer_id INTEGER NOT NULL,
		recipient_id INTEGER NOT NULL,
		amount_cents INTEGER NOT NULL,
		status TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_reference TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (chain_id) REFERENCES chain_proposals(id)
	);

	CREATE INDEX IF NOT EXISTS idx_holds_chain ON escrow_holds(chain_id);
	CREATE INDEX IF NOT EXISTS idx_holds_status ON escrow_holds(status);

	CREATE TABLE IF NOT EXISTS shipment_tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chain_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		tracking_number TEXT NOT NULL,
		carrier TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (chain_id) REFERENCES chain_proposals(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tracking_chain ON shipment_tracking(chain_id);

	CREATE TABLE IF NOT EXISTS payouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chain_id TEXT NOT NULL,
		recipient_id INTEGER NOT NULL,
		amount_cents INTEGER NOT NULL,
		status TEXT NOT NULL,
		provider_reference TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (chain_id) REFERENCES chain_proposals(id)
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_chain ON payouts(chain_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations applies idempotent schema additions for fields introduced
// after the initial release. ALTER TABLE errors are ignored because
// SQLite has no IF NOT EXISTS for columns.
func (s *Store) runMigrations() error {
	migrations := []string{
		`ALTER TABLE chain_participants ADD COLUMN photo_url TEXT`,
	}
	for _, m := range migrations {
		s.db.Exec(m) //nolint:errcheck
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int64) bool {
	return i != 0
}

func timeToUnixOrZero(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixToTime(n sql.NullInt64) time.Time {
	if !n.Valid || n.Int64 == 0 {
		return time.Time{}
	}
	return time.Unix(n.Int64, 0).UTC()
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
