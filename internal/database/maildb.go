package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// FileName is the database file created inside the data directory.
	FileName = "leakbox.db"

	// MaxURLLength is the maximum stored length of a URL, in bytes.
	MaxURLLength = 2048

	// truncationMarker replaces the tail of an over-long URL.
	truncationMarker = "[TRUNCATED]"
)

// MailDB is the SQLite-backed store. It is safe for concurrent use.
type MailDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures MailDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
func Open(dbDir string, opts Options) (*MailDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	// serve and the read-only commands may share the file.
	const busy = "&_pragma=busy_timeout(5000)"

	dsn := dbPath + "?mode=rwc" + busy
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run 'leakbox serve' once to create it)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw" + busy
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers; transactions keep multi-row writes whole.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MailDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Path returns the database file path.
func (m *MailDB) Path() string {
	return m.dbPath
}

// Close closes the database connection.
func (m *MailDB) Close() error {
	return m.db.Close()
}

// createTables creates the schema if it doesn't exist.
func (m *MailDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		registration_site TEXT NOT NULL,
		registration_url TEXT NOT NULL,
		registered_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mail_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient TEXT NOT NULL,
		sender TEXT NOT NULL,
		sent_at DATETIME,
		subject TEXT,
		archive_path TEXT,
		dkim TEXT,
		received_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mail_recipient ON mail_events(recipient);

	-- A chain row and its hops are always written in one transaction.
	CREATE TABLE IF NOT EXISTS redirect_chains (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		requested_url TEXT NOT NULL,
		sender_domain TEXT NOT NULL,
		sender_address TEXT NOT NULL,
		recipient_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS redirect_hops (
		chain_id INTEGER NOT NULL REFERENCES redirect_chains(id),
		hop_index INTEGER NOT NULL,
		host TEXT NOT NULL,
		domain TEXT NOT NULL,
		url TEXT NOT NULL,
		PRIMARY KEY (chain_id, hop_index)
	);

	CREATE TABLE IF NOT EXISTS leak_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		variant TEXT NOT NULL,
		source TEXT NOT NULL,
		is_redirect INTEGER NOT NULL,
		sender_domain TEXT NOT NULL,
		sender_address TEXT NOT NULL,
		recipient_id INTEGER NOT NULL,
		observed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leak_recipient ON leak_events(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_leak_sender_domain ON leak_events(sender_domain);

	-- urls is a JSON array. issued flips to 1 exactly once.
	CREATE TABLE IF NOT EXISTS link_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_domain TEXT NOT NULL,
		sender_address TEXT NOT NULL,
		recipient_id INTEGER NOT NULL,
		urls TEXT NOT NULL,
		issued INTEGER NOT NULL DEFAULT 0,
		issued_at DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_link_groups_issued ON link_groups(issued);
	`

	_, err := m.db.ExecContext(context.Background(), schema)
	return err
}

// TruncateURL caps u at MaxURLLength bytes, ending with a truncation marker.
// The cut never splits a UTF-8 sequence.
func TruncateURL(u string) string {
	if len(u) <= MaxURLLength {
		return u
	}
	cut := MaxURLLength - len(truncationMarker)
	for cut > 0 && !utf8.RuneStart(u[cut]) {
		cut--
	}
	return u[:cut] + truncationMarker
}

// timestampFormats contains the timestamp formats SQLite may hand back.
var timestampFormats = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// formatTimestamp renders t in UTC with millisecond precision.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// parseTimestamp parses a stored timestamp, returning zero time on failure.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// nowOr returns t, or the current time when t is zero.
func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
