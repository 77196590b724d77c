package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/tmichat/internal/output"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection and provides access to database operations
type DB struct {
	conn   *sql.DB
	path   string
	logger output.Logger
}

// New opens (creating if needed) the database at dbPath and applies pending
// migrations, logging each one. walMode enables Write-Ahead Logging.
// ctx bounds the migration step. logger may be nil.
func New(ctx context.Context, dbPath string, walMode bool, logger output.Logger) (*DB, error) {
	if logger == nil {
		logger = output.NopLogger{}
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:   conn,
		path:   dbPath,
		logger: logger,
	}

	if walMode {
		if err := db.configureWAL(); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to configure WAL mode: %w", err)
		}
	}

	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// NewTest creates an in-memory database with all migrations applied
func NewTest() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping test database: %w", err)
	}

	db := &DB{
		conn:   conn,
		path:   ":memory:",
		logger: output.NopLogger{},
	}

	if err := db.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations on test database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// configureWAL enables Write-Ahead Logging mode and configures checkpoint settings
func (db *DB) configureWAL() error {
	var journalMode string
	err := db.conn.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
	if err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("failed to enable WAL mode: got %s instead", journalMode)
	}

	// NORMAL is safe for WAL mode
	if _, err := db.conn.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("failed to configure synchronous mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to configure busy timeout: %w", err)
	}

	return nil
}

// Vacuum rebuilds the database file to reclaim space
func (db *DB) Vacuum(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}
