package database

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// migration is one numbered schema change loaded from schema/NNN_name.sql
// and its schema/NNN_name.down.sql counterpart.
type migration struct {
	version int
	name    string
	up      string
	down    string
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`

// parseSchemaFile splits "002_join_events.down.sql" into 2, "join_events", true
func parseSchemaFile(file string) (version int, name string, down bool, err error) {
	base, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", false, fmt.Errorf("%s: not a .sql file", file)
	}
	base, down = strings.CutSuffix(base, ".down")

	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", false, fmt.Errorf("%s: want NNN_name.sql", file)
	}
	version, err = strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", false, fmt.Errorf("%s: bad version %q", file, num)
	}
	return version, name, down, nil
}

// loadMigrations reads the embedded schema directory. Every migration needs
// both an up and a down file so -rollback always works.
func loadMigrations() ([]migration, error) {
	return loadMigrationsFrom(schemaFS, "schema")
}

func loadMigrationsFrom(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	byVersion := make(map[int]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, down, err := parseSchemaFile(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version, name: name}
			byVersion[version] = m
		} else if m.name != name {
			return nil, fmt.Errorf("migration %d is named both %q and %q", version, m.name, name)
		}
		if down {
			m.down = string(content)
		} else {
			m.up = string(content)
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %03d_%s needs both up and down SQL", m.version, m.name)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		return cmp.Compare(a.version, b.version)
	})
	return migrations, nil
}

// migrate applies every migration newer than the current schema version,
// each in its own transaction.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.version, m.name, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %03d_%s: %w", m.version, m.name, err)
		}
		db.logger.Info("Applied schema migration %03d_%s", m.version, m.name)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, or 0 for an empty database
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Rollback reverts the newest applied migration and returns its version
func (db *DB) Rollback(ctx context.Context) (int, error) {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, fmt.Errorf("no migrations to roll back")
	}

	migrations, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	i := slices.IndexFunc(migrations, func(m migration) bool { return m.version == current })
	if i < 0 {
		return 0, fmt.Errorf("applied migration %d is not embedded in this build", current)
	}
	m := migrations[i]

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.version)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to roll back migration %03d_%s: %w", m.version, m.name, err)
	}
	db.logger.Warning("Rolled back schema migration %03d_%s", m.version, m.name)
	return m.version, nil
}

// inTx runs fn in a transaction, committing only if fn succeeds
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
