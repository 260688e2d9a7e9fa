package sink

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/censtats/popproj-connector/pkg/state"
	_ "modernc.org/sqlite"
)

const timeFormat = state.TimeFormat

const createProjectionsTable = `
CREATE TABLE IF NOT EXISTS population_projections (
	year         INTEGER NOT NULL,
	race         TEXT    NOT NULL,
	sex          TEXT    NOT NULL,
	age          INTEGER NOT NULL,
	total_pop    INTEGER NOT NULL,
	last_updated TEXT    NOT NULL,
	PRIMARY KEY (year, race, sex, age)
)`

const createSyncStateTable = `
CREATE TABLE IF NOT EXISTS sync_state (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const upsertProjection = `
INSERT INTO population_projections (year, race, sex, age, total_pop, last_updated)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (year, race, sex, age)
DO UPDATE SET total_pop = excluded.total_pop, last_updated = excluded.last_updated`

const upsertSyncState = `
INSERT INTO sync_state (name, value)
VALUES ('last_updated', ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value`

// SQLiteSink delivers records into a local SQLite database. It is the
// destination used by the debug entry point.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) a SQLite destination
// at the provided path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	for _, ddl := range []string{createProjectionsTable, createSyncStateTable} {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	return &SQLiteSink{db: db}, nil
}

// Upsert inserts or replaces a projection row keyed on (year, race, sex, age).
func (s *SQLiteSink) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, upsertProjection,
		rec.Year,
		rec.Race,
		rec.Sex,
		rec.Age,
		rec.TotalPop,
		rec.LastUpdated.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upsert projection: %w", err)
	}
	return nil
}

// Checkpoint writes the run's cursor into the sync_state table.
func (s *SQLiteSink) Checkpoint(ctx context.Context, st state.SyncState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, upsertSyncState, st.LastUpdated); err != nil {
		return fmt.Errorf("checkpoint sync state: %w", err)
	}
	return nil
}

// LastCheckpoint reads the cursor back from the sync_state table.
// Returns the default state when no checkpoint exists yet.
func (s *SQLiteSink) LastCheckpoint(ctx context.Context) (state.SyncState, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE name = 'last_updated'`).Scan(&value)
	if err == sql.ErrNoRows {
		return state.Default(), nil
	}
	if err != nil {
		return state.SyncState{}, fmt.Errorf("read sync state: %w", err)
	}
	return state.SyncState{LastUpdated: value}, nil
}

// CountRecords returns the number of projection rows in the destination.
func (s *SQLiteSink) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM population_projections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count projections: %w", err)
	}
	return n, nil
}

// Close closes the underlying SQLite database.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Sink = (*SQLiteSink)(nil)
