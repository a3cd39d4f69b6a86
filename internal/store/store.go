// Package store is the authoritative local persistence layer. All
// mutations land here first, synchronously; sync happens later and
// never writes past the merge resolver. One logical writer at a time:
// every mutating entry point holds the store mutex and runs a single
// transaction, so a crash can never leave an invariant half-applied.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/splitlog/internal/models"
)

const currentVersion = 1

// Store wraps the local SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the SQLite database at dbPath and migrates it.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS splits (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		is_active  INTEGER NOT NULL DEFAULT 0,
		start_date TEXT,
		updated_at TEXT NOT NULL,
		dirty      INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS days (
		id           TEXT PRIMARY KEY,
		split_id     TEXT REFERENCES splits(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		day_of_split INTEGER NOT NULL DEFAULT 0,
		date         TEXT NOT NULL DEFAULT '',
		is_rest_day  INTEGER NOT NULL DEFAULT 0,
		updated_at   TEXT NOT NULL,
		dirty        INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_days_split ON days(split_id);
	CREATE INDEX IF NOT EXISTS idx_days_date  ON days(date) WHERE date != '';

	CREATE TABLE IF NOT EXISTS exercises (
		id             TEXT PRIMARY KEY,
		day_id         TEXT NOT NULL REFERENCES days(id) ON DELETE CASCADE,
		name           TEXT NOT NULL,
		rep_goal       TEXT NOT NULL DEFAULT '',
		muscle_group   TEXT NOT NULL DEFAULT '',
		exercise_order INTEGER NOT NULL DEFAULT 0,
		done           INTEGER NOT NULL DEFAULT 0,
		completed_at   TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		dirty          INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_exercises_day ON exercises(day_id);

	CREATE TABLE IF NOT EXISTS sets (
		id          TEXT PRIMARY KEY,
		exercise_id TEXT NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
		weight_kg   REAL NOT NULL DEFAULT 0,
		reps        INTEGER NOT NULL DEFAULT 0,
		to_failure  INTEGER NOT NULL DEFAULT 0,
		warmup      INTEGER NOT NULL DEFAULT 0,
		rest_pause  INTEGER NOT NULL DEFAULT 0,
		drop_set    INTEGER NOT NULL DEFAULT 0,
		note        TEXT NOT NULL DEFAULT '',
		bodyweight  INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		dirty       INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_sets_exercise ON sets(exercise_id);

	CREATE TABLE IF NOT EXISTS completed_days (
		id         TEXT PRIMARY KEY,
		date       TEXT NOT NULL UNIQUE,
		day_id     TEXT NOT NULL REFERENCES days(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		dirty      INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS profile (
		id                  TEXT PRIMARY KEY,
		weight_unit         TEXT NOT NULL DEFAULT 'kg',
		height_cm           REAL NOT NULL DEFAULT 0,
		weight_kg           REAL NOT NULL DEFAULT 0,
		age                 INTEGER NOT NULL DEFAULT 0,
		current_streak      INTEGER NOT NULL DEFAULT 0,
		longest_streak      INTEGER NOT NULL DEFAULT 0,
		last_workout_date   TEXT,
		rest_days_per_week  INTEGER NOT NULL DEFAULT 2,
		streak_paused       INTEGER NOT NULL DEFAULT 0,
		day_position        INTEGER NOT NULL DEFAULT 1,
		position_updated_at TEXT NOT NULL,
		updated_at          TEXT NOT NULL,
		dirty               INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tombstones (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		deleted_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	return s.seedProfile()
}

// seedProfile inserts the default singleton profile with a zero
// timestamp, so any real profile pulled from the remote wins the merge
// instead of being clobbered by fresh-install defaults.
func (s *Store) seedProfile() error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO profile (id, weight_unit, rest_days_per_week, day_position, position_updated_at, updated_at, dirty)
		 VALUES (?, 'kg', 2, 1, ?, ?, 0)`,
		models.ProfileID.String(), fmtTime(time.Time{}), fmtTime(time.Time{}))
	if err != nil {
		return fmt.Errorf("seeding profile: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction under the store mutex, keeping
// the single-logical-writer discipline explicit.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse stored time %q: %w", s, err)
	}
	return t, nil
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableUUID maps uuid.Nil to NULL for owner columns.
func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func scanUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("cannot parse stored id %q: %w", s, err)
	}
	return id, nil
}

func scanNullableUUID(s sql.NullString) (uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return uuid.Nil, nil
	}
	return scanUUID(s.String)
}
