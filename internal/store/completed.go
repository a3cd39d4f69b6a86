package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
)

// PutCompletedDay records a finished workout for its calendar date.
// The snapshot keeps at most one entry per date: an existing entry for
// the same date is retired, tombstoned, and replaced. The embedded day
// tree is stored detached from any split and is carried inside the
// completed-day record when syncing, so its rows are written clean.
func (s *Store) PutCompletedDay(ctx context.Context, cd models.CompletedDay) (models.CompletedDay, error) {
	now := time.Now()
	normalizeCompletedDay(&cd, now)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return putCompletedDayTx(ctx, tx, &cd, now)
	})
	if err != nil {
		return models.CompletedDay{}, fmt.Errorf("saving completed day: %w", err)
	}
	return cd, nil
}

// DeleteCompletedDay removes a history entry and its snapshot rows.
func (s *Store) DeleteCompletedDay(ctx context.Context, id uuid.UUID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var dayID string
		row := tx.QueryRowContext(ctx, `SELECT day_id FROM completed_days WHERE id = ?`, id.String())
		if err := row.Scan(&dayID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := insertTombstone(ctx, tx, "completed_day", id, time.Now()); err != nil {
			return err
		}
		// Dropping the snapshot day cascades to the entry itself.
		_, err := tx.ExecContext(ctx, `DELETE FROM days WHERE id = ?`, dayID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting completed day: %w", err)
	}
	return nil
}

// CompletedDays fetches the workout history, most recent date first.
func (s *Store) CompletedDays(ctx context.Context) ([]models.CompletedDay, error) {
	return s.completedDaysWhere(ctx,
		`SELECT id, date, day_id, created_at, updated_at FROM completed_days ORDER BY date DESC`)
}

// CompletedDaysBetween fetches history entries with from <= date <= to,
// in ascending date order. Dates use the YYYY-MM-DD layout.
func (s *Store) CompletedDaysBetween(ctx context.Context, from, to string) ([]models.CompletedDay, error) {
	return s.completedDaysWhere(ctx,
		`SELECT id, date, day_id, created_at, updated_at FROM completed_days
		 WHERE date >= ? AND date <= ? ORDER BY date`, from, to)
}

// CompletedDayByDate fetches the history entry for one calendar date.
func (s *Store) CompletedDayByDate(ctx context.Context, date string) (*models.CompletedDay, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, date, day_id, created_at, updated_at FROM completed_days WHERE date = ?`, date)
	cd, dayID, err := scanCompletedDay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying completed day: %w", err)
	}
	day, err := loadDay(ctx, s.db, dayID)
	if err != nil {
		return nil, err
	}
	cd.Day = *day
	return &cd, nil
}

func (s *Store) completedDaysWhere(ctx context.Context, query string, args ...any) ([]models.CompletedDay, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying completed days: %w", err)
	}
	defer rows.Close()

	var (
		cds    []models.CompletedDay
		dayIDs []uuid.UUID
	)
	for rows.Next() {
		cd, dayID, err := scanCompletedDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning completed day: %w", err)
		}
		cds = append(cds, cd)
		dayIDs = append(dayIDs, dayID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cds {
		day, err := loadDay(ctx, s.db, dayIDs[i])
		if err != nil {
			return nil, err
		}
		cds[i].Day = *day
	}
	return cds, nil
}

func scanCompletedDay(r rowScanner) (models.CompletedDay, uuid.UUID, error) {
	var (
		cd        models.CompletedDay
		id, dayID string
		createdAt string
		updatedAt string
	)
	if err := r.Scan(&id, &cd.Date, &dayID, &createdAt, &updatedAt); err != nil {
		return models.CompletedDay{}, uuid.Nil, err
	}
	var err error
	if cd.ID, err = scanUUID(id); err != nil {
		return models.CompletedDay{}, uuid.Nil, err
	}
	parsedDayID, err := scanUUID(dayID)
	if err != nil {
		return models.CompletedDay{}, uuid.Nil, err
	}
	if cd.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.CompletedDay{}, uuid.Nil, err
	}
	if cd.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.CompletedDay{}, uuid.Nil, err
	}
	return cd, parsedDayID, nil
}

// normalizeCompletedDay mints identifiers, detaches the snapshot from
// its source split, and aligns the embedded day with the entry's date.
func normalizeCompletedDay(cd *models.CompletedDay, now time.Time) {
	if cd.ID == uuid.Nil {
		cd.ID = uuid.New()
	}
	if cd.CreatedAt.IsZero() {
		cd.CreatedAt = now
	}
	day := &cd.Day
	if day.ID == uuid.Nil {
		day.ID = uuid.New()
	}
	day.SplitID = uuid.Nil
	day.Date = cd.Date
	if day.UpdatedAt.IsZero() {
		day.UpdatedAt = now
	}
	for i := range day.Exercises {
		ex := &day.Exercises[i]
		if ex.ID == uuid.Nil {
			ex.ID = uuid.New()
		}
		ex.DayID = day.ID
		if ex.CreatedAt.IsZero() {
			ex.CreatedAt = now
		}
		if ex.UpdatedAt.IsZero() {
			ex.UpdatedAt = now
		}
		for j := range ex.Sets {
			set := &ex.Sets[j]
			if set.ID == uuid.Nil {
				set.ID = uuid.New()
			}
			set.ExerciseID = ex.ID
			if set.CreatedAt.IsZero() {
				set.CreatedAt = now
			}
			if set.UpdatedAt.IsZero() {
				set.UpdatedAt = now
			}
		}
	}
}

// putCompletedDayTx performs the retire-then-insert write. Snapshot
// rows are stored clean; only the entry row is marked dirty, since the
// entry record carries the whole tree on the wire.
func putCompletedDayTx(ctx context.Context, tx *sql.Tx, cd *models.CompletedDay, now time.Time) error {
	var oldID, oldDayID string
	row := tx.QueryRowContext(ctx, `SELECT id, day_id FROM completed_days WHERE date = ?`, cd.Date)
	err := row.Scan(&oldID, &oldDayID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if oldID != cd.ID.String() {
			retired, err := scanUUID(oldID)
			if err != nil {
				return err
			}
			if err := insertTombstone(ctx, tx, "completed_day", retired, now); err != nil {
				return err
			}
		}
		// Cascades the old snapshot tree and the entry row.
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE id = ?`, oldDayID); err != nil {
			return fmt.Errorf("retiring snapshot: %w", err)
		}
	}

	if err := writeSnapshotDay(ctx, tx, cd.Day); err != nil {
		return err
	}

	cd.UpdatedAt = now
	_, err = tx.ExecContext(ctx,
		`INSERT INTO completed_days (id, date, day_id, created_at, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET
		   date = excluded.date,
		   day_id = excluded.day_id,
		   updated_at = excluded.updated_at,
		   dirty = 1`,
		cd.ID.String(), cd.Date, cd.Day.ID.String(), fmtTime(cd.CreatedAt), fmtTime(cd.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting completed day: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, cd.ID.String()); err != nil {
		return fmt.Errorf("clearing tombstone: %w", err)
	}
	return nil
}

// writeSnapshotDay stores a detached day tree with clean sync state.
func writeSnapshotDay(ctx context.Context, tx *sql.Tx, day models.Day) error {
	if err := upsertDayRow(ctx, tx, day, false); err != nil {
		return err
	}
	for _, ex := range day.Exercises {
		if err := upsertExerciseRow(ctx, tx, ex, false); err != nil {
			return err
		}
		for _, st := range ex.Sets {
			if err := upsertSetRow(ctx, tx, st, false); err != nil {
				return err
			}
		}
	}
	return nil
}
