package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/merge"
	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/remote"
)

// Snapshot captures the full local state for the merge resolver: every
// entity tree plus the dirty set and pending tombstones.
func (s *Store) Snapshot(ctx context.Context) (merge.Snapshot, error) {
	splits, err := s.Splits(ctx)
	if err != nil {
		return merge.Snapshot{}, err
	}
	cds, err := s.CompletedDays(ctx)
	if err != nil {
		return merge.Snapshot{}, err
	}
	p, err := s.Profile(ctx)
	if err != nil {
		return merge.Snapshot{}, err
	}

	snap := merge.Snapshot{
		Splits:        splits,
		CompletedDays: cds,
		Profile:       &p,
		Dirty:         make(map[uuid.UUID]bool),
		Tombstones:    make(map[uuid.UUID]time.Time),
	}

	for _, table := range []string{"splits", "days", "exercises", "sets", "completed_days", "profile"} {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE dirty = 1`, table))
		if err != nil {
			return merge.Snapshot{}, fmt.Errorf("querying dirty %s: %w", table, err)
		}
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return merge.Snapshot{}, err
			}
			id, err := scanUUID(raw)
			if err != nil {
				rows.Close()
				return merge.Snapshot{}, err
			}
			snap.Dirty[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return merge.Snapshot{}, err
		}
		rows.Close()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, deleted_at FROM tombstones`)
	if err != nil {
		return merge.Snapshot{}, fmt.Errorf("querying tombstones: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw, deletedAt string
		if err := rows.Scan(&raw, &deletedAt); err != nil {
			return merge.Snapshot{}, err
		}
		id, err := scanUUID(raw)
		if err != nil {
			return merge.Snapshot{}, err
		}
		at, err := parseTime(deletedAt)
		if err != nil {
			return merge.Snapshot{}, err
		}
		snap.Tombstones[id] = at
	}
	if err := rows.Err(); err != nil {
		return merge.Snapshot{}, err
	}
	return snap, nil
}

// PendingPush assembles the outgoing batch: every dirty record as an
// upsert, parent kinds first, followed by pending tombstones as deletes.
// Scalar payloads carry no children; completed days embed their whole
// snapshot tree.
func (s *Store) PendingPush(ctx context.Context) ([]remote.Record, error) {
	var recs []remote.Record

	pr, err := s.dirtyProfileRecord(ctx)
	if err != nil {
		return nil, err
	}
	recs = append(recs, pr...)

	for _, collect := range []func(context.Context) ([]remote.Record, error){
		s.dirtySplitRecords,
		s.dirtyDayRecords,
		s.dirtyExerciseRecords,
		s.dirtySetRecords,
		s.dirtyCompletedDayRecords,
		s.tombstoneRecords,
	} {
		part, err := collect(ctx)
		if err != nil {
			return nil, err
		}
		recs = append(recs, part...)
	}
	return recs, nil
}

func (s *Store) dirtyProfileRecord(ctx context.Context) ([]remote.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, weight_unit, height_cm, weight_kg, age, current_streak, longest_streak,
		        last_workout_date, rest_days_per_week, streak_paused, day_position,
		        position_updated_at, updated_at
		 FROM profile WHERE dirty = 1 AND id = ?`,
		models.ProfileID.String())
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying dirty profile: %w", err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding profile payload: %w", err)
	}
	return []remote.Record{{ID: p.ID, Kind: remote.KindProfile, UpdatedAt: p.UpdatedAt, Payload: payload}}, nil
}

func (s *Store) dirtySplitRecords(ctx context.Context) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_active, start_date, updated_at FROM splits WHERE dirty = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying dirty splits: %w", err)
	}
	defer rows.Close()

	var recs []remote.Record
	for rows.Next() {
		sp, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(sp)
		if err != nil {
			return nil, fmt.Errorf("encoding split payload: %w", err)
		}
		recs = append(recs, remote.Record{ID: sp.ID, Kind: remote.KindSplit, UpdatedAt: sp.UpdatedAt, Payload: payload})
	}
	return recs, rows.Err()
}

func (s *Store) dirtyDayRecords(ctx context.Context) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, split_id, name, day_of_split, date, is_rest_day, updated_at FROM days WHERE dirty = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying dirty days: %w", err)
	}
	defer rows.Close()

	var recs []remote.Record
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encoding day payload: %w", err)
		}
		rec := remote.Record{ID: d.ID, Kind: remote.KindDay, UpdatedAt: d.UpdatedAt, Payload: payload}
		if d.SplitID != uuid.Nil {
			parent := d.SplitID
			rec.ParentID = &parent
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) dirtyExerciseRecords(ctx context.Context) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, day_id, name, rep_goal, muscle_group, exercise_order, done, completed_at, created_at, updated_at
		 FROM exercises WHERE dirty = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying dirty exercises: %w", err)
	}
	defer rows.Close()

	var recs []remote.Record
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encoding exercise payload: %w", err)
		}
		parent := e.DayID
		recs = append(recs, remote.Record{
			ID: e.ID, Kind: remote.KindExercise, ParentID: &parent,
			UpdatedAt: e.UpdatedAt, Payload: payload,
		})
	}
	return recs, rows.Err()
}

func (s *Store) dirtySetRecords(ctx context.Context) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exercise_id, weight_kg, reps, to_failure, warmup, rest_pause, drop_set, note, bodyweight, created_at, updated_at
		 FROM sets WHERE dirty = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying dirty sets: %w", err)
	}
	defer rows.Close()

	var recs []remote.Record
	for rows.Next() {
		st, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("encoding set payload: %w", err)
		}
		parent := st.ExerciseID
		recs = append(recs, remote.Record{
			ID: st.ID, Kind: remote.KindSet, ParentID: &parent,
			UpdatedAt: st.UpdatedAt, Payload: payload,
		})
	}
	return recs, rows.Err()
}

func (s *Store) dirtyCompletedDayRecords(ctx context.Context) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, day_id, created_at, updated_at FROM completed_days WHERE dirty = 1`)
	if err != nil {
		return nil, fmt.Errorf("querying dirty completed days: %w", err)
	}

	var (
		cds    []models.CompletedDay
		dayIDs []uuid.UUID
	)
	for rows.Next() {
		cd, dayID, err := scanCompletedDay(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		cds = append(cds, cd)
		dayIDs = append(dayIDs, dayID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var recs []remote.Record
	for i, cd := range cds {
		day, err := loadDay(ctx, s.db, dayIDs[i])
		if err != nil {
			return nil, err
		}
		cd.Day = *day
		payload, err := json.Marshal(cd)
		if err != nil {
			return nil, fmt.Errorf("encoding completed day payload: %w", err)
		}
		recs = append(recs, remote.Record{ID: cd.ID, Kind: remote.KindCompletedDay, UpdatedAt: cd.UpdatedAt, Payload: payload})
	}
	return recs, nil
}

func (s *Store) tombstoneRecords(ctx context.Context) ([]remote.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, deleted_at FROM tombstones`)
	if err != nil {
		return nil, fmt.Errorf("querying tombstones: %w", err)
	}
	defer rows.Close()

	var recs []remote.Record
	for rows.Next() {
		var raw, kind, deletedAt string
		if err := rows.Scan(&raw, &kind, &deletedAt); err != nil {
			return nil, err
		}
		id, err := scanUUID(raw)
		if err != nil {
			return nil, err
		}
		at, err := parseTime(deletedAt)
		if err != nil {
			return nil, err
		}
		recs = append(recs, remote.Record{ID: id, Kind: kind, UpdatedAt: at, Deleted: true})
	}
	return recs, rows.Err()
}

// MarkPushed clears the dirty flag for records acknowledged by the
// server and drops their tombstones. The clear is guarded by the pushed
// timestamp: a record edited again while the push was in flight stays
// dirty and goes out on the next batch.
func (s *Store) MarkPushed(ctx context.Context, pushed []remote.Record) error {
	if len(pushed) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range pushed {
			if rec.Deleted {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM tombstones WHERE id = ?`, rec.ID.String()); err != nil {
					return fmt.Errorf("clearing tombstone: %w", err)
				}
				continue
			}
			table := tableForKind(rec.Kind)
			if table == "" {
				continue
			}
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET dirty = 0 WHERE id = ? AND updated_at = ?`, table),
				rec.ID.String(), fmtTime(rec.UpdatedAt))
			if err != nil {
				return fmt.Errorf("clearing dirty flag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("marking pushed: %w", err)
	}
	return nil
}

func tableForKind(kind string) string {
	switch kind {
	case remote.KindSplit:
		return "splits"
	case remote.KindDay:
		return "days"
	case remote.KindExercise:
		return "exercises"
	case remote.KindSet:
		return "sets"
	case remote.KindCompletedDay:
		return "completed_days"
	case remote.KindProfile:
		return "profile"
	}
	return ""
}

// ApplyMerge applies a resolver decision set in one transaction.
// Remote-won rows land clean (dirty = 0) so they do not echo back on
// the next push. Upserts run before deletes: a child arriving in the
// same batch as its parent's tombstone goes down with the parent, which
// is exactly the subtree-deletion rule. Deletes here never tombstone;
// the remote side already knows.
func (s *Store) ApplyMerge(ctx context.Context, res merge.Result) error {
	if res.Empty() {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			activeID uuid.UUID
			activeAt time.Time
		)
		for _, sp := range res.Splits {
			if err := upsertSplitRow(ctx, tx, sp, false); err != nil {
				return err
			}
			if sp.IsActive && (activeID == uuid.Nil || sp.UpdatedAt.After(activeAt) ||
				(sp.UpdatedAt.Equal(activeAt) && sp.ID.String() > activeID.String())) {
				activeID = sp.ID
				activeAt = sp.UpdatedAt
			}
		}
		for _, d := range res.Days {
			if err := upsertDayRow(ctx, tx, d, false); err != nil {
				return err
			}
		}
		for _, e := range res.Exercises {
			if err := upsertExerciseRow(ctx, tx, e, false); err != nil {
				return err
			}
		}
		for _, st := range res.Sets {
			if err := upsertSetRow(ctx, tx, st, false); err != nil {
				return err
			}
		}
		for _, cd := range res.CompletedDays {
			if err := applyCompletedDayRow(ctx, tx, cd); err != nil {
				return err
			}
		}
		if res.Profile != nil {
			if err := upsertProfileRow(ctx, tx, *res.Profile, false); err != nil {
				return err
			}
		}

		// A remotely activated split displaces the local one. The
		// displaced row is dirtied so the correction propagates.
		if activeID != uuid.Nil {
			_, err := tx.ExecContext(ctx,
				`UPDATE splits SET is_active = 0, updated_at = ?, dirty = 1
				 WHERE is_active = 1 AND id != ?`,
				fmtTime(time.Now()), activeID.String())
			if err != nil {
				return fmt.Errorf("enforcing single active split: %w", err)
			}
		}

		for _, ref := range res.Deletes {
			if err := applyDelete(ctx, tx, ref); err != nil {
				return err
			}
		}
		for _, id := range res.DropTombstones {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, id.String()); err != nil {
				return fmt.Errorf("dropping tombstone: %w", err)
			}
		}

		// Records that vetoed a remote tombstone re-push with a fresh
		// timestamp, so the re-creation beats the delete everywhere.
		if len(res.Dirty) > 0 {
			stamp := fmtTime(time.Now())
			for _, ref := range res.Dirty {
				table := tableForKind(ref.Kind)
				if table == "" {
					continue
				}
				_, err := tx.ExecContext(ctx,
					fmt.Sprintf(`UPDATE %s SET dirty = 1, updated_at = ? WHERE id = ?`, table),
					stamp, ref.ID.String())
				if err != nil {
					return fmt.Errorf("re-marking record: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("applying merge: %w", err)
	}
	return nil
}

// applyCompletedDayRow installs a remote-won history entry, displacing
// whatever currently holds its id or its date. The snapshot tree is
// replaced wholesale; snapshots are immutable values, not merged trees.
func applyCompletedDayRow(ctx context.Context, tx *sql.Tx, cd models.CompletedDay) error {
	normalizeCompletedDay(&cd, cd.UpdatedAt)

	var dayID string
	err := tx.QueryRowContext(ctx,
		`SELECT day_id FROM completed_days WHERE id = ?`, cd.ID.String()).Scan(&dayID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE id = ?`, dayID); err != nil {
			return fmt.Errorf("replacing snapshot: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx,
		`SELECT day_id FROM completed_days WHERE date = ?`, cd.Date).Scan(&dayID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE id = ?`, dayID); err != nil {
			return fmt.Errorf("retiring snapshot: %w", err)
		}
	}

	if err := writeSnapshotDay(ctx, tx, cd.Day); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO completed_days (id, date, day_id, created_at, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		cd.ID.String(), cd.Date, cd.Day.ID.String(), fmtTime(cd.CreatedAt), fmtTime(cd.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting completed day: %w", err)
	}
	return nil
}

func applyDelete(ctx context.Context, tx *sql.Tx, ref merge.Ref) error {
	switch ref.Kind {
	case remote.KindSplit, remote.KindDay, remote.KindExercise, remote.KindSet:
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, tableForKind(ref.Kind)), ref.ID.String())
		if err != nil {
			return fmt.Errorf("applying delete: %w", err)
		}
	case remote.KindCompletedDay:
		var dayID string
		err := tx.QueryRowContext(ctx,
			`SELECT day_id FROM completed_days WHERE id = ?`, ref.ID.String()).Scan(&dayID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE id = ?`, dayID); err != nil {
			return fmt.Errorf("applying delete: %w", err)
		}
	}
	// The profile row never goes away.
	return nil
}

// Cursor returns the pull cursor from the last completed sync, or the
// empty string before the first one.
func (s *Store) Cursor(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'sync_cursor'`)
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("querying cursor: %w", err)
	}
	return v, nil
}

// SetCursor records the pull cursor to resume from.
func (s *Store) SetCursor(ctx context.Context, cursor string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('sync_cursor', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			cursor)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// PendingCount reports how many records are waiting to be pushed,
// dirty rows and tombstones together. Cheaper than PendingPush when
// only the number is wanted.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	total := 0
	for _, table := range []string{"splits", "days", "exercises", "sets", "completed_days", "profile"} {
		var n int
		row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE dirty = 1`, table))
		if err := row.Scan(&n); err != nil {
			return 0, fmt.Errorf("counting dirty %s: %w", table, err)
		}
		total += n
	}
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstones`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tombstones: %w", err)
	}
	return total + n, nil
}
