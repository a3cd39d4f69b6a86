package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/schedule"
)

// TodayDay resolves the rotation day due now, applying any pending
// calendar rollover first. Both the day and the position are nil/zero
// when no split is active; the day alone can be nil when the rotation
// has a gap at the current position.
func (s *Store) TodayDay(ctx context.Context, now time.Time) (*models.Day, int, error) {
	p, err := s.RolloverPosition(ctx, now)
	if err != nil {
		return nil, 0, err
	}
	active, err := s.ActiveSplit(ctx)
	if err != nil {
		return nil, 0, err
	}
	if active == nil {
		return nil, 0, nil
	}
	return active.DayAt(p.DayPosition), p.DayPosition, nil
}

// RolloverPosition advances the rotation pointer by the calendar days
// elapsed since it was last moved. The profile is written only when the
// position actually changes; an unchanged position keeps its original
// reference date, and the modular step stays correct because later
// rollovers count elapsed days from that same reference.
func (s *Store) RolloverPosition(ctx context.Context, now time.Time) (models.Profile, error) {
	var p models.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = loadProfile(ctx, tx)
		if err != nil {
			return err
		}
		var splitLen int
		row := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM days d JOIN splits sp ON d.split_id = sp.id WHERE sp.is_active = 1`)
		if err := row.Scan(&splitLen); err != nil {
			return err
		}
		next := schedule.Advance(p.PositionUpdatedAt, now, p.DayPosition, splitLen)
		if next == p.DayPosition {
			return nil
		}
		p.DayPosition = next
		p.PositionUpdatedAt = now
		p.UpdatedAt = now
		return upsertProfileRow(ctx, tx, p, true)
	})
	if err != nil {
		return models.Profile{}, fmt.Errorf("rolling over position: %w", err)
	}
	return p, nil
}

// CompleteDay finishes a workout: it snapshots the day into the history
// under now's calendar date, clears the template's check-off state for
// the next cycle, and advances the streak. Everything happens in one
// transaction, so a crash cannot record the workout without the streak
// or the other way round.
func (s *Store) CompleteDay(ctx context.Context, dayID uuid.UUID, now time.Time) (models.CompletedDay, models.Profile, error) {
	var (
		cd models.CompletedDay
		p  models.Profile
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		day, err := loadDay(ctx, tx, dayID)
		if err != nil {
			return err
		}
		cd, p, err = completeLoadedDay(ctx, tx, day, now)
		return err
	})
	if err != nil {
		return models.CompletedDay{}, models.Profile{}, fmt.Errorf("completing day: %w", err)
	}
	return cd, p, nil
}

// completeLoadedDay is the shared completion body: history snapshot,
// template reset, streak advance. The day's check-off state is captured
// by the snapshot first and cleared after.
func completeLoadedDay(ctx context.Context, tx *sql.Tx, day *models.Day, now time.Time) (models.CompletedDay, models.Profile, error) {
	cd := models.CompletedDay{Date: models.FormatDate(now), Day: day.Clone()}
	normalizeCompletedDay(&cd, now)
	if err := putCompletedDayTx(ctx, tx, &cd, now); err != nil {
		return models.CompletedDay{}, models.Profile{}, err
	}

	// Template days start the next cycle unchecked. Snapshot days
	// keep their state; they are the history.
	if day.SplitID != uuid.Nil {
		for i := range day.Exercises {
			ex := &day.Exercises[i]
			if !ex.Done && ex.CompletedAt == nil {
				continue
			}
			ex.Done = false
			ex.CompletedAt = nil
			ex.UpdatedAt = now
			if err := upsertExerciseRow(ctx, tx, *ex, true); err != nil {
				return models.CompletedDay{}, models.Profile{}, err
			}
		}
	}

	p, err := loadProfile(ctx, tx)
	if err != nil {
		return models.CompletedDay{}, models.Profile{}, err
	}
	streak := schedule.AdvanceStreak(schedule.StreakFromProfile(p), now)
	updated := p
	streak.Apply(&updated)
	if !profileScalarEqual(p, updated) {
		updated.UpdatedAt = now
		if err := upsertProfileRow(ctx, tx, updated, true); err != nil {
			return models.CompletedDay{}, models.Profile{}, err
		}
	}
	return cd, updated, nil
}

// ErrSessionClosed reports an edit against a session that was already
// completed or discarded.
var ErrSessionClosed = errors.New("session closed")

// Session is a live workout over one day. Edits apply only to the
// in-memory tree; Complete persists the whole batch in a single
// transaction. A crash mid-workout loses the session's edits and
// nothing else, and a failed Complete keeps them for retry.
type Session struct {
	st  *Store
	day *models.Day
}

// BeginSession loads the day tree for in-memory editing.
func (s *Store) BeginSession(ctx context.Context, dayID uuid.UUID) (*Session, error) {
	day, err := loadDay(ctx, s.db, dayID)
	if err != nil {
		return nil, fmt.Errorf("beginning session: %w", err)
	}
	return &Session{st: s, day: day}, nil
}

// Day exposes the live tree. Session edits are visible here immediately,
// before anything reaches the store.
func (w *Session) Day() *models.Day {
	return w.day
}

// SetExerciseDone checks an exercise off (or back on) in memory.
func (w *Session) SetExerciseDone(id uuid.UUID, done bool, now time.Time) error {
	if w.day == nil {
		return ErrSessionClosed
	}
	ex := w.exercise(id)
	if ex == nil {
		return ErrNotFound
	}
	if ex.Done == done {
		return nil
	}
	ex.Done = done
	ex.CompletedAt = nil
	if done {
		ex.CompletedAt = &now
	}
	return nil
}

// AddSet logs a set under an exercise in memory.
func (w *Session) AddSet(exerciseID uuid.UUID, set models.Set) (models.Set, error) {
	if w.day == nil {
		return models.Set{}, ErrSessionClosed
	}
	ex := w.exercise(exerciseID)
	if ex == nil {
		return models.Set{}, ErrNotFound
	}
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	set.ExerciseID = exerciseID
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now()
	}
	ex.Sets = append(ex.Sets, set)
	return set, nil
}

// UpdateSet rewrites a logged set's values in memory. Parentage and
// creation time are pinned to the existing entry.
func (w *Session) UpdateSet(set models.Set) error {
	if w.day == nil {
		return ErrSessionClosed
	}
	for i := range w.day.Exercises {
		ex := &w.day.Exercises[i]
		for j := range ex.Sets {
			if ex.Sets[j].ID != set.ID {
				continue
			}
			set.ExerciseID = ex.Sets[j].ExerciseID
			set.CreatedAt = ex.Sets[j].CreatedAt
			ex.Sets[j] = set
			return nil
		}
	}
	return ErrNotFound
}

// DeleteSet removes a logged set from the in-memory tree. Complete
// tombstones it if it was already persisted.
func (w *Session) DeleteSet(id uuid.UUID) error {
	if w.day == nil {
		return ErrSessionClosed
	}
	for i := range w.day.Exercises {
		ex := &w.day.Exercises[i]
		for j := range ex.Sets {
			if ex.Sets[j].ID != id {
				continue
			}
			ex.Sets = append(ex.Sets[:j], ex.Sets[j+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Complete ends the workout: it writes the batched edits, snapshots the
// day into the history, clears the template's check-off state, and
// advances the streak, all in one transaction. The session is closed
// only on success; a failed Complete can be retried.
func (w *Session) Complete(ctx context.Context, now time.Time) (models.CompletedDay, models.Profile, error) {
	if w.day == nil {
		return models.CompletedDay{}, models.Profile{}, fmt.Errorf("completing session: %w", ErrSessionClosed)
	}
	var (
		cd models.CompletedDay
		p  models.Profile
	)
	err := w.st.withTx(ctx, func(tx *sql.Tx) error {
		old, err := loadDay(ctx, tx, w.day.ID)
		if errors.Is(err, ErrNotFound) {
			// The template vanished under us (a pulled deletion). The
			// live workout wins; reconciling against nothing
			// resurrects the day.
			old = nil
		} else if err != nil {
			return err
		}
		if err := reconcileDayTree(ctx, tx, old, w.day, now); err != nil {
			return err
		}
		cd, p, err = completeLoadedDay(ctx, tx, w.day, now)
		return err
	})
	if err != nil {
		return models.CompletedDay{}, models.Profile{}, fmt.Errorf("completing session: %w", err)
	}
	w.day = nil
	return cd, p, nil
}

// Discard drops the session's edits without touching the store.
func (w *Session) Discard() {
	w.day = nil
}

func (w *Session) exercise(id uuid.UUID) *models.Exercise {
	for i := range w.day.Exercises {
		if w.day.Exercises[i].ID == id {
			return &w.day.Exercises[i]
		}
	}
	return nil
}

// reconcileDayTree diffs a session's day against its stored state and
// persists the difference: changed rows are upserted dirty, vanished
// sets and exercises are tombstoned and deleted.
func reconcileDayTree(ctx context.Context, tx *sql.Tx, old, day *models.Day, now time.Time) error {
	oldExercises := make(map[uuid.UUID]models.Exercise)
	oldSets := make(map[uuid.UUID]models.Set)
	if old != nil {
		for _, e := range old.Exercises {
			oldExercises[e.ID] = e
			for _, st := range e.Sets {
				oldSets[st.ID] = st
			}
		}
	}

	if old == nil || !dayScalarEqual(*old, *day) {
		day.UpdatedAt = now
		if err := upsertDayRow(ctx, tx, *day, true); err != nil {
			return err
		}
	} else {
		day.UpdatedAt = old.UpdatedAt
	}

	seen := map[uuid.UUID]bool{day.ID: true}
	for i := range day.Exercises {
		ex := &day.Exercises[i]
		seen[ex.ID] = true
		if oldEx, ok := oldExercises[ex.ID]; !ok || !exerciseScalarEqual(oldEx, *ex) {
			ex.UpdatedAt = now
			if err := upsertExerciseRow(ctx, tx, *ex, true); err != nil {
				return err
			}
		} else {
			ex.UpdatedAt = oldEx.UpdatedAt
		}

		for j := range ex.Sets {
			set := &ex.Sets[j]
			seen[set.ID] = true
			if oldSet, ok := oldSets[set.ID]; !ok || !setScalarEqual(oldSet, *set) {
				set.UpdatedAt = now
				if err := upsertSetRow(ctx, tx, *set, true); err != nil {
					return err
				}
			} else {
				set.UpdatedAt = oldSet.UpdatedAt
			}
		}
	}

	for id, oldEx := range oldExercises {
		if seen[id] {
			continue
		}
		if err := tombstoneExerciseTree(ctx, tx, oldEx, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM exercises WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("deleting exercise: %w", err)
		}
	}
	for id, oldSet := range oldSets {
		if seen[id] || !seen[oldSet.ExerciseID] {
			continue
		}
		if err := insertTombstone(ctx, tx, "set", id, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sets WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("deleting set: %w", err)
		}
	}

	for id := range seen {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("clearing tombstone: %w", err)
		}
	}
	return nil
}

// SetExerciseDone checks an exercise off (or back on) mid-workout.
func (s *Store) SetExerciseDone(ctx context.Context, id uuid.UUID, done bool, now time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var cur bool
		row := tx.QueryRowContext(ctx, `SELECT done FROM exercises WHERE id = ?`, id.String())
		if err := row.Scan(&cur); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if cur == done {
			return nil
		}
		var completedAt *time.Time
		if done {
			completedAt = &now
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE exercises SET done = ?, completed_at = ?, updated_at = ?, dirty = 1 WHERE id = ?`,
			done, fmtTimePtr(completedAt), fmtTime(now), id.String())
		return err
	})
	if err != nil {
		return fmt.Errorf("marking exercise done: %w", err)
	}
	return nil
}

// AddSet logs a set under an exercise mid-workout.
func (s *Store) AddSet(ctx context.Context, exerciseID uuid.UUID, set models.Set) (models.Set, error) {
	now := time.Now()
	if set.ID == uuid.Nil {
		set.ID = uuid.New()
	}
	set.ExerciseID = exerciseID
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	set.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		row := tx.QueryRowContext(ctx, `SELECT 1 FROM exercises WHERE id = ?`, exerciseID.String())
		if err := row.Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := upsertSetRow(ctx, tx, set, true); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, set.ID.String())
		return err
	})
	if err != nil {
		return models.Set{}, fmt.Errorf("adding set: %w", err)
	}
	return set, nil
}

// UpdateSet rewrites a logged set's values. Parentage and creation time
// are pinned to the stored row, and an unchanged set is a no-op.
func (s *Store) UpdateSet(ctx context.Context, set models.Set) (models.Set, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, exercise_id, weight_kg, reps, to_failure, warmup, rest_pause, drop_set, note, bodyweight, created_at, updated_at
			 FROM sets WHERE id = ?`, set.ID.String())
		existing, err := scanSet(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		set.ExerciseID = existing.ExerciseID
		set.CreatedAt = existing.CreatedAt
		if setScalarEqual(existing, set) {
			set = existing
			return nil
		}
		set.UpdatedAt = time.Now()
		return upsertSetRow(ctx, tx, set, true)
	})
	if err != nil {
		return models.Set{}, fmt.Errorf("updating set: %w", err)
	}
	return set, nil
}

// DeleteSet removes a logged set and tombstones it.
func (s *Store) DeleteSet(ctx context.Context, id uuid.UUID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sets WHERE id = ?`, id.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return insertTombstone(ctx, tx, "set", id, time.Now())
	})
	if err != nil {
		return fmt.Errorf("deleting set: %w", err)
	}
	return nil
}
