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

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PutSplit saves a split and its whole subtree in one transaction.
// Missing identifiers are minted, parent references are rewired, and
// only rows whose content actually changed get a new timestamp and a
// dirty mark, so unchanged records keep their sync history. Rows
// present in the stored tree but absent from the given one are removed
// and tombstoned. Activation state cannot be changed here; that is
// ActivateSplit's job.
func (s *Store) PutSplit(ctx context.Context, split models.Split) (models.Split, error) {
	now := time.Now()
	normalizeSplit(&split, now)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadSplitTree(ctx, tx, split.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			split.IsActive = existing.IsActive
			split.StartDate = existing.StartDate
		} else {
			split.IsActive = false
			split.StartDate = nil
		}
		return reconcileSplitTree(ctx, tx, existing, &split, now)
	})
	if err != nil {
		return models.Split{}, fmt.Errorf("saving split: %w", err)
	}
	return split, nil
}

// DeleteSplit removes a split and its owned subtree, tombstoning every
// record so the deletes propagate on the next push.
func (s *Store) DeleteSplit(ctx context.Context, id uuid.UUID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadSplitTree(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		now := time.Now()
		if err := tombstoneSplitTree(ctx, tx, *existing, now); err != nil {
			return err
		}
		// Children go with the split via FK cascade.
		_, err = tx.ExecContext(ctx, `DELETE FROM splits WHERE id = ?`, id.String())
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting split: %w", err)
	}
	return nil
}

// ActivateSplit makes the given split the single active one and resets
// the rotation to day 1 as of now. The deactivate-all, activate-one,
// and pointer-reset steps run in one transaction, so a crash can never
// leave two active splits behind.
func (s *Store) ActivateSplit(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE splits SET is_active = 0, updated_at = ?, dirty = 1
			 WHERE is_active = 1 AND id != ?`,
			fmtTime(now), id.String())
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE splits SET is_active = 1,
			        start_date = COALESCE(start_date, ?),
			        updated_at = ?, dirty = 1
			 WHERE id = ?`,
			fmtTime(now), fmtTime(now), id.String())
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

		p, err := loadProfile(ctx, tx)
		if err != nil {
			return err
		}
		p.DayPosition = 1
		p.PositionUpdatedAt = now
		p.UpdatedAt = now
		return upsertProfileRow(ctx, tx, p, true)
	})
	if err != nil {
		return fmt.Errorf("activating split: %w", err)
	}
	return nil
}

// DeactivateSplits turns off the rotation entirely.
func (s *Store) DeactivateSplits(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE splits SET is_active = 0, updated_at = ?, dirty = 1 WHERE is_active = 1`,
			fmtTime(time.Now()))
		return err
	})
	if err != nil {
		return fmt.Errorf("deactivating splits: %w", err)
	}
	return nil
}

// SplitByID fetches a split with its full subtree.
func (s *Store) SplitByID(ctx context.Context, id uuid.UUID) (*models.Split, error) {
	split, err := loadSplitTree(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("querying split: %w", err)
	}
	if split == nil {
		return nil, ErrNotFound
	}
	return split, nil
}

// Splits fetches all template splits with their subtrees, by name.
func (s *Store) Splits(ctx context.Context) ([]models.Split, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_active, start_date, updated_at FROM splits ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying splits: %w", err)
	}
	defer rows.Close()

	var splits []models.Split
	for rows.Next() {
		split, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range splits {
		days, err := loadDays(ctx, s.db, splits[i].ID)
		if err != nil {
			return nil, err
		}
		splits[i].Days = days
		splits[i].Sort()
	}
	return splits, nil
}

// ActiveSplit fetches the active split, or nil when no split is active.
func (s *Store) ActiveSplit(ctx context.Context) (*models.Split, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_active, start_date, updated_at FROM splits WHERE is_active = 1`)
	split, err := scanSplit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active split: %w", err)
	}
	days, err := loadDays(ctx, s.db, split.ID)
	if err != nil {
		return nil, err
	}
	split.Days = days
	split.Sort()
	return &split, nil
}

// DayByID fetches a day with its exercises and sets, whether it belongs
// to a split or stands alone as a history snapshot.
func (s *Store) DayByID(ctx context.Context, id uuid.UUID) (*models.Day, error) {
	day, err := loadDay(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("querying day: %w", err)
	}
	return day, nil
}

// --- row scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSplit(r rowScanner) (models.Split, error) {
	var (
		split     models.Split
		id        string
		startDate sql.NullString
		updatedAt string
	)
	if err := r.Scan(&id, &split.Name, &split.IsActive, &startDate, &updatedAt); err != nil {
		return models.Split{}, err
	}
	var err error
	if split.ID, err = scanUUID(id); err != nil {
		return models.Split{}, err
	}
	if split.StartDate, err = parseTimePtr(startDate); err != nil {
		return models.Split{}, err
	}
	if split.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Split{}, err
	}
	return split, nil
}

func scanDay(r rowScanner) (models.Day, error) {
	var (
		day       models.Day
		id        string
		splitID   sql.NullString
		updatedAt string
	)
	if err := r.Scan(&id, &splitID, &day.Name, &day.DayOfSplit, &day.Date, &day.IsRestDay, &updatedAt); err != nil {
		return models.Day{}, err
	}
	var err error
	if day.ID, err = scanUUID(id); err != nil {
		return models.Day{}, err
	}
	if day.SplitID, err = scanNullableUUID(splitID); err != nil {
		return models.Day{}, err
	}
	if day.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Day{}, err
	}
	return day, nil
}

func scanExercise(r rowScanner) (models.Exercise, error) {
	var (
		ex          models.Exercise
		id, dayID   string
		muscleGroup string
		completedAt sql.NullString
		createdAt   string
		updatedAt   string
	)
	if err := r.Scan(&id, &dayID, &ex.Name, &ex.RepGoal, &muscleGroup, &ex.ExerciseOrder,
		&ex.Done, &completedAt, &createdAt, &updatedAt); err != nil {
		return models.Exercise{}, err
	}
	var err error
	if ex.ID, err = scanUUID(id); err != nil {
		return models.Exercise{}, err
	}
	if ex.DayID, err = scanUUID(dayID); err != nil {
		return models.Exercise{}, err
	}
	ex.MuscleGroup = models.MuscleGroup(muscleGroup)
	if ex.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return models.Exercise{}, err
	}
	if ex.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Exercise{}, err
	}
	if ex.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Exercise{}, err
	}
	return ex, nil
}

func scanSet(r rowScanner) (models.Set, error) {
	var (
		set            models.Set
		id, exerciseID string
		createdAt      string
		updatedAt      string
	)
	if err := r.Scan(&id, &exerciseID, &set.WeightKg, &set.Reps, &set.ToFailure, &set.Warmup,
		&set.RestPause, &set.DropSet, &set.Note, &set.Bodyweight, &createdAt, &updatedAt); err != nil {
		return models.Set{}, err
	}
	var err error
	if set.ID, err = scanUUID(id); err != nil {
		return models.Set{}, err
	}
	if set.ExerciseID, err = scanUUID(exerciseID); err != nil {
		return models.Set{}, err
	}
	if set.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Set{}, err
	}
	if set.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Set{}, err
	}
	return set, nil
}

// --- tree loading ---

func loadSplitTree(ctx context.Context, q dbtx, id uuid.UUID) (*models.Split, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, is_active, start_date, updated_at FROM splits WHERE id = ?`,
		id.String())
	split, err := scanSplit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	days, err := loadDays(ctx, q, id)
	if err != nil {
		return nil, err
	}
	split.Days = days
	split.Sort()
	return &split, nil
}

func loadDays(ctx context.Context, q dbtx, splitID uuid.UUID) ([]models.Day, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, split_id, name, day_of_split, date, is_rest_day, updated_at
		 FROM days WHERE split_id = ? ORDER BY day_of_split`,
		splitID.String())
	if err != nil {
		return nil, fmt.Errorf("querying days: %w", err)
	}
	defer rows.Close()

	var days []models.Day
	for rows.Next() {
		day, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning day: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range days {
		if err := loadExercises(ctx, q, &days[i]); err != nil {
			return nil, err
		}
	}
	return days, nil
}

func loadDay(ctx context.Context, q dbtx, id uuid.UUID) (*models.Day, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, split_id, name, day_of_split, date, is_rest_day, updated_at
		 FROM days WHERE id = ?`,
		id.String())
	day, err := scanDay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := loadExercises(ctx, q, &day); err != nil {
		return nil, err
	}
	day.Sort()
	return &day, nil
}

func loadExercises(ctx context.Context, q dbtx, day *models.Day) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, day_id, name, rep_goal, muscle_group, exercise_order, done, completed_at, created_at, updated_at
		 FROM exercises WHERE day_id = ? ORDER BY exercise_order`,
		day.ID.String())
	if err != nil {
		return fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	day.Exercises = nil
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return fmt.Errorf("scanning exercise: %w", err)
		}
		day.Exercises = append(day.Exercises, ex)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range day.Exercises {
		if err := loadSets(ctx, q, &day.Exercises[i]); err != nil {
			return err
		}
	}
	return nil
}

func loadSets(ctx context.Context, q dbtx, ex *models.Exercise) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, exercise_id, weight_kg, reps, to_failure, warmup, rest_pause, drop_set, note, bodyweight, created_at, updated_at
		 FROM sets WHERE exercise_id = ? ORDER BY created_at`,
		ex.ID.String())
	if err != nil {
		return fmt.Errorf("querying sets: %w", err)
	}
	defer rows.Close()

	ex.Sets = nil
	for rows.Next() {
		set, err := scanSet(rows)
		if err != nil {
			return fmt.Errorf("scanning set: %w", err)
		}
		ex.Sets = append(ex.Sets, set)
	}
	return rows.Err()
}

// --- row upserts ---

func upsertSplitRow(ctx context.Context, q dbtx, s models.Split, dirty bool) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO splits (id, name, is_active, start_date, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   is_active = excluded.is_active,
		   start_date = excluded.start_date,
		   updated_at = excluded.updated_at,
		   dirty = excluded.dirty`,
		s.ID.String(), s.Name, s.IsActive, fmtTimePtr(s.StartDate), fmtTime(s.UpdatedAt), dirty)
	if err != nil {
		return fmt.Errorf("upserting split: %w", err)
	}
	return nil
}

func upsertDayRow(ctx context.Context, q dbtx, d models.Day, dirty bool) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO days (id, split_id, name, day_of_split, date, is_rest_day, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   split_id = excluded.split_id,
		   name = excluded.name,
		   day_of_split = excluded.day_of_split,
		   date = excluded.date,
		   is_rest_day = excluded.is_rest_day,
		   updated_at = excluded.updated_at,
		   dirty = excluded.dirty`,
		d.ID.String(), nullableUUID(d.SplitID), d.Name, d.DayOfSplit, d.Date, d.IsRestDay,
		fmtTime(d.UpdatedAt), dirty)
	if err != nil {
		return fmt.Errorf("upserting day: %w", err)
	}
	return nil
}

func upsertExerciseRow(ctx context.Context, q dbtx, e models.Exercise, dirty bool) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO exercises (id, day_id, name, rep_goal, muscle_group, exercise_order, done, completed_at, created_at, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   day_id = excluded.day_id,
		   name = excluded.name,
		   rep_goal = excluded.rep_goal,
		   muscle_group = excluded.muscle_group,
		   exercise_order = excluded.exercise_order,
		   done = excluded.done,
		   completed_at = excluded.completed_at,
		   updated_at = excluded.updated_at,
		   dirty = excluded.dirty`,
		e.ID.String(), e.DayID.String(), e.Name, e.RepGoal, string(e.MuscleGroup), e.ExerciseOrder,
		e.Done, fmtTimePtr(e.CompletedAt), fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt), dirty)
	if err != nil {
		return fmt.Errorf("upserting exercise: %w", err)
	}
	return nil
}

func upsertSetRow(ctx context.Context, q dbtx, st models.Set, dirty bool) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO sets (id, exercise_id, weight_kg, reps, to_failure, warmup, rest_pause, drop_set, note, bodyweight, created_at, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   exercise_id = excluded.exercise_id,
		   weight_kg = excluded.weight_kg,
		   reps = excluded.reps,
		   to_failure = excluded.to_failure,
		   warmup = excluded.warmup,
		   rest_pause = excluded.rest_pause,
		   drop_set = excluded.drop_set,
		   note = excluded.note,
		   bodyweight = excluded.bodyweight,
		   updated_at = excluded.updated_at,
		   dirty = excluded.dirty`,
		st.ID.String(), st.ExerciseID.String(), st.WeightKg, st.Reps, st.ToFailure, st.Warmup,
		st.RestPause, st.DropSet, st.Note, st.Bodyweight, fmtTime(st.CreatedAt), fmtTime(st.UpdatedAt), dirty)
	if err != nil {
		return fmt.Errorf("upserting set: %w", err)
	}
	return nil
}

// --- reconcile ---

// normalizeSplit mints missing identifiers, rewires parent references,
// and defaults creation timestamps.
func normalizeSplit(split *models.Split, now time.Time) {
	if split.ID == uuid.Nil {
		split.ID = uuid.New()
	}
	for i := range split.Days {
		day := &split.Days[i]
		if day.ID == uuid.Nil {
			day.ID = uuid.New()
		}
		day.SplitID = split.ID
		for j := range day.Exercises {
			ex := &day.Exercises[j]
			if ex.ID == uuid.Nil {
				ex.ID = uuid.New()
			}
			ex.DayID = day.ID
			if ex.CreatedAt.IsZero() {
				ex.CreatedAt = now
			}
			if g, ok := models.NormalizeMuscleGroup(string(ex.MuscleGroup)); ok {
				ex.MuscleGroup = g
			}
			for k := range ex.Sets {
				set := &ex.Sets[k]
				if set.ID == uuid.Nil {
					set.ID = uuid.New()
				}
				set.ExerciseID = ex.ID
				if set.CreatedAt.IsZero() {
					set.CreatedAt = now
				}
			}
		}
	}
}

func reconcileSplitTree(ctx context.Context, tx *sql.Tx, old, split *models.Split, now time.Time) error {
	oldDays := make(map[uuid.UUID]models.Day)
	oldExercises := make(map[uuid.UUID]models.Exercise)
	oldSets := make(map[uuid.UUID]models.Set)
	if old != nil {
		for _, d := range old.Days {
			oldDays[d.ID] = d
			for _, e := range d.Exercises {
				oldExercises[e.ID] = e
				for _, st := range e.Sets {
					oldSets[st.ID] = st
				}
			}
		}
	}

	if old == nil || old.Name != split.Name {
		split.UpdatedAt = now
		if err := upsertSplitRow(ctx, tx, *split, true); err != nil {
			return err
		}
	} else {
		split.UpdatedAt = old.UpdatedAt
	}

	seen := make(map[uuid.UUID]bool)
	for i := range split.Days {
		day := &split.Days[i]
		seen[day.ID] = true
		if oldDay, ok := oldDays[day.ID]; !ok || !dayScalarEqual(oldDay, *day) {
			day.UpdatedAt = now
			if err := upsertDayRow(ctx, tx, *day, true); err != nil {
				return err
			}
		} else {
			day.UpdatedAt = oldDay.UpdatedAt
		}

		for j := range day.Exercises {
			ex := &day.Exercises[j]
			seen[ex.ID] = true
			if oldEx, ok := oldExercises[ex.ID]; !ok || !exerciseScalarEqual(oldEx, *ex) {
				ex.UpdatedAt = now
				if err := upsertExerciseRow(ctx, tx, *ex, true); err != nil {
					return err
				}
			} else {
				ex.UpdatedAt = oldEx.UpdatedAt
			}

			for k := range ex.Sets {
				set := &ex.Sets[k]
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
	}

	// Remove rows that fell out of the tree, tombstoning each one.
	for id, oldDay := range oldDays {
		if seen[id] {
			continue
		}
		if err := tombstoneDayTree(ctx, tx, oldDay, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("deleting day: %w", err)
		}
	}
	for id, oldEx := range oldExercises {
		if seen[id] || !seen[oldEx.DayID] {
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

	// A re-added id supersedes any stale tombstone (undo flows).
	for id := range seen {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, id.String()); err != nil {
			return fmt.Errorf("clearing tombstone: %w", err)
		}
	}
	return nil
}

func dayScalarEqual(a, b models.Day) bool {
	return a.Name == b.Name && a.DayOfSplit == b.DayOfSplit &&
		a.Date == b.Date && a.IsRestDay == b.IsRestDay && a.SplitID == b.SplitID
}

func exerciseScalarEqual(a, b models.Exercise) bool {
	return a.Name == b.Name && a.RepGoal == b.RepGoal && a.MuscleGroup == b.MuscleGroup &&
		a.ExerciseOrder == b.ExerciseOrder && a.Done == b.Done &&
		a.DayID == b.DayID && timePtrEqual(a.CompletedAt, b.CompletedAt)
}

func setScalarEqual(a, b models.Set) bool {
	return a.WeightKg == b.WeightKg && a.Reps == b.Reps && a.ToFailure == b.ToFailure &&
		a.Warmup == b.Warmup && a.RestPause == b.RestPause && a.DropSet == b.DropSet &&
		a.Note == b.Note && a.Bodyweight == b.Bodyweight && a.ExerciseID == b.ExerciseID
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// --- tombstones ---

func insertTombstone(ctx context.Context, q dbtx, kind string, id uuid.UUID, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR REPLACE INTO tombstones (id, kind, deleted_at) VALUES (?, ?, ?)`,
		id.String(), kind, fmtTime(at))
	if err != nil {
		return fmt.Errorf("inserting tombstone: %w", err)
	}
	return nil
}

func tombstoneSplitTree(ctx context.Context, q dbtx, split models.Split, at time.Time) error {
	if err := insertTombstone(ctx, q, "split", split.ID, at); err != nil {
		return err
	}
	for _, day := range split.Days {
		if err := tombstoneDayTree(ctx, q, day, at); err != nil {
			return err
		}
	}
	return nil
}

func tombstoneDayTree(ctx context.Context, q dbtx, day models.Day, at time.Time) error {
	if err := insertTombstone(ctx, q, "day", day.ID, at); err != nil {
		return err
	}
	for _, ex := range day.Exercises {
		if err := tombstoneExerciseTree(ctx, q, ex, at); err != nil {
			return err
		}
	}
	return nil
}

func tombstoneExerciseTree(ctx context.Context, q dbtx, ex models.Exercise, at time.Time) error {
	if err := insertTombstone(ctx, q, "exercise", ex.ID, at); err != nil {
		return err
	}
	for _, st := range ex.Sets {
		if err := insertTombstone(ctx, q, "set", st.ID, at); err != nil {
			return err
		}
	}
	return nil
}
