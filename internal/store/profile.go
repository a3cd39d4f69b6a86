package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude/splitlog/internal/models"
)

// Profile fetches the singleton user profile. The row is seeded during
// migration, so it always exists.
func (s *Store) Profile(ctx context.Context) (models.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, weight_unit, height_cm, weight_kg, age, current_streak, longest_streak,
		        last_workout_date, rest_days_per_week, streak_paused, day_position,
		        position_updated_at, updated_at
		 FROM profile WHERE id = ?`,
		models.ProfileID.String())
	p, err := scanProfile(row)
	if err != nil {
		return models.Profile{}, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}

// PutProfile saves the user profile. The write is skipped entirely when
// nothing changed, so a no-op save does not disturb sync history.
func (s *Store) PutProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	p.ID = models.ProfileID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadProfile(ctx, tx)
		if err != nil {
			return err
		}
		if profileScalarEqual(existing, p) {
			p = existing
			return nil
		}
		p.UpdatedAt = time.Now()
		return upsertProfileRow(ctx, tx, p, true)
	})
	if err != nil {
		return models.Profile{}, fmt.Errorf("saving profile: %w", err)
	}
	return p, nil
}

// SetStreakPaused toggles the streak freeze. Resuming counts as a fresh
// start: the last-workout marker moves to now so the streak is not
// broken by the paused stretch itself.
func (s *Store) SetStreakPaused(ctx context.Context, paused bool) (models.Profile, error) {
	var p models.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadProfile(ctx, tx)
		if err != nil {
			return err
		}
		if existing.StreakPaused == paused {
			p = existing
			return nil
		}
		now := time.Now()
		p = existing
		p.StreakPaused = paused
		if !paused && p.CurrentStreak > 0 {
			p.LastWorkoutDate = &now
		}
		p.UpdatedAt = now
		return upsertProfileRow(ctx, tx, p, true)
	})
	if err != nil {
		return models.Profile{}, fmt.Errorf("toggling streak pause: %w", err)
	}
	return p, nil
}

func loadProfile(ctx context.Context, q dbtx) (models.Profile, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, weight_unit, height_cm, weight_kg, age, current_streak, longest_streak,
		        last_workout_date, rest_days_per_week, streak_paused, day_position,
		        position_updated_at, updated_at
		 FROM profile WHERE id = ?`,
		models.ProfileID.String())
	return scanProfile(row)
}

func scanProfile(r rowScanner) (models.Profile, error) {
	var (
		p               models.Profile
		id, unit        string
		lastWorkout     sql.NullString
		positionUpdated string
		updatedAt       string
	)
	if err := r.Scan(&id, &unit, &p.HeightCm, &p.WeightKg, &p.Age, &p.CurrentStreak,
		&p.LongestStreak, &lastWorkout, &p.RestDaysPerWeek, &p.StreakPaused,
		&p.DayPosition, &positionUpdated, &updatedAt); err != nil {
		return models.Profile{}, err
	}
	var err error
	if p.ID, err = scanUUID(id); err != nil {
		return models.Profile{}, err
	}
	p.WeightUnit = models.WeightUnit(unit)
	if p.LastWorkoutDate, err = parseTimePtr(lastWorkout); err != nil {
		return models.Profile{}, err
	}
	if p.PositionUpdatedAt, err = parseTime(positionUpdated); err != nil {
		return models.Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func upsertProfileRow(ctx context.Context, q dbtx, p models.Profile, dirty bool) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO profile (id, weight_unit, height_cm, weight_kg, age, current_streak,
		        longest_streak, last_workout_date, rest_days_per_week, streak_paused,
		        day_position, position_updated_at, updated_at, dirty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   weight_unit = excluded.weight_unit,
		   height_cm = excluded.height_cm,
		   weight_kg = excluded.weight_kg,
		   age = excluded.age,
		   current_streak = excluded.current_streak,
		   longest_streak = excluded.longest_streak,
		   last_workout_date = excluded.last_workout_date,
		   rest_days_per_week = excluded.rest_days_per_week,
		   streak_paused = excluded.streak_paused,
		   day_position = excluded.day_position,
		   position_updated_at = excluded.position_updated_at,
		   updated_at = excluded.updated_at,
		   dirty = excluded.dirty`,
		p.ID.String(), string(p.WeightUnit), p.HeightCm, p.WeightKg, p.Age, p.CurrentStreak,
		p.LongestStreak, fmtTimePtr(p.LastWorkoutDate), p.RestDaysPerWeek, p.StreakPaused,
		p.DayPosition, fmtTime(p.PositionUpdatedAt), fmtTime(p.UpdatedAt), dirty)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

func profileScalarEqual(a, b models.Profile) bool {
	return a.WeightUnit == b.WeightUnit && a.HeightCm == b.HeightCm && a.WeightKg == b.WeightKg &&
		a.Age == b.Age && a.CurrentStreak == b.CurrentStreak && a.LongestStreak == b.LongestStreak &&
		timePtrEqual(a.LastWorkoutDate, b.LastWorkoutDate) &&
		a.RestDaysPerWeek == b.RestDaysPerWeek && a.StreakPaused == b.StreakPaused &&
		a.DayPosition == b.DayPosition && a.PositionUpdatedAt.Equal(b.PositionUpdatedAt)
}
