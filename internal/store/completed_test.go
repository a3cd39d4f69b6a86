package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
)

func sampleCompletedDay(date string) models.CompletedDay {
	return models.CompletedDay{
		Date: date,
		Day: models.Day{
			Name: "Push",
			Date: date,
			Exercises: []models.Exercise{
				{
					Name:          "Bench Press",
					MuscleGroup:   models.MuscleChest,
					ExerciseOrder: 1,
					Done:          true,
					Sets:          []models.Set{{WeightKg: 80, Reps: 5}},
				},
			},
		},
	}
}

// TestPutCompletedDayRoundTrip verifies the snapshot comes back whole
// and detached from any split.
func TestPutCompletedDayRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.PutCompletedDay(ctx, sampleCompletedDay("2025-06-01"))
	if err != nil {
		t.Fatalf("PutCompletedDay: %v", err)
	}

	got, err := s.CompletedDayByDate(ctx, "2025-06-01")
	if err != nil {
		t.Fatalf("CompletedDayByDate: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("id = %s, want %s", got.ID, saved.ID)
	}
	if got.Day.SplitID != uuid.Nil {
		t.Errorf("snapshot day still attached to split %s", got.Day.SplitID)
	}
	if len(got.Day.Exercises) != 1 || len(got.Day.Exercises[0].Sets) != 1 {
		t.Fatalf("snapshot tree incomplete: %+v", got.Day)
	}
	if !got.Day.Exercises[0].Done {
		t.Error("exercise done flag lost in snapshot")
	}
}

// TestPutCompletedDayRetires verifies the one-entry-per-date rule:
// completing the same date again replaces the old entry and tombstones
// it so the replacement propagates.
func TestPutCompletedDayRetires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.PutCompletedDay(ctx, sampleCompletedDay("2025-06-01"))
	if err != nil {
		t.Fatalf("PutCompletedDay first: %v", err)
	}
	second, err := s.PutCompletedDay(ctx, sampleCompletedDay("2025-06-01"))
	if err != nil {
		t.Fatalf("PutCompletedDay second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("second entry reused the first id")
	}

	all, err := s.CompletedDays(ctx)
	if err != nil {
		t.Fatalf("CompletedDays: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d entries for one date, want 1", len(all))
	}
	if all[0].ID != second.ID {
		t.Errorf("surviving entry = %s, want %s", all[0].ID, second.ID)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, ok := snap.Tombstones[first.ID]; !ok {
		t.Error("retired entry not tombstoned")
	}

	// The retired snapshot tree must be gone too.
	if _, err := s.DayByID(ctx, first.Day.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("retired snapshot day still present: %v", err)
	}
}

// TestCompletedDaysBetween verifies range queries over the history.
func TestCompletedDaysBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, date := range []string{"2025-06-01", "2025-06-03", "2025-06-07"} {
		if _, err := s.PutCompletedDay(ctx, sampleCompletedDay(date)); err != nil {
			t.Fatalf("PutCompletedDay %s: %v", date, err)
		}
	}

	got, err := s.CompletedDaysBetween(ctx, "2025-06-02", "2025-06-06")
	if err != nil {
		t.Fatalf("CompletedDaysBetween: %v", err)
	}
	if len(got) != 1 || got[0].Date != "2025-06-03" {
		t.Fatalf("got %+v, want only 2025-06-03", got)
	}

	all, err := s.CompletedDays(ctx)
	if err != nil {
		t.Fatalf("CompletedDays: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	if all[0].Date != "2025-06-07" {
		t.Errorf("history not newest-first: %s", all[0].Date)
	}
}

// TestDeleteCompletedDay verifies the entry, its snapshot rows, and the
// tombstone all land where they should.
func TestDeleteCompletedDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.PutCompletedDay(ctx, sampleCompletedDay("2025-06-01"))
	if err != nil {
		t.Fatalf("PutCompletedDay: %v", err)
	}
	if err := s.DeleteCompletedDay(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteCompletedDay: %v", err)
	}

	if _, err := s.CompletedDayByDate(ctx, "2025-06-01"); !errors.Is(err, ErrNotFound) {
		t.Errorf("entry still present: %v", err)
	}
	if _, err := s.DayByID(ctx, saved.Day.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("snapshot day still present: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, ok := snap.Tombstones[saved.ID]; !ok {
		t.Error("deleted entry not tombstoned")
	}

	if err := s.DeleteCompletedDay(ctx, saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v, want ErrNotFound", err)
	}
}
