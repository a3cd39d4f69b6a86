package interchange

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
)

func sampleSplit() models.Split {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	split := models.Split{
		ID:        uuid.New(),
		Name:      "Upper Lower",
		IsActive:  true,
		StartDate: &start,
		Days: []models.Day{
			{
				ID:         uuid.New(),
				Name:       "Upper",
				DayOfSplit: 1,
				Exercises: []models.Exercise{
					{
						ID:            uuid.New(),
						Name:          "Bench Press",
						RepGoal:       "5x5",
						MuscleGroup:   models.MuscleChest,
						ExerciseOrder: 1,
						Sets: []models.Set{
							{ID: uuid.New(), WeightKg: 80, Reps: 5, CreatedAt: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)},
							{ID: uuid.New(), WeightKg: 85, Reps: 3, ToFailure: true, CreatedAt: time.Date(2025, 3, 2, 10, 5, 0, 0, time.UTC)},
						},
					},
					{
						ID:            uuid.New(),
						Name:          "Row",
						RepGoal:       "8-12",
						MuscleGroup:   models.MuscleBack,
						ExerciseOrder: 2,
					},
				},
			},
			{ID: uuid.New(), Name: "Lower", DayOfSplit: 2},
			{ID: uuid.New(), Name: "Rest", DayOfSplit: 3, IsRestDay: true},
		},
	}
	for i := range split.Days {
		split.Days[i].SplitID = split.ID
		for j := range split.Days[i].Exercises {
			split.Days[i].Exercises[j].DayID = split.Days[i].ID
			for k := range split.Days[i].Exercises[j].Sets {
				split.Days[i].Exercises[j].Sets[k].ExerciseID = split.Days[i].Exercises[j].ID
			}
		}
	}
	return split
}

// collectIDs gathers every identifier in the tree.
func collectIDs(s models.Split) map[uuid.UUID]bool {
	ids := map[uuid.UUID]bool{s.ID: true}
	for _, d := range s.Days {
		ids[d.ID] = true
		for _, e := range d.Exercises {
			ids[e.ID] = true
			for _, st := range e.Sets {
				ids[st.ID] = true
			}
		}
	}
	return ids
}

// assertSameShape compares two split trees structurally, ignoring
// identifiers and timestamps.
func assertSameShape(t *testing.T, got, want models.Split) {
	t.Helper()
	if got.Name != want.Name {
		t.Errorf("name = %q, want %q", got.Name, want.Name)
	}
	if len(got.Days) != len(want.Days) {
		t.Fatalf("days = %d, want %d", len(got.Days), len(want.Days))
	}
	for i := range want.Days {
		gd, wd := got.Days[i], want.Days[i]
		if gd.Name != wd.Name || gd.DayOfSplit != wd.DayOfSplit || gd.IsRestDay != wd.IsRestDay {
			t.Errorf("day[%d] = %q/%d/%v, want %q/%d/%v",
				i, gd.Name, gd.DayOfSplit, gd.IsRestDay, wd.Name, wd.DayOfSplit, wd.IsRestDay)
		}
		if len(gd.Exercises) != len(wd.Exercises) {
			t.Fatalf("day[%d] exercises = %d, want %d", i, len(gd.Exercises), len(wd.Exercises))
		}
		for j := range wd.Exercises {
			ge, we := gd.Exercises[j], wd.Exercises[j]
			if ge.Name != we.Name || ge.RepGoal != we.RepGoal || ge.MuscleGroup != we.MuscleGroup || ge.ExerciseOrder != we.ExerciseOrder {
				t.Errorf("day[%d].exercise[%d] = %+v, want %+v", i, j, ge, we)
			}
			if len(ge.Sets) != len(we.Sets) {
				t.Fatalf("day[%d].exercise[%d] sets = %d, want %d", i, j, len(ge.Sets), len(we.Sets))
			}
			for k := range we.Sets {
				gs, ws := ge.Sets[k], we.Sets[k]
				if gs.WeightKg != ws.WeightKg || gs.Reps != ws.Reps || gs.ToFailure != ws.ToFailure || gs.Bodyweight != ws.Bodyweight {
					t.Errorf("day[%d].exercise[%d].set[%d] = %+v, want %+v", i, j, k, gs, ws)
				}
			}
		}
	}
}

// TestRoundTrip exports a split and imports it back: same shape, fresh
// identifiers on every record, never active.
func TestRoundTrip(t *testing.T) {
	orig := sampleSplit()

	data, err := ExportSplit(orig)
	if err != nil {
		t.Fatalf("ExportSplit: %v", err)
	}

	imported, err := ImportSplit(data)
	if err != nil {
		t.Fatalf("ImportSplit: %v", err)
	}

	assertSameShape(t, imported, orig)

	if imported.IsActive {
		t.Error("import produced an active split")
	}
	if imported.StartDate != nil {
		t.Errorf("import kept start date %v", imported.StartDate)
	}

	origIDs := collectIDs(orig)
	for id := range collectIDs(imported) {
		if origIDs[id] {
			t.Errorf("imported tree reuses identifier %s", id)
		}
	}

	// Parent links are rewired to the fresh identifiers.
	for _, d := range imported.Days {
		if d.SplitID != imported.ID {
			t.Errorf("day %q points at split %s, want %s", d.Name, d.SplitID, imported.ID)
		}
		for _, e := range d.Exercises {
			if e.DayID != d.ID {
				t.Errorf("exercise %q points at day %s, want %s", e.Name, e.DayID, d.ID)
			}
			for _, st := range e.Sets {
				if st.ExerciseID != e.ID {
					t.Errorf("set under %q points at exercise %s, want %s", e.Name, st.ExerciseID, e.ID)
				}
			}
		}
	}
}

// TestImportTwiceDisjoint imports the same document twice and expects
// two structurally equal but identifier-disjoint trees.
func TestImportTwiceDisjoint(t *testing.T) {
	data, err := ExportSplit(sampleSplit())
	if err != nil {
		t.Fatalf("ExportSplit: %v", err)
	}

	first, err := ImportSplit(data)
	if err != nil {
		t.Fatalf("first ImportSplit: %v", err)
	}
	second, err := ImportSplit(data)
	if err != nil {
		t.Fatalf("second ImportSplit: %v", err)
	}

	assertSameShape(t, second, first)

	firstIDs := collectIDs(first)
	for id := range collectIDs(second) {
		if firstIDs[id] {
			t.Errorf("both imports carry identifier %s", id)
		}
	}
}

// TestImportValidation rejects structural rule violations with the
// offending field path.
func TestImportValidation(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		field  string
		reason string
	}{
		{
			name:   "missing name",
			doc:    `{"name":"","days":[{"name":"A","dayOfSplit":1,"exercises":[],"isRestDay":false}],"isActive":false}`,
			field:  "name",
			reason: ReasonMissingField,
		},
		{
			name:   "no days",
			doc:    `{"name":"S","days":[],"isActive":false}`,
			field:  "days",
			reason: ReasonMissingField,
		},
		{
			name:   "empty day name",
			doc:    `{"name":"S","days":[{"name":"","dayOfSplit":1,"exercises":[],"isRestDay":false}],"isActive":false}`,
			field:  "days[0].name",
			reason: ReasonMissingField,
		},
		{
			name:   "zero position",
			doc:    `{"name":"S","days":[{"name":"A","dayOfSplit":0,"exercises":[],"isRestDay":false}],"isActive":false}`,
			field:  "days[0].dayOfSplit",
			reason: ReasonTypeMismatch,
		},
		{
			name: "duplicate position",
			doc: `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[],"isRestDay":false},` +
				`{"name":"B","dayOfSplit":1,"exercises":[],"isRestDay":false}],"isActive":false}`,
			field:  "days[1].dayOfSplit",
			reason: ReasonTypeMismatch,
		},
		{
			name:   "empty exercise name",
			doc:    `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[{"name":"","sets":[],"exerciseOrder":1}],"isRestDay":false}],"isActive":false}`,
			field:  "days[0].exercises[0].name",
			reason: ReasonMissingField,
		},
		{
			name:   "unknown muscle group",
			doc:    `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[{"name":"Curl","sets":[],"muscleGroup":"Forearms","exerciseOrder":1}],"isRestDay":false}],"isActive":false}`,
			field:  "days[0].exercises[0].muscleGroup",
			reason: ReasonTypeMismatch,
		},
		{
			name:   "negative reps",
			doc:    `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[{"name":"Curl","sets":[{"weightKg":10,"reps":-1}],"exerciseOrder":1}],"isRestDay":false}],"isActive":false}`,
			field:  "days[0].exercises[0].sets[0].reps",
			reason: ReasonTypeMismatch,
		},
		{
			name:   "negative weight",
			doc:    `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[{"name":"Curl","sets":[{"weightKg":-10,"reps":8}],"exerciseOrder":1}],"isRestDay":false}],"isActive":false}`,
			field:  "days[0].exercises[0].sets[0].weightKg",
			reason: ReasonTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportSplit([]byte(tt.doc))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ImportSplit = %v, want ValidationError", err)
			}
			if verr.Field != tt.field || verr.Reason != tt.reason {
				t.Errorf("error = %s/%s, want %s/%s", verr.Field, verr.Reason, tt.field, tt.reason)
			}
		})
	}
}

// TestImportCorrupt maps decode failures onto the taxonomy: syntax and
// unknown fields are corrupt, wrong types name the field.
func TestImportCorrupt(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		reason string
	}{
		{"truncated", `{"name":"S","days":[`, ReasonCorruptPayload},
		{"not json", `pork chop sandwiches`, ReasonCorruptPayload},
		{"unknown field", `{"name":"S","days":[],"isActive":false,"color":"red"}`, ReasonCorruptPayload},
		{"trailing garbage", `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[],"isRestDay":false}],"isActive":false}{}`, ReasonCorruptPayload},
		{"wrong type", `{"name":"S","days":[{"name":"A","dayOfSplit":"first","exercises":[],"isRestDay":false}],"isActive":false}`, ReasonTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportSplit([]byte(tt.doc))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ImportSplit = %v, want ValidationError", err)
			}
			if verr.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", verr.Reason, tt.reason)
			}
			if tt.reason == ReasonTypeMismatch && !strings.Contains(verr.Field, "dayOfSplit") {
				t.Errorf("field = %q, want path naming dayOfSplit", verr.Field)
			}
		})
	}
}

// TestImportNormalizesMuscleGroups accepts synonyms and case variants.
func TestImportNormalizesMuscleGroups(t *testing.T) {
	doc := `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[` +
		`{"name":"Fly","sets":[],"muscleGroup":"pecs","exerciseOrder":1},` +
		`{"name":"Plank","sets":[],"exerciseOrder":2}` +
		`],"isRestDay":false}],"isActive":false}`

	split, err := ImportSplit([]byte(doc))
	if err != nil {
		t.Fatalf("ImportSplit: %v", err)
	}
	if got := split.Days[0].Exercises[0].MuscleGroup; got != models.MuscleChest {
		t.Errorf("muscle group = %q, want %q", got, models.MuscleChest)
	}
	if got := split.Days[0].Exercises[1].MuscleGroup; got != "" {
		t.Errorf("untagged exercise got muscle group %q", got)
	}
}

// TestImportKeepsSetOrder stamps sets exported without creation times
// so they keep their document order.
func TestImportKeepsSetOrder(t *testing.T) {
	doc := `{"name":"S","days":[{"name":"A","dayOfSplit":1,"exercises":[` +
		`{"name":"Squat","sets":[{"weightKg":100,"reps":5},{"weightKg":110,"reps":3},{"weightKg":120,"reps":1}],"exerciseOrder":1}` +
		`],"isRestDay":false}],"isActive":false}`

	split, err := ImportSplit([]byte(doc))
	if err != nil {
		t.Fatalf("ImportSplit: %v", err)
	}
	sets := split.Days[0].Exercises[0].Sets
	if len(sets) != 3 {
		t.Fatalf("sets = %d, want 3", len(sets))
	}
	for i := 1; i < len(sets); i++ {
		if !sets[i-1].CreatedAt.Before(sets[i].CreatedAt) {
			t.Errorf("set %d stamp %v not before set %d stamp %v",
				i-1, sets[i-1].CreatedAt, i, sets[i].CreatedAt)
		}
	}
	if sets[0].WeightKg != 100 || sets[2].WeightKg != 120 {
		t.Errorf("set order lost: %v then %v", sets[0].WeightKg, sets[2].WeightKg)
	}
}

// TestFileRoundTrip writes and reads a split file, and refuses to touch
// the filesystem once the context is canceled.
func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upper-lower.json")
	orig := sampleSplit()
	ctx := context.Background()

	if err := WriteFile(ctx, path, orig); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(ctx, path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	assertSameShape(t, got, orig)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	blocked := filepath.Join(dir, "never.json")
	if err := WriteFile(canceled, blocked, orig); !errors.Is(err, context.Canceled) {
		t.Fatalf("WriteFile canceled = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(blocked); !errors.Is(err, os.ErrNotExist) {
		t.Error("canceled export created a file")
	}
	if _, err := ReadFile(canceled, path); !errors.Is(err, context.Canceled) {
		t.Fatalf("ReadFile canceled = %v, want context.Canceled", err)
	}
}
