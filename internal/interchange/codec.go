// Package interchange serializes splits to a portable JSON document and
// reads them back. Export preserves identifiers; import never does: the
// whole tree is re-identified before it touches the store, so importing
// the same file twice yields two independent splits and an import can
// never silently overwrite existing records. Imports are all-or-nothing.
package interchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/models"
)

// Validation failure reasons.
const (
	ReasonMissingField   = "missing-field"
	ReasonTypeMismatch   = "type-mismatch"
	ReasonCorruptPayload = "corrupt-payload"
)

// ValidationError reports why a document was rejected. Field is the
// path into the document ("days[1].exercises[0].muscleGroup").
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid split document: %s: %s", e.Field, e.Reason)
}

// splitDoc is the interchange schema. It carries template data only;
// session state (done flags, completion stamps) stays local.
type splitDoc struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Days      []dayDoc   `json:"days"`
	IsActive  bool       `json:"isActive"`
	StartDate *time.Time `json:"startDate,omitempty"`
}

type dayDoc struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	DayOfSplit int           `json:"dayOfSplit"`
	Exercises  []exerciseDoc `json:"exercises"`
	Date       string        `json:"date,omitempty"`
	IsRestDay  bool          `json:"isRestDay"`
}

type exerciseDoc struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Sets          []setDoc  `json:"sets"`
	RepGoal       string    `json:"repGoal,omitempty"`
	MuscleGroup   string    `json:"muscleGroup,omitempty"`
	ExerciseOrder int       `json:"exerciseOrder"`
}

type setDoc struct {
	ID         uuid.UUID `json:"id"`
	WeightKg   float64   `json:"weightKg"`
	Reps       int       `json:"reps"`
	ToFailure  bool      `json:"toFailure,omitempty"`
	Warmup     bool      `json:"warmup,omitempty"`
	RestPause  bool      `json:"restPause,omitempty"`
	DropSet    bool      `json:"dropSet,omitempty"`
	Note       string    `json:"note,omitempty"`
	Bodyweight bool      `json:"bodyweight,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// ExportSplit renders the split as an indented interchange document.
// Identifiers are exported as-is; remapping is the importer's job.
// Days and exercises keep the caller's order; position and order
// fields carry the canonical ordering either way.
func ExportSplit(split models.Split) ([]byte, error) {
	doc := splitDoc{
		ID:        split.ID,
		Name:      split.Name,
		IsActive:  split.IsActive,
		StartDate: split.StartDate,
		Days:      make([]dayDoc, 0, len(split.Days)),
	}
	for _, d := range split.Days {
		dd := dayDoc{
			ID:         d.ID,
			Name:       d.Name,
			DayOfSplit: d.DayOfSplit,
			Date:       d.Date,
			IsRestDay:  d.IsRestDay,
			Exercises:  make([]exerciseDoc, 0, len(d.Exercises)),
		}
		for _, e := range d.Exercises {
			ed := exerciseDoc{
				ID:            e.ID,
				Name:          e.Name,
				RepGoal:       e.RepGoal,
				MuscleGroup:   string(e.MuscleGroup),
				ExerciseOrder: e.ExerciseOrder,
				Sets:          make([]setDoc, 0, len(e.Sets)),
			}
			for _, st := range e.Sets {
				ed.Sets = append(ed.Sets, setDoc{
					ID:         st.ID,
					WeightKg:   st.WeightKg,
					Reps:       st.Reps,
					ToFailure:  st.ToFailure,
					Warmup:     st.Warmup,
					RestPause:  st.RestPause,
					DropSet:    st.DropSet,
					Note:       st.Note,
					Bodyweight: st.Bodyweight,
					CreatedAt:  st.CreatedAt,
				})
			}
			dd.Exercises = append(dd.Exercises, ed)
		}
		doc.Days = append(doc.Days, dd)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding split document: %w", err)
	}
	return data, nil
}

// ImportSplit decodes, validates, and re-identifies a split document.
// The returned split has entirely fresh identifiers and is never
// active; the caller inserts it into the store, which marks the tree
// for push. Any failure rejects the whole document.
func ImportSplit(data []byte) (models.Split, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc splitDoc
	if err := dec.Decode(&doc); err != nil {
		return models.Split{}, decodeError(err)
	}
	// A second JSON value after the document is corruption too.
	if dec.More() {
		return models.Split{}, &ValidationError{Field: "document", Reason: ReasonCorruptPayload}
	}

	if err := validate(doc); err != nil {
		return models.Split{}, err
	}

	split := models.Split{
		ID:   doc.ID,
		Name: doc.Name,
		Days: make([]models.Day, 0, len(doc.Days)),
	}
	now := time.Now()
	for _, dd := range doc.Days {
		day := models.Day{
			ID:         dd.ID,
			Name:       dd.Name,
			DayOfSplit: dd.DayOfSplit,
			Date:       dd.Date,
			IsRestDay:  dd.IsRestDay,
			Exercises:  make([]models.Exercise, 0, len(dd.Exercises)),
		}
		for _, ed := range dd.Exercises {
			group, _ := models.NormalizeMuscleGroup(ed.MuscleGroup)
			ex := models.Exercise{
				ID:            ed.ID,
				Name:          ed.Name,
				RepGoal:       ed.RepGoal,
				MuscleGroup:   group,
				ExerciseOrder: ed.ExerciseOrder,
				Sets:          make([]models.Set, 0, len(ed.Sets)),
			}
			for i, sd := range ed.Sets {
				created := sd.CreatedAt
				if created.IsZero() {
					// Keep document order for sets exported without stamps.
					created = now.Add(time.Duration(i) * time.Millisecond)
				}
				ex.Sets = append(ex.Sets, models.Set{
					ID:         sd.ID,
					WeightKg:   sd.WeightKg,
					Reps:       sd.Reps,
					ToFailure:  sd.ToFailure,
					Warmup:     sd.Warmup,
					RestPause:  sd.RestPause,
					DropSet:    sd.DropSet,
					Note:       sd.Note,
					Bodyweight: sd.Bodyweight,
					CreatedAt:  created,
				})
			}
			day.Exercises = append(day.Exercises, ex)
		}
		split.Days = append(split.Days, day)
	}

	// Fresh identifiers for the whole tree; also forces inactive.
	return split.Clone(), nil
}

// WriteFile exports the split to path. The context is checked at entry
// so a canceled export never touches the filesystem.
func WriteFile(ctx context.Context, path string, split models.Split) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ExportSplit(split)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing split file: %w", err)
	}
	return nil
}

// ReadFile imports a split document from path.
func ReadFile(ctx context.Context, path string) (models.Split, error) {
	if err := ctx.Err(); err != nil {
		return models.Split{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Split{}, fmt.Errorf("reading split file: %w", err)
	}
	return ImportSplit(data)
}

// decodeError maps a JSON decode failure onto the validation taxonomy:
// wrong field types are reported per field, everything else is corrupt.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "document"
		}
		return &ValidationError{Field: field, Reason: ReasonTypeMismatch}
	}
	return &ValidationError{Field: "document", Reason: ReasonCorruptPayload}
}

// validate applies the structural rules: non-empty names, at least one
// day, unique 1-based positions, known muscle groups, non-negative
// reps and weights. Range violations report as type mismatches.
func validate(doc splitDoc) error {
	if doc.Name == "" {
		return &ValidationError{Field: "name", Reason: ReasonMissingField}
	}
	if len(doc.Days) == 0 {
		return &ValidationError{Field: "days", Reason: ReasonMissingField}
	}

	positions := make(map[int]bool, len(doc.Days))
	for i, dd := range doc.Days {
		if dd.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("days[%d].name", i), Reason: ReasonMissingField}
		}
		if dd.DayOfSplit < 1 || positions[dd.DayOfSplit] {
			return &ValidationError{Field: fmt.Sprintf("days[%d].dayOfSplit", i), Reason: ReasonTypeMismatch}
		}
		positions[dd.DayOfSplit] = true

		for j, ed := range dd.Exercises {
			if ed.Name == "" {
				return &ValidationError{Field: fmt.Sprintf("days[%d].exercises[%d].name", i, j), Reason: ReasonMissingField}
			}
			if ed.MuscleGroup != "" {
				if _, ok := models.NormalizeMuscleGroup(ed.MuscleGroup); !ok {
					return &ValidationError{Field: fmt.Sprintf("days[%d].exercises[%d].muscleGroup", i, j), Reason: ReasonTypeMismatch}
				}
			}
			for k, sd := range ed.Sets {
				if sd.Reps < 0 {
					return &ValidationError{Field: fmt.Sprintf("days[%d].exercises[%d].sets[%d].reps", i, j, k), Reason: ReasonTypeMismatch}
				}
				if sd.WeightKg < 0 {
					return &ValidationError{Field: fmt.Sprintf("days[%d].exercises[%d].sets[%d].weightKg", i, j, k), Reason: ReasonTypeMismatch}
				}
			}
		}
	}
	return nil
}
