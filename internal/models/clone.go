package models

import (
	"time"

	"github.com/google/uuid"
)

// Clone returns a deep copy of the split with fresh identifiers for
// every record in the subtree. The copy is never active: reusing the
// active flag would break the one-active-split invariant, and reusing
// an identifier across two live records breaks merge identity.
func (s Split) Clone() Split {
	out := s
	out.ID = uuid.New()
	out.IsActive = false
	out.StartDate = nil
	out.Days = make([]Day, len(s.Days))
	for i := range s.Days {
		d := s.Days[i].Clone()
		d.SplitID = out.ID
		out.Days[i] = d
	}
	return out
}

// Clone returns a deep copy of the day with fresh identifiers. The copy
// is standalone (SplitID cleared); callers cloning a whole split
// re-attach it to the new parent.
func (d Day) Clone() Day {
	out := d
	out.ID = uuid.New()
	out.SplitID = uuid.Nil
	out.Exercises = make([]Exercise, len(d.Exercises))
	for i := range d.Exercises {
		e := d.Exercises[i].Clone()
		e.DayID = out.ID
		out.Exercises[i] = e
	}
	return out
}

// Clone returns a deep copy of the exercise with fresh identifiers for
// itself and its sets.
func (e Exercise) Clone() Exercise {
	out := e
	out.ID = uuid.New()
	out.CompletedAt = copyTime(e.CompletedAt)
	out.Sets = make([]Set, len(e.Sets))
	for i := range e.Sets {
		s := e.Sets[i].Clone()
		s.ExerciseID = out.ID
		out.Sets[i] = s
	}
	return out
}

// Clone returns a copy of the set with a fresh identifier.
func (s Set) Clone() Set {
	out := s
	out.ID = uuid.New()
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
