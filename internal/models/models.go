package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the date-only format used for history keys ("2024-06-01").
const DateLayout = "2006-01-02"

// FormatDate renders t as a date-only history key in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a date-only history key as local midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse date %q: %w", s, err)
	}
	return t, nil
}

// Split is a named workout routine: an ordered rotation of Days.
// At most one Split is active at a time; the store enforces that.
type Split struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Days      []Day      `json:"days"`
	IsActive  bool       `json:"isActive"`
	StartDate *time.Time `json:"startDate,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Length returns the number of days in the rotation.
func (s *Split) Length() int {
	return len(s.Days)
}

// DayAt returns the day at the given 1-based rotation position, or nil.
func (s *Split) DayAt(position int) *Day {
	for i := range s.Days {
		if s.Days[i].DayOfSplit == position {
			return &s.Days[i]
		}
	}
	return nil
}

// Sort orders the subtree for display: days by rotation position,
// exercises by their order index, sets by creation time.
func (s *Split) Sort() {
	sort.Slice(s.Days, func(i, j int) bool {
		return s.Days[i].DayOfSplit < s.Days[j].DayOfSplit
	})
	for i := range s.Days {
		s.Days[i].Sort()
	}
}

// Day is one slot in a Split's rotation, or a standalone historical
// snapshot of a completed session. Snapshot days have SplitID == uuid.Nil
// and carry the completion date in Date.
type Day struct {
	ID         uuid.UUID  `json:"id"`
	SplitID    uuid.UUID  `json:"splitId"`
	Name       string     `json:"name"`
	DayOfSplit int        `json:"dayOfSplit"`
	Exercises  []Exercise `json:"exercises"`
	Date       string     `json:"date"`
	IsRestDay  bool       `json:"isRestDay"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Sort orders exercises by their order index and sets by creation time.
func (d *Day) Sort() {
	sort.Slice(d.Exercises, func(i, j int) bool {
		return d.Exercises[i].ExerciseOrder < d.Exercises[j].ExerciseOrder
	})
	for i := range d.Exercises {
		ex := &d.Exercises[i]
		sort.Slice(ex.Sets, func(a, b int) bool {
			return ex.Sets[a].CreatedAt.Before(ex.Sets[b].CreatedAt)
		})
	}
}

// Exercise is one movement within a Day. RepGoal is free-form ("8-12",
// "AMRAP", "5x5") and is displayed, never parsed.
type Exercise struct {
	ID            uuid.UUID   `json:"id"`
	DayID         uuid.UUID   `json:"dayId"`
	Name          string      `json:"name"`
	Sets          []Set       `json:"sets"`
	RepGoal       string      `json:"repGoal"`
	MuscleGroup   MuscleGroup `json:"muscleGroup"`
	ExerciseOrder int         `json:"exerciseOrder"`
	Done          bool        `json:"done"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Set is one performed repetition-group. WeightKg is always kilograms;
// display-unit conversion happens at the presentation boundary only.
// The technique flags are independent, a set may carry several.
type Set struct {
	ID         uuid.UUID `json:"id"`
	ExerciseID uuid.UUID `json:"exerciseId"`
	WeightKg   float64   `json:"weightKg"`
	Reps       int       `json:"reps"`
	ToFailure  bool      `json:"toFailure"`
	Warmup     bool      `json:"warmup"`
	RestPause  bool      `json:"restPause"`
	DropSet    bool      `json:"dropSet"`
	Note       string    `json:"note,omitempty"`
	Bodyweight bool      `json:"bodyweight"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Volume returns the set's training volume in kg (weight times reps).
func (s Set) Volume() float64 {
	return s.WeightKg * float64(s.Reps)
}

// CompletedDay maps a calendar date to a deep, independent snapshot of
// the Day as it looked when the workout was marked done. Exactly one
// record exists per date; the store retires the old one on re-completion.
type CompletedDay struct {
	ID        uuid.UUID `json:"id"`
	Date      string    `json:"date"`
	Day       Day       `json:"day"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileID is the fixed identifier of the singleton profile record.
// Sharing one id across devices lets profiles merge by the usual
// per-record rule.
var ProfileID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Profile is the singleton per-user record: display preferences,
// physical stats, streak state, and the rotation position the scheduler
// recorded at the last foreground rollover.
type Profile struct {
	ID                uuid.UUID  `json:"id"`
	WeightUnit        WeightUnit `json:"weightUnit"`
	HeightCm          float64    `json:"heightCm"`
	WeightKg          float64    `json:"weightKg"`
	Age               int        `json:"age"`
	CurrentStreak     int        `json:"currentStreak"`
	LongestStreak     int        `json:"longestStreak"`
	LastWorkoutDate   *time.Time `json:"lastWorkoutDate,omitempty"`
	RestDaysPerWeek   int        `json:"restDaysPerWeek"`
	StreakPaused      bool       `json:"streakPaused"`
	DayPosition       int        `json:"dayPosition"`
	PositionUpdatedAt time.Time  `json:"positionUpdatedAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// BMI returns the body mass index derived from the stored stats,
// or 0 if height is unknown.
func (p Profile) BMI() float64 {
	if p.HeightCm <= 0 {
		return 0
	}
	m := p.HeightCm / 100
	return p.WeightKg / (m * m)
}
