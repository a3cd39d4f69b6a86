package schedule

import (
	"time"

	"github.com/claude/splitlog/internal/models"
)

// Streak is the streak bookkeeping carried on the profile, extracted
// into a plain value so the update rule stays a pure function.
type Streak struct {
	Current         int
	Longest         int
	LastWorkout     *time.Time
	RestDaysPerWeek int
	Paused          bool
}

// StreakFromProfile extracts the streak state from a profile.
func StreakFromProfile(p models.Profile) Streak {
	return Streak{
		Current:         p.CurrentStreak,
		Longest:         p.LongestStreak,
		LastWorkout:     p.LastWorkoutDate,
		RestDaysPerWeek: p.RestDaysPerWeek,
		Paused:          p.StreakPaused,
	}
}

// Apply writes the streak state back onto a profile.
func (s Streak) Apply(p *models.Profile) {
	p.CurrentStreak = s.Current
	p.LongestStreak = s.Longest
	p.LastWorkoutDate = s.LastWorkout
	p.RestDaysPerWeek = s.RestDaysPerWeek
	p.StreakPaused = s.Paused
}

// Tolerance is the widest gap in calendar days that keeps a streak
// alive: one day for the workout itself plus the configured rest days.
func (s Streak) Tolerance() int {
	return 1 + s.RestDaysPerWeek
}

// AdvanceStreak evaluates a workout completed at completedOn against the
// streak state. Within tolerance the streak increments (and the longest
// high-water mark follows); beyond it the streak resets to 1. A second
// completion on the same calendar day changes nothing: streaks count
// days, not workouts. Paused streaks are frozen entirely.
func AdvanceStreak(s Streak, completedOn time.Time) Streak {
	if s.Paused {
		return s
	}
	out := s
	switch {
	case s.LastWorkout == nil:
		out.Current = 1
	default:
		elapsed := CalendarDaysBetween(*s.LastWorkout, completedOn, completedOn.Location())
		switch {
		case elapsed == 0:
			if out.Current == 0 {
				out.Current = 1
			}
		case elapsed > 0 && elapsed <= s.Tolerance():
			out.Current++
		default:
			out.Current = 1
		}
	}
	if out.Current > out.Longest {
		out.Longest = out.Current
	}
	t := completedOn
	out.LastWorkout = &t
	return out
}
