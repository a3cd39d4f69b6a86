// Package schedule maps elapsed wall-clock time to the split day due
// today and keeps streak counters. Everything here is a pure function
// over plain values: no I/O, no clocks — callers pass now.
package schedule

import (
	"math"
	"time"

	"github.com/claude/splitlog/internal/models"
)

// CalendarDaysBetween counts calendar-day boundaries crossed between
// from and to in the given location (local time when loc is nil).
// Same-calendar-day pairs yield 0 regardless of the raw time delta;
// the result is negative when to precedes from, which happens after
// clock changes.
func CalendarDaysBetween(from, to time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	a := startOfDay(from.In(loc))
	b := startOfDay(to.In(loc))
	// Round, don't truncate: DST makes some days 23 or 25 hours long.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextPosition rotates a 1-based split position forward by daysPassed.
// The result is always in [1, splitLen]; negative inputs are normalized
// by a second modulo pass. A non-positive splitLen leaves the position
// unchanged, matching the no-active-split no-op.
func NextPosition(current, daysPassed, splitLen int) int {
	if splitLen <= 0 {
		return current
	}
	shifted := (current + daysPassed - 1) % splitLen
	shifted = (shifted + splitLen) % splitLen
	return shifted + 1
}

// Advance computes the position due at now given the position recorded
// at lastUpdate. Calendar days are counted in now's location.
func Advance(lastUpdate, now time.Time, current, splitLen int) int {
	return NextPosition(current, CalendarDaysBetween(lastUpdate, now, now.Location()), splitLen)
}

// Rollover is the app-foreground entry point: the rotation position due
// now for the active split, or the recorded position unchanged when no
// split is active. Streaks are untouched here; they move only when a
// workout is completed.
func Rollover(p models.Profile, active *models.Split, now time.Time) int {
	if active == nil {
		return p.DayPosition
	}
	return Advance(p.PositionUpdatedAt, now, p.DayPosition, active.Length())
}
