// Package vitals feeds physical metrics (height, weight, age) from an
// external health source into the profile. The app never reads the
// health store directly; an export file is the interchange point.
package vitals

import (
	"context"
	"time"

	"github.com/claude/splitlog/internal/models"
)

// Sample is one reading of the user's physical metrics. Zero fields
// mean the source had no value, not a measurement of zero.
type Sample struct {
	HeightCM float64
	WeightKG float64
	Age      int
	TakenAt  time.Time
}

// Provider yields the most recent sample from a metrics source.
type Provider interface {
	Latest(ctx context.Context) (Sample, error)
}

// Pusher writes a sample back to the metrics source. The write-back is
// fire and forget: callers log failures and move on, nothing retries.
type Pusher interface {
	Push(ctx context.Context, s Sample) error
}

// NopPusher discards samples, for nodes with no write-back target.
type NopPusher struct{}

func (NopPusher) Push(context.Context, Sample) error { return nil }

// SeedProfile copies sample values onto profile fields that are still
// unset and reports whether anything changed. Fields the user filled
// in themselves are never overwritten.
func SeedProfile(p *models.Profile, s Sample) bool {
	changed := false
	if p.HeightCm == 0 && s.HeightCM > 0 {
		p.HeightCm = s.HeightCM
		changed = true
	}
	if p.WeightKg == 0 && s.WeightKG > 0 {
		p.WeightKg = s.WeightKG
		changed = true
	}
	if p.Age == 0 && s.Age > 0 {
		p.Age = s.Age
		changed = true
	}
	return changed
}
