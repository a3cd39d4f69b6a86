// Package syncer decides when the local store talks to the remote. The
// coordinator runs one sync pass per trigger (timer, quality change,
// manual request), gated so background sync never competes with an
// interactive session, and never retries in a loop: a failed pass waits
// for the next trigger.
package syncer

import "fmt"

// Quality classifies the usable network, ordered worst to best.
type Quality int

const (
	Offline Quality = iota
	Poor
	Good
	Excellent
)

func (q Quality) String() string {
	switch q {
	case Offline:
		return "offline"
	case Poor:
		return "poor"
	case Good:
		return "good"
	case Excellent:
		return "excellent"
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// ParseQuality maps a level name back to its Quality.
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "offline":
		return Offline, nil
	case "poor":
		return Poor, nil
	case "good":
		return Good, nil
	case "excellent":
		return Excellent, nil
	}
	return Offline, fmt.Errorf("unknown network quality %q", s)
}
