package syncer

import "testing"

// TestQualityOrdering keeps the levels comparable worst to best, which
// the auto-sync gate relies on.
func TestQualityOrdering(t *testing.T) {
	if !(Offline < Poor && Poor < Good && Good < Excellent) {
		t.Fatalf("levels out of order: %d %d %d %d", Offline, Poor, Good, Excellent)
	}
}

// TestParseQuality round-trips every level name and rejects unknowns.
func TestParseQuality(t *testing.T) {
	for _, q := range []Quality{Offline, Poor, Good, Excellent} {
		got, err := ParseQuality(q.String())
		if err != nil {
			t.Fatalf("ParseQuality(%q): %v", q.String(), err)
		}
		if got != q {
			t.Errorf("ParseQuality(%q) = %v, want %v", q.String(), got, q)
		}
	}

	if _, err := ParseQuality("great"); err == nil {
		t.Error("ParseQuality accepted unknown level")
	}
}
