package syncer

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// TestClassify maps round-trip times onto quality levels at the
// configured thresholds.
func TestClassify(t *testing.T) {
	o := &ProbeObserver{
		excellentBelow: 100 * time.Millisecond,
		goodBelow:      400 * time.Millisecond,
	}

	tests := []struct {
		rtt  time.Duration
		want Quality
	}{
		{10 * time.Millisecond, Excellent},
		{99 * time.Millisecond, Excellent},
		{100 * time.Millisecond, Good},
		{399 * time.Millisecond, Good},
		{400 * time.Millisecond, Poor},
		{2 * time.Second, Poor},
	}
	for _, tt := range tests {
		if got := o.classify(tt.rtt); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.rtt, got, tt.want)
		}
	}
}

// TestProbeObserver watches a health endpoint flip from healthy to
// failing and expects exactly one update per transition.
func TestProbeObserver(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := NewProbeObserver(srv.URL, 20*time.Millisecond, slog.Default())
	defer o.Close()

	// Loopback round trips are far under any threshold.
	if q := waitQuality(t, o.Updates()); q != Excellent {
		t.Fatalf("first update = %v, want %v", q, Excellent)
	}

	failing.Store(true)
	if q := waitQuality(t, o.Updates()); q != Offline {
		t.Fatalf("after failure = %v, want %v", q, Offline)
	}

	failing.Store(false)
	if q := waitQuality(t, o.Updates()); q != Excellent {
		t.Fatalf("after recovery = %v, want %v", q, Excellent)
	}
}

// TestProbeObserverUnreachable classifies a dead server as offline.
func TestProbeObserverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	o := NewProbeObserver(srv.URL, 20*time.Millisecond, slog.Default())
	defer o.Close()

	if q := waitQuality(t, o.Updates()); q != Offline {
		t.Fatalf("update = %v, want %v", q, Offline)
	}
}

// TestProbeObserverClose closes the updates channel and survives a
// second Close.
func TestProbeObserverClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	o := NewProbeObserver(srv.URL, 20*time.Millisecond, slog.Default())
	waitQuality(t, o.Updates())

	o.Close()
	o.Close()

	select {
	case _, ok := <-o.Updates():
		if ok {
			// Drain the buffered transition, then expect closure.
			for range o.Updates() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("updates channel not closed")
	}
}

func waitQuality(t *testing.T, ch <-chan Quality) Quality {
	t.Helper()
	select {
	case q := <-ch:
		return q
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for quality update")
		return Offline
	}
}
