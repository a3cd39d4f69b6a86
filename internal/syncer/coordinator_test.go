package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/bus"
	"github.com/claude/splitlog/internal/merge"
	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/remote"
	"github.com/claude/splitlog/internal/store"
)

// fakeClient is an in-memory remote.Client. entered is closed when Push
// is first entered; a non-nil release blocks Push until it is closed or
// the context ends. pullRes is a single static page; pages, when set,
// maps request cursors to pages instead.
type fakeClient struct {
	mu      sync.Mutex
	pushed  [][]remote.Record
	pulls   int
	pullRes remote.PullResult
	pages   map[string]remote.PullResult
	pullErr error

	entered chan struct{}
	release chan struct{}
}

func (f *fakeClient) Push(ctx context.Context, recs []remote.Record) error {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.entered = nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return &remote.SyncError{Kind: remote.Transient, Op: "push", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]remote.Record, len(recs))
	copy(cp, recs)
	f.pushed = append(f.pushed, cp)
	return nil
}

func (f *fakeClient) Pull(ctx context.Context, cursor string) (remote.PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.pullErr != nil {
		return remote.PullResult{}, f.pullErr
	}
	if f.pages != nil {
		res, ok := f.pages[cursor]
		if !ok {
			return remote.PullResult{NextCursor: cursor}, nil
		}
		return res, nil
	}
	if f.pullRes.NextCursor != "" && cursor == f.pullRes.NextCursor {
		// Caught up: a real server answers with an empty page.
		return remote.PullResult{NextCursor: cursor}, nil
	}
	return f.pullRes, nil
}

func (f *fakeClient) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeClient) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

func (f *fakeClient) batch(i int) []remote.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushed[i]
}

func (f *fakeClient) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func (f *fakeClient) setPullErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullErr = err
}

type fakeObserver struct{ ch chan Quality }

func (f *fakeObserver) Updates() <-chan Quality { return f.ch }
func (f *fakeObserver) Close()                  { close(f.ch) }

func newSyncStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// donorRecords builds a realistic pull batch: another device's pending
// push set for a freshly created split.
func donorRecords(t *testing.T, name string) []remote.Record {
	t.Helper()
	donor := newSyncStore(t)
	_, err := donor.PutSplit(context.Background(), models.Split{
		Name: name,
		Days: []models.Day{
			{Name: "Upper", DayOfSplit: 1, Exercises: []models.Exercise{
				{Name: "Row", RepGoal: "5x5", MuscleGroup: models.MuscleBack, ExerciseOrder: 1},
			}},
			{Name: "Lower", DayOfSplit: 2},
		},
	})
	if err != nil {
		t.Fatalf("PutSplit: %v", err)
	}
	recs, err := donor.PendingPush(context.Background())
	if err != nil {
		t.Fatalf("PendingPush: %v", err)
	}
	return recs
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// TestShouldAutoSync gates background passes on quality and the
// interactive flag.
func TestShouldAutoSync(t *testing.T) {
	c := New(newSyncStore(t), &fakeClient{}, nil, nil, Config{}, slog.Default())

	tests := []struct {
		quality     Quality
		interactive bool
		want        bool
	}{
		{Offline, false, false},
		{Poor, false, false},
		{Good, false, true},
		{Excellent, false, true},
		{Good, true, false},
		{Excellent, true, false},
	}
	for _, tt := range tests {
		c.setQuality(tt.quality)
		c.SetInteractive(tt.interactive)
		if got := c.ShouldAutoSync(); got != tt.want {
			t.Errorf("quality=%v interactive=%v: ShouldAutoSync = %v, want %v",
				tt.quality, tt.interactive, got, tt.want)
		}
	}
}

// TestSyncNowRoundTrip runs one full pass: pending records pushed and
// acknowledged, the pulled batch applied, the cursor advanced.
func TestSyncNowRoundTrip(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()

	if _, err := s.PutSplit(ctx, models.Split{Name: "Local", Days: []models.Day{{Name: "A", DayOfSplit: 1}}}); err != nil {
		t.Fatalf("PutSplit: %v", err)
	}
	before, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if before == 0 {
		t.Fatal("no pending records to push")
	}

	fc := &fakeClient{pullRes: remote.PullResult{Records: donorRecords(t, "Remote"), NextCursor: "7"}}
	c := New(s, fc, nil, nil, Config{}, slog.Default())

	if err := c.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	if got := fc.pushCount(); got != 1 {
		t.Fatalf("pushes = %d, want 1", got)
	}
	if got := len(fc.batch(0)); got != before {
		t.Errorf("pushed %d records, want %d", got, before)
	}

	after, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if after != 0 {
		t.Errorf("pending after ack = %d, want 0", after)
	}

	splits, err := s.Splits(ctx)
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	if len(splits) != 2 {
		t.Fatalf("splits = %d, want 2", len(splits))
	}
	var found bool
	for _, sp := range splits {
		if sp.Name == "Remote" {
			found = true
			if len(sp.Days) != 2 {
				t.Errorf("pulled split has %d days, want 2", len(sp.Days))
			}
		}
	}
	if !found {
		t.Error("pulled split not applied")
	}

	cursor, err := s.Cursor(ctx)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cursor != "7" {
		t.Errorf("cursor = %q, want %q", cursor, "7")
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LastSync.IsZero() || st.LastError != nil || st.InFlight || st.Dirty != 0 {
		t.Errorf("status = %+v", st)
	}
}

// TestSyncNowEmpty skips the push when nothing is pending and leaves
// the cursor alone when the server has nothing new.
func TestSyncNowEmpty(t *testing.T) {
	s := newSyncStore(t)
	fc := &fakeClient{}
	c := New(s, fc, nil, nil, Config{}, slog.Default())

	if err := c.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if got := fc.pushCount(); got != 0 {
		t.Errorf("pushes = %d, want 0", got)
	}
	if got := fc.pullCount(); got != 1 {
		t.Errorf("pulls = %d, want 1", got)
	}
	cursor, err := s.Cursor(context.Background())
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cursor != "" {
		t.Errorf("cursor = %q, want empty", cursor)
	}
}

// TestSyncNowPagedPull drains every page before applying, so a tree
// split across a page boundary still lands whole.
func TestSyncNowPagedPull(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()

	recs := donorRecords(t, "Paged")
	if len(recs) < 2 {
		t.Fatalf("donor produced %d records, want at least 2", len(recs))
	}
	mid := len(recs) / 2
	fc := &fakeClient{pages: map[string]remote.PullResult{
		"":  {Records: recs[:mid], NextCursor: "2"},
		"2": {Records: recs[mid:], NextCursor: "4"},
	}}
	c := New(s, fc, nil, nil, Config{}, slog.Default())

	if err := c.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if got := fc.pullCount(); got != 3 {
		t.Errorf("pulls = %d, want 3", got)
	}

	splits, err := s.Splits(ctx)
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	if len(splits) != 1 || splits[0].Name != "Paged" {
		t.Fatalf("pulled split not applied: %+v", splits)
	}
	if len(splits[0].Days) != 2 {
		t.Errorf("days = %d, want 2", len(splits[0].Days))
	}
	var exercises int
	for _, d := range splits[0].Days {
		exercises += len(d.Exercises)
	}
	if exercises != 1 {
		t.Errorf("exercises = %d, want 1", exercises)
	}

	cursor, err := s.Cursor(ctx)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cursor != "4" {
		t.Errorf("cursor = %q, want %q", cursor, "4")
	}
}

// TestSyncNowBusy rejects a second pass while one is in flight.
func TestSyncNowBusy(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()
	if _, err := s.PutSplit(ctx, models.Split{Name: "Local"}); err != nil {
		t.Fatalf("PutSplit: %v", err)
	}

	fc := &fakeClient{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(s, fc, nil, nil, Config{}, slog.Default())

	done := make(chan error, 1)
	go func() { done <- c.SyncNow(ctx) }()

	<-fc.entered
	if err := c.SyncNow(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("second SyncNow = %v, want ErrBusy", err)
	}
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.InFlight {
		t.Error("Status does not report in-flight pass")
	}

	close(fc.release)
	if err := <-done; err != nil {
		t.Fatalf("first SyncNow: %v", err)
	}
}

// TestInteractiveCancelsNetworkPhase abandons a pass stuck on the wire
// the moment an interactive session starts: the pending set is
// untouched and no error state is recorded.
func TestInteractiveCancelsNetworkPhase(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()
	if _, err := s.PutSplit(ctx, models.Split{Name: "Local"}); err != nil {
		t.Fatalf("PutSplit: %v", err)
	}
	before, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}

	// Push blocks until canceled; release is never closed.
	fc := &fakeClient{entered: make(chan struct{}), release: make(chan struct{})}
	c := New(s, fc, nil, nil, Config{}, slog.Default())

	done := make(chan error, 1)
	go func() { done <- c.SyncNow(ctx) }()

	<-fc.entered
	c.SetInteractive(true)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("SyncNow = %v, want context.Canceled", err)
	}

	after, err := s.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if after != before {
		t.Errorf("pending count moved from %d to %d", before, after)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LastError != nil {
		t.Errorf("abandoned pass recorded error %v", st.LastError)
	}
	if st.InFlight {
		t.Error("Status still reports in-flight")
	}
}

// TestInteractiveDuringApply lets a pass that has begun writing finish,
// then suppresses exactly one later auto pass.
func TestInteractiveDuringApply(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()

	fc := &fakeClient{pullRes: remote.PullResult{Records: donorRecords(t, "Remote"), NextCursor: "3"}}
	c := New(s, fc, nil, nil, Config{}, slog.Default())
	c.resolve = func(snap merge.Snapshot, recs []remote.Record) merge.Result {
		c.SetInteractive(true) // lands mid-apply: too late to cancel
		return merge.Resolve(snap, recs)
	}

	if err := c.SyncNow(ctx); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}

	splits, err := s.Splits(ctx)
	if err != nil {
		t.Fatalf("Splits: %v", err)
	}
	if len(splits) != 1 || splits[0].Name != "Remote" {
		t.Fatalf("pulled split not applied: %+v", splits)
	}

	c.SetInteractive(false)
	c.setQuality(Excellent)

	pulls := fc.pullCount()
	c.autoSync(ctx)
	if got := fc.pullCount(); got != pulls {
		t.Fatalf("suppressed pass still pulled: pulls = %d, want %d", got, pulls)
	}
	c.autoSync(ctx)
	if got := fc.pullCount(); got <= pulls {
		t.Fatalf("pass after suppression did not run: pulls = %d", got)
	}
}

// TestSyncNowTimeout abandons a pass that exceeds its budget and
// surfaces the failure in Status.
func TestSyncNowTimeout(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()
	if _, err := s.PutSplit(ctx, models.Split{Name: "Local"}); err != nil {
		t.Fatalf("PutSplit: %v", err)
	}

	fc := &fakeClient{release: make(chan struct{})}
	c := New(s, fc, nil, nil, Config{Budget: 50 * time.Millisecond}, slog.Default())

	if err := c.SyncNow(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SyncNow = %v, want deadline exceeded", err)
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.LastError == nil {
		t.Error("timeout not recorded in Status")
	}
	if !st.LastSync.IsZero() {
		t.Error("failed pass moved LastSync")
	}
}

// TestPullFailureSurfaces records a transient pull error and clears it
// on the next successful pass.
func TestPullFailureSurfaces(t *testing.T) {
	s := newSyncStore(t)
	ctx := context.Background()

	fc := &fakeClient{}
	fc.setPullErr(&remote.SyncError{Kind: remote.Transient, Op: "pull", Err: errors.New("connection reset")})
	c := New(s, fc, nil, nil, Config{}, slog.Default())

	err := c.SyncNow(ctx)
	var se *remote.SyncError
	if !errors.As(err, &se) || se.Kind != remote.Transient {
		t.Fatalf("SyncNow = %v, want transient SyncError", err)
	}

	st, serr := c.Status(ctx)
	if serr != nil {
		t.Fatalf("Status: %v", serr)
	}
	if st.LastError == nil {
		t.Error("pull failure not recorded")
	}

	fc.setPullErr(nil)
	if err := c.SyncNow(ctx); err != nil {
		t.Fatalf("retry SyncNow: %v", err)
	}
	st, serr = c.Status(ctx)
	if serr != nil {
		t.Fatalf("Status: %v", serr)
	}
	if st.LastError != nil {
		t.Errorf("success did not clear error: %v", st.LastError)
	}
	if st.LastSync.IsZero() {
		t.Error("success did not set LastSync")
	}
}

// TestRunQualityTriggers drives the loop through quality transitions.
// Event order proves the gate: after poor no pass starts, after
// excellent one does.
func TestRunQualityTriggers(t *testing.T) {
	s := newSyncStore(t)
	fc := &fakeClient{}
	obs := &fakeObserver{ch: make(chan Quality)}
	events := bus.New[Event](16)
	ch, cancelSub := events.Subscribe()
	defer cancelSub()

	c := New(s, fc, obs, events, Config{Interval: time.Hour}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	obs.ch <- Poor
	ev := nextEvent(t, ch)
	if ev.Type != QualityChanged || ev.Quality != Poor {
		t.Fatalf("event = %+v, want quality-changed poor", ev)
	}

	obs.ch <- Excellent
	ev = nextEvent(t, ch)
	if ev.Type != QualityChanged || ev.Quality != Excellent {
		t.Fatalf("event = %+v, want quality-changed excellent", ev)
	}
	if ev = nextEvent(t, ch); ev.Type != SyncStarted {
		t.Fatalf("event = %+v, want sync-started", ev)
	}
	if ev = nextEvent(t, ch); ev.Type != SyncSucceeded {
		t.Fatalf("event = %+v, want sync-succeeded", ev)
	}
	if got := fc.pullCount(); got != 1 {
		t.Errorf("pulls = %d, want 1", got)
	}

	cancel()
	if err := <-runDone; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

// TestKick runs a gated pass outside the regular schedule.
func TestKick(t *testing.T) {
	s := newSyncStore(t)
	fc := &fakeClient{}
	events := bus.New[Event](16)
	ch, cancelSub := events.Subscribe()
	defer cancelSub()

	c := New(s, fc, nil, events, Config{Interval: time.Hour}, slog.Default())
	c.setQuality(Good)
	if ev := nextEvent(t, ch); ev.Type != QualityChanged {
		t.Fatalf("event = %+v, want quality-changed", ev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	c.Kick()
	if ev := nextEvent(t, ch); ev.Type != SyncStarted {
		t.Fatalf("event = %+v, want sync-started", ev)
	}
	if ev := nextEvent(t, ch); ev.Type != SyncSucceeded {
		t.Fatalf("event = %+v, want sync-succeeded", ev)
	}
	if got := fc.pullCount(); got != 1 {
		t.Errorf("pulls = %d, want 1", got)
	}

	cancel()
	<-runDone
}
