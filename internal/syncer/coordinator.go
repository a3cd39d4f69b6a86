package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/splitlog/internal/bus"
	"github.com/claude/splitlog/internal/merge"
	"github.com/claude/splitlog/internal/remote"
	"github.com/claude/splitlog/internal/store"
)

// ErrBusy reports that a sync pass is already in flight.
var ErrBusy = errors.New("sync already in flight")

// EventType names a coordinator notification.
type EventType int

const (
	SyncStarted EventType = iota
	SyncSucceeded
	SyncFailed
	QualityChanged
)

func (t EventType) String() string {
	switch t {
	case SyncStarted:
		return "sync-started"
	case SyncSucceeded:
		return "sync-succeeded"
	case SyncFailed:
		return "sync-failed"
	case QualityChanged:
		return "quality-changed"
	}
	return "unknown"
}

// Event is published on the coordinator's bus around each sync pass and
// quality transition. Quality is set on QualityChanged, Err on SyncFailed.
type Event struct {
	Type    EventType
	Quality Quality
	Err     error
	At      time.Time
}

// Config tunes the coordinator. Zero values fall back to defaults.
type Config struct {
	Budget   time.Duration // deadline for one sync pass
	Interval time.Duration // auto-sync ticker period
}

// Status is a point-in-time view of the coordinator. Dirty counts the
// records waiting to be pushed.
type Status struct {
	LastSync  time.Time
	LastError error
	Quality   Quality
	InFlight  bool
	Dirty     int
}

// Coordinator runs sync passes against the remote store: push pending
// records, pull since the cursor, resolve, apply. One pass per trigger.
// Auto passes are gated on network quality and the interactive-session
// flag; SyncNow bypasses the gate.
type Coordinator struct {
	store    *store.Store
	client   remote.Client
	observer Observer
	events   *bus.Bus[Event]
	log      *slog.Logger

	budget   time.Duration
	interval time.Duration
	resolve  func(merge.Snapshot, []remote.Record) merge.Result
	kick     chan struct{}

	mu           sync.Mutex
	quality      Quality
	interactive  bool
	suppressNext bool
	applying     bool
	cancel       context.CancelFunc
	lastSync     time.Time
	lastErr      error
}

// New creates a coordinator. The observer and events bus may be nil
// when only SyncNow is used.
func New(st *store.Store, client remote.Client, obs Observer, events *bus.Bus[Event], cfg Config, log *slog.Logger) *Coordinator {
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Coordinator{
		store:    st,
		client:   client,
		observer: obs,
		events:   events,
		log:      log,
		budget:   cfg.Budget,
		interval: cfg.Interval,
		resolve:  merge.Resolve,
		kick:     make(chan struct{}, 1),
	}
}

// ShouldAutoSync reports whether a background pass may run now: network
// quality good-or-better and no interactive session active.
func (c *Coordinator) ShouldAutoSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldAutoSyncLocked()
}

func (c *Coordinator) shouldAutoSyncLocked() bool {
	return c.quality >= Good && !c.interactive
}

// SetInteractive marks or clears an interactive session. While set,
// auto passes are gated off. Setting it with a pass in flight cancels
// the pass if it is still in its network phase; once the local apply
// has begun the pass finishes and the next auto pass is suppressed
// instead, so a partial write is never forced.
func (c *Coordinator) SetInteractive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interactive = active
	if !active || c.cancel == nil {
		return
	}
	if c.applying {
		c.suppressNext = true
	} else {
		c.cancel()
	}
}

// SyncNow runs one pass immediately, bypassing the auto gate but still
// honoring the timeout budget. Returns ErrBusy if a pass is in flight.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	return c.syncOnce(ctx)
}

// Kick requests an auto pass outside the regular schedule, e.g. after
// the day rollover. The pass still respects the gate.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Status reports the coordinator state plus the pending-record count.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	dirty, err := c.store.PendingCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("counting pending records: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		LastSync:  c.lastSync,
		LastError: c.lastErr,
		Quality:   c.quality,
		InFlight:  c.cancel != nil,
		Dirty:     dirty,
	}, nil
}

// Run drives auto passes until ctx is canceled: on quality transitions,
// on the interval ticker, and on Kick.
func (c *Coordinator) Run(ctx context.Context) error {
	var updates <-chan Quality
	if c.observer != nil {
		updates = c.observer.Updates()
	}
	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			c.setQuality(q)
			c.autoSync(ctx)
		case <-tick.C:
			c.autoSync(ctx)
		case <-c.kick:
			c.autoSync(ctx)
		}
	}
}

func (c *Coordinator) setQuality(q Quality) {
	c.mu.Lock()
	changed := c.quality != q
	c.quality = q
	c.mu.Unlock()
	if changed {
		c.publish(Event{Type: QualityChanged, Quality: q})
	}
}

// autoSync runs one gated pass, consuming a pending suppression first.
func (c *Coordinator) autoSync(ctx context.Context) {
	c.mu.Lock()
	if !c.shouldAutoSyncLocked() || c.cancel != nil {
		c.mu.Unlock()
		return
	}
	if c.suppressNext {
		c.suppressNext = false
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	_ = c.syncOnce(ctx)
}

func (c *Coordinator) syncOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, c.budget)

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return ErrBusy
	}
	c.cancel = cancel
	c.applying = false
	c.mu.Unlock()

	c.publish(Event{Type: SyncStarted})
	err := c.pass(ctx)

	// A cancel of our own context with the parent still live means the
	// pass was abandoned for an interactive session, not a failure.
	aborted := errors.Is(err, context.Canceled) && parent.Err() == nil

	c.mu.Lock()
	c.cancel = nil
	c.applying = false
	switch {
	case err == nil:
		c.lastErr = nil
		c.lastSync = time.Now()
	case aborted:
	default:
		c.lastErr = err
	}
	c.mu.Unlock()
	cancel()

	switch {
	case err == nil:
		c.publish(Event{Type: SyncSucceeded})
	case aborted:
		c.log.Info("sync abandoned for interactive session")
		c.publish(Event{Type: SyncFailed, Err: err})
	default:
		c.log.Warn("sync failed", "error", err)
		c.publish(Event{Type: SyncFailed, Err: err})
	}
	return err
}

// pass is one push-then-pull cycle. Push runs first so local edits are
// on the server before its state is read back.
func (c *Coordinator) pass(ctx context.Context) error {
	pending, err := c.store.PendingPush(ctx)
	if err != nil {
		return fmt.Errorf("collecting pending records: %w", err)
	}
	if len(pending) > 0 {
		if err := c.client.Push(ctx, pending); err != nil {
			return fmt.Errorf("pushing %d records: %w", len(pending), err)
		}
		// The server has the batch; recording the ack must not be
		// lost to a cancel that lands just after the upload.
		if err := c.store.MarkPushed(context.WithoutCancel(ctx), pending); err != nil {
			return fmt.Errorf("acknowledging push: %w", err)
		}
	}

	cursor, err := c.store.Cursor(ctx)
	if err != nil {
		return err
	}

	// Drain every page before applying anything: a page boundary can
	// split a parent from its children, and a child must never be
	// applied without its parent in the same batch.
	var records []remote.Record
	next := cursor
	for {
		page, err := c.client.Pull(ctx, next)
		if err != nil {
			return fmt.Errorf("pulling since %q: %w", next, err)
		}
		records = append(records, page.Records...)
		if page.NextCursor == "" || page.NextCursor == next || len(page.Records) == 0 {
			if page.NextCursor != "" {
				next = page.NextCursor
			}
			break
		}
		next = page.NextCursor
	}

	// Point of no return: local writes begin. From here SetInteractive
	// suppresses the next pass instead of canceling this one.
	if err := c.beginApply(ctx); err != nil {
		return err
	}

	if len(records) > 0 {
		snap, err := c.store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshotting local state: %w", err)
		}
		res := c.resolve(snap, records)
		for _, sk := range res.Skipped {
			c.log.Warn("skipping undecodable record", "kind", sk.Kind, "id", sk.ID, "error", sk.Err)
		}
		if err := c.store.ApplyMerge(ctx, res); err != nil {
			return fmt.Errorf("applying merge: %w", err)
		}
		c.log.Info("merged remote batch", "records", len(records), "skipped", len(res.Skipped))
	}

	if next != cursor {
		if err := c.store.SetCursor(ctx, next); err != nil {
			return fmt.Errorf("advancing cursor: %w", err)
		}
	}
	return nil
}

// beginApply flips the pass into its apply phase unless the context was
// already canceled. Serialized with SetInteractive through the mutex.
func (c *Coordinator) beginApply(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	c.applying = true
	return nil
}

func (c *Coordinator) publish(ev Event) {
	if c.events == nil {
		return
	}
	ev.At = time.Now()
	c.events.Publish(ev)
}
