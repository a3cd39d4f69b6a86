package syncer

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Observer reports network-quality transitions. The coordinator
// subscribes to Updates and never polls.
type Observer interface {
	Updates() <-chan Quality
	Close()
}

const (
	probeTimeout = 3 * time.Second

	// Round-trip thresholds for the quality levels. Anything at or
	// above goodBelow is poor; errors and non-200s are offline.
	excellentBelow = 150 * time.Millisecond
	goodBelow      = 600 * time.Millisecond
)

// ProbeObserver measures network quality by timing a periodic GET
// against the sync server's health endpoint. It emits on change only.
type ProbeObserver struct {
	client   *http.Client
	url      string
	interval time.Duration
	updates  chan Quality
	done     chan struct{}
	once     sync.Once
	log      *slog.Logger

	excellentBelow time.Duration
	goodBelow      time.Duration
}

// NewProbeObserver starts probing serverURL's health endpoint every
// interval. Close stops the probe loop and closes Updates.
func NewProbeObserver(serverURL string, interval time.Duration, log *slog.Logger) *ProbeObserver {
	o := &ProbeObserver{
		client:         &http.Client{Timeout: probeTimeout},
		url:            strings.TrimRight(serverURL, "/") + "/api/v1/healthz",
		interval:       interval,
		updates:        make(chan Quality, 4),
		done:           make(chan struct{}),
		log:            log,
		excellentBelow: excellentBelow,
		goodBelow:      goodBelow,
	}
	go o.loop()
	return o
}

func (o *ProbeObserver) Updates() <-chan Quality { return o.updates }

func (o *ProbeObserver) Close() {
	o.once.Do(func() { close(o.done) })
}

func (o *ProbeObserver) loop() {
	tick := time.NewTicker(o.interval)
	defer tick.Stop()

	last := Quality(-1)
	for {
		if q := o.probe(); q != last {
			last = q
			o.log.Debug("network quality changed", "quality", q)
			select {
			case o.updates <- q:
			default:
			}
		}
		select {
		case <-o.done:
			close(o.updates)
			return
		case <-tick.C:
		}
	}
}

// probe times one health-endpoint round trip and classifies it.
func (o *ProbeObserver) probe() Quality {
	start := time.Now()
	resp, err := o.client.Get(o.url)
	if err != nil {
		return Offline
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Offline
	}
	return o.classify(time.Since(start))
}

func (o *ProbeObserver) classify(rtt time.Duration) Quality {
	switch {
	case rtt < o.excellentBelow:
		return Excellent
	case rtt < o.goodBelow:
		return Good
	default:
		return Poor
	}
}
