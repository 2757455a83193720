package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulse-events/loadgen/internal/config"
	"github.com/pulse-events/loadgen/internal/dispatch"
	"github.com/pulse-events/loadgen/internal/event"
	"github.com/pulse-events/loadgen/internal/metrics"
)

// virtualClock advances only when slept on or explicitly advanced, so
// pacing tests run instantly and deterministically.
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newVirtualClock() *virtualClock {
	return &virtualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// fakeDispatcher answers every request with the same outcome after
// advancing the virtual clock by latency.
type fakeDispatcher struct {
	clock   *virtualClock
	latency time.Duration
	outcome dispatch.Outcome
	calls   atomic.Int64

	mu      sync.Mutex
	tenants map[string]int
	keys    []string
	events  []event.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, tenant string, ev event.Event, key string) dispatch.Outcome {
	d.calls.Add(1)
	if d.clock != nil && d.latency > 0 {
		d.clock.Advance(d.latency)
	}

	d.mu.Lock()
	if d.tenants == nil {
		d.tenants = make(map[string]int)
	}
	d.tenants[tenant]++
	d.keys = append(d.keys, key)
	d.events = append(d.events, ev)
	d.mu.Unlock()

	out := d.outcome
	out.Latency = d.latency
	return out
}

type recordingReporter struct {
	mu       sync.Mutex
	progress []metrics.Progress
	finals   []metrics.Summary
}

func (r *recordingReporter) OnProgress(p metrics.Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
}

func (r *recordingReporter) OnFinal(s metrics.Summary) {
	r.mu.Lock()
	r.finals = append(r.finals, s)
	r.mu.Unlock()
}

func testConfig(rps int, d time.Duration) *config.Config {
	cfg := config.Defaults()
	cfg.RPS = rps
	cfg.Duration = config.Duration(d)
	cfg.DuplicateRate = 0
	cfg.BadRate = 0
	return cfg
}

// scriptedSource returns scripted Float64 values in order and zero or a
// counter for everything else.
type scriptedSource struct {
	floats []float64
	next   int
	n      uint64
}

func (s *scriptedSource) Uint64() uint64 {
	s.n++
	return s.n * 0x9e3779b97f4a7c15
}

func (s *scriptedSource) Float64() float64 {
	v := s.floats[s.next%len(s.floats)]
	s.next++
	return v
}

func (s *scriptedSource) IntN(n int) int {
	return int(s.Uint64() % uint64(n))
}
