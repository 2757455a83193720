// Package metrics aggregates dispatch outcomes into run statistics and
// exposes them to reporters and Prometheus.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/pulse-events/loadgen/internal/dispatch"
)

// Histogram bounds for the live latency mirror, in microseconds.
const (
	histogramMin     = 1
	histogramMax     = 3600000000 // 1 hour
	histogramSigFigs = 3
)

// Observer receives every recorded outcome and injection. The Prometheus
// Collector implements it.
type Observer interface {
	ObserveOutcome(out dispatch.Outcome)
	ObserveInjection(replayed, malformed bool)
}

// Stats accumulates counters and latency samples for one run.
//
// Exact samples back the final percentiles; an HDR histogram mirrors them
// for cheap live percentiles in progress updates. Stats is safe for
// concurrent use.
type Stats struct {
	mu sync.Mutex

	start time.Time
	now   func() time.Time

	total    int64
	counts   [len(kindOrder)]int64
	timeouts int64

	replayed  int64
	malformed int64

	samples []float64
	hist    *hdrhistogram.Histogram

	// window of the previous Progress call
	lastProgressAt    time.Time
	lastProgressTotal int64

	observer Observer
}

var kindOrder = [...]dispatch.Kind{
	dispatch.KindSuccess,
	dispatch.KindDuplicate,
	dispatch.KindRateLimited,
	dispatch.KindBadRequest,
	dispatch.KindError,
}

// Option configures Stats.
type Option func(*Stats)

// WithClock overrides the clock used for elapsed time and rates.
func WithClock(now func() time.Time) Option {
	return func(s *Stats) {
		s.now = now
	}
}

// WithObserver forwards every record to o.
func WithObserver(o Observer) Option {
	return func(s *Stats) {
		s.observer = o
	}
}

// NewStats creates empty statistics whose run starts now.
func NewStats(opts ...Option) *Stats {
	s := &Stats{
		now:  time.Now,
		hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.now()
	s.lastProgressAt = s.start
	return s
}

// Start returns the time the run started.
func (s *Stats) Start() time.Time {
	return s.start
}

// Record counts one outcome. Latency samples are kept for accepted
// outcomes only.
func (s *Stats) Record(out dispatch.Outcome) {
	s.mu.Lock()
	s.total++
	if idx := kindIndex(out.Kind); idx >= 0 {
		s.counts[idx]++
	} else {
		s.counts[kindIndex(dispatch.KindError)]++
	}
	if out.Timeout {
		s.timeouts++
	}
	if out.Accepted() {
		s.samples = append(s.samples, out.LatencyMillis())
		s.hist.RecordValue(clampMicros(out.Latency))
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveOutcome(out)
	}
}

// RecordInjection tallies the faults injected into one request. These
// counters sit outside the outcome invariant.
func (s *Stats) RecordInjection(replayed, malformed bool) {
	s.mu.Lock()
	if replayed {
		s.replayed++
	}
	if malformed {
		s.malformed++
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveInjection(replayed, malformed)
	}
}

// Total returns the number of recorded outcomes.
func (s *Stats) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Count returns the number of outcomes of kind k.
func (s *Stats) Count(k dispatch.Kind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := kindIndex(k); idx >= 0 {
		return s.counts[idx]
	}
	return 0
}

// Summary returns the statistics of the run so far.
func (s *Stats) Summary() Summary {
	end := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := end.Sub(s.start)
	sum := Summary{
		Start:    s.start,
		End:      end,
		Elapsed:  elapsed,
		Total:    s.total,
		Counts:   s.countsLocked(),
		Timeouts: s.timeouts,
		Injected: Injected{
			ReplayedKeys:    s.replayed,
			MalformedEvents: s.malformed,
		},
		ActualRPS: rate(s.total, elapsed),
	}
	sum.Rates = sum.Counts.Rates(s.total)

	if len(s.samples) > 0 {
		sum.Latency = latencyStats(s.samples)
		sum.Percentiles = ComputePercentiles(s.samples)
	}
	return sum
}

// Progress returns a lightweight snapshot for periodic reporting. RPS is
// the rate over the window since the previous Progress call (or the start
// of the run); AvgRPS is the rate since the start. P95 comes from the HDR
// histogram and is nil until a latency has been recorded.
func (s *Stats) Progress(now time.Time) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.start)
	p := Progress{
		Elapsed: elapsed,
		Total:   s.total,
		Counts:  s.countsLocked(),
		RPS:     rate(s.total-s.lastProgressTotal, now.Sub(s.lastProgressAt)),
		AvgRPS:  rate(s.total, elapsed),
	}
	if now.After(s.lastProgressAt) {
		s.lastProgressAt = now
		s.lastProgressTotal = s.total
	}
	if s.hist.TotalCount() > 0 {
		p95 := float64(s.hist.ValueAtQuantile(95)) / 1000
		p.P95 = &p95
	}
	return p
}

func (s *Stats) countsLocked() Counts {
	return Counts{
		Success:     s.counts[0],
		Duplicate:   s.counts[1],
		RateLimited: s.counts[2],
		BadRequest:  s.counts[3],
		Error:       s.counts[4],
	}
}

func kindIndex(k dispatch.Kind) int {
	for i, kind := range kindOrder {
		if kind == k {
			return i
		}
	}
	return -1
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < histogramMin {
		return histogramMin
	}
	if us > histogramMax {
		return histogramMax
	}
	return us
}

func rate(total int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(total) / elapsed.Seconds()
}

func latencyStats(samples []float64) *LatencyStats {
	ls := &LatencyStats{
		Count: len(samples),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	var sum float64
	for _, v := range samples {
		sum += v
		ls.Min = math.Min(ls.Min, v)
		ls.Max = math.Max(ls.Max, v)
	}
	ls.Mean = sum / float64(len(samples))
	return ls
}
