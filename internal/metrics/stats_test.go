package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-events/loadgen/internal/dispatch"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func TestStats_EmptySummary(t *testing.T) {
	clock := newFakeClock()
	s := NewStats(WithClock(clock.Now))

	sum := s.Summary()

	assert.Equal(t, int64(0), sum.Total)
	assert.Equal(t, Rates{}, sum.Rates)
	assert.Nil(t, sum.Latency)
	assert.Nil(t, sum.Percentiles)
	assert.Equal(t, 0.0, sum.ActualRPS)
}

func TestStats_CounterSumInvariant(t *testing.T) {
	s := NewStats()
	outcomes := []dispatch.Outcome{
		{Kind: dispatch.KindSuccess, Status: 202, Latency: ms(10)},
		{Kind: dispatch.KindDuplicate, Status: 202, Latency: ms(20)},
		{Kind: dispatch.KindRateLimited, Status: 429, Latency: ms(1)},
		{Kind: dispatch.KindBadRequest, Status: 400, Latency: ms(2)},
		{Kind: dispatch.KindError, Status: 503, Latency: ms(3), Err: "unexpected status 503"},
		{Kind: dispatch.KindError, Latency: 5 * time.Second, Timeout: true, Err: "timeout"},
	}

	for i, out := range outcomes {
		s.Record(out)
		sum := s.Summary()
		assert.Equal(t, int64(i+1), sum.Total)
		assert.Equal(t, sum.Total, sum.Counts.Sum())
	}

	sum := s.Summary()
	assert.Equal(t, Counts{Success: 1, Duplicate: 1, RateLimited: 1, BadRequest: 1, Error: 2}, sum.Counts)
	assert.Equal(t, int64(1), sum.Timeouts)
	assert.Equal(t, int64(2), s.Count(dispatch.KindError))

	require.NotNil(t, sum.Latency)
	assert.Equal(t, 2, sum.Latency.Count, "only accepted outcomes are sampled")
	assert.InDelta(t, 15, sum.Latency.Mean, 1e-9)
	assert.InDelta(t, 10, sum.Latency.Min, 1e-9)
	assert.InDelta(t, 20, sum.Latency.Max, 1e-9)
	assert.Nil(t, sum.Percentiles)

	assert.InDelta(t, 2.0/6.0, sum.Rates.Error, 1e-9)
	assert.InDelta(t, 1.0/6.0, sum.Rates.Get(dispatch.KindSuccess), 1e-9)
}

func TestStats_PercentilesFromSamples(t *testing.T) {
	s := NewStats()
	for _, v := range []int{10, 20, 30, 40} {
		s.Record(dispatch.Outcome{Kind: dispatch.KindSuccess, Status: 202, Latency: ms(v)})
	}

	sum := s.Summary()
	require.NotNil(t, sum.Percentiles)
	assert.InDelta(t, 25, sum.Percentiles.P50, 1e-9)
}

func TestStats_RateLimitedNotSampled(t *testing.T) {
	s := NewStats()
	for i := 0; i < 10; i++ {
		s.Record(dispatch.Outcome{Kind: dispatch.KindRateLimited, Status: 429, Latency: ms(5)})
	}

	sum := s.Summary()
	assert.Equal(t, int64(10), sum.Counts.RateLimited)
	assert.InDelta(t, 1.0, sum.Rates.RateLimited, 1e-9)
	assert.Nil(t, sum.Latency)
	assert.Nil(t, sum.Percentiles)
}

func TestStats_ProgressAndRate(t *testing.T) {
	clock := newFakeClock()
	s := NewStats(WithClock(clock.Now))

	p := s.Progress(clock.Now())
	assert.Equal(t, 0.0, p.RPS)
	assert.Nil(t, p.P95)

	for i := 1; i <= 20; i++ {
		s.Record(dispatch.Outcome{Kind: dispatch.KindSuccess, Status: 202, Latency: ms(i)})
	}
	clock.Advance(2 * time.Second)

	p = s.Progress(clock.Now())
	assert.Equal(t, int64(20), p.Total)
	assert.Equal(t, int64(20), p.Counts.Success)
	assert.InDelta(t, 10, p.RPS, 1e-9)
	assert.InDelta(t, 10, p.AvgRPS, 1e-9)
	require.NotNil(t, p.P95)
	assert.InDelta(t, 19, *p.P95, 0.1)

	sum := s.Summary()
	assert.Equal(t, 2*time.Second, sum.Elapsed)
	assert.InDelta(t, 10, sum.ActualRPS, 1e-9)
}

func TestStats_ProgressRateIsWindowed(t *testing.T) {
	clock := newFakeClock()
	s := NewStats(WithClock(clock.Now))

	// 40 requests in the first 2s, then 5 in the next second
	for i := 0; i < 40; i++ {
		s.Record(dispatch.Outcome{Kind: dispatch.KindRateLimited, Status: 429})
	}
	clock.Advance(2 * time.Second)
	p := s.Progress(clock.Now())
	assert.InDelta(t, 20, p.RPS, 1e-9)
	assert.InDelta(t, 20, p.AvgRPS, 1e-9)

	for i := 0; i < 5; i++ {
		s.Record(dispatch.Outcome{Kind: dispatch.KindRateLimited, Status: 429})
	}
	clock.Advance(time.Second)
	p = s.Progress(clock.Now())
	assert.InDelta(t, 5, p.RPS, 1e-9)
	assert.InDelta(t, 15, p.AvgRPS, 1e-9)

	// a repeated snapshot at the same instant has an empty window
	p = s.Progress(clock.Now())
	assert.Equal(t, 0.0, p.RPS)
	assert.InDelta(t, 15, p.AvgRPS, 1e-9)
}

func TestStats_RecordInjection(t *testing.T) {
	s := NewStats()
	s.RecordInjection(true, false)
	s.RecordInjection(true, true)
	s.RecordInjection(false, false)

	sum := s.Summary()
	assert.Equal(t, Injected{ReplayedKeys: 2, MalformedEvents: 1}, sum.Injected)
	assert.Equal(t, int64(0), sum.Total)
}

type recordingObserver struct {
	mu         sync.Mutex
	outcomes   []dispatch.Outcome
	injections int
}

func (o *recordingObserver) ObserveOutcome(out dispatch.Outcome) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, out)
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveInjection(replayed, malformed bool) {
	o.mu.Lock()
	o.injections++
	o.mu.Unlock()
}

func TestStats_Observer(t *testing.T) {
	obs := &recordingObserver{}
	s := NewStats(WithObserver(obs))

	s.Record(dispatch.Outcome{Kind: dispatch.KindBadRequest, Status: 400})
	s.RecordInjection(false, true)

	assert.Len(t, obs.outcomes, 1)
	assert.Equal(t, 1, obs.injections)
}

func TestStats_ConcurrentRecord(t *testing.T) {
	s := NewStats()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(kind dispatch.Kind) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				s.Record(dispatch.Outcome{Kind: kind, Latency: ms(1)})
			}
		}(dispatch.Kinds[g%len(dispatch.Kinds)])
	}
	wg.Wait()

	sum := s.Summary()
	assert.Equal(t, int64(2000), sum.Total)
	assert.Equal(t, sum.Total, sum.Counts.Sum())
}
