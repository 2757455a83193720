package metrics

import (
	"time"

	"github.com/pulse-events/loadgen/internal/dispatch"
)

// Counts holds the number of outcomes per kind.
type Counts struct {
	Success     int64 `json:"success"`
	Duplicate   int64 `json:"duplicate"`
	RateLimited int64 `json:"rate_limited"`
	BadRequest  int64 `json:"bad_request"`
	Error       int64 `json:"error"`
}

// Sum returns the total over all kinds.
func (c Counts) Sum() int64 {
	return c.Success + c.Duplicate + c.RateLimited + c.BadRequest + c.Error
}

// Get returns the count for kind k.
func (c Counts) Get(k dispatch.Kind) int64 {
	switch k {
	case dispatch.KindSuccess:
		return c.Success
	case dispatch.KindDuplicate:
		return c.Duplicate
	case dispatch.KindRateLimited:
		return c.RateLimited
	case dispatch.KindBadRequest:
		return c.BadRequest
	case dispatch.KindError:
		return c.Error
	}
	return 0
}

// Rates converts counts to fractions of total. All rates are zero when
// total is zero.
func (c Counts) Rates(total int64) Rates {
	if total == 0 {
		return Rates{}
	}
	t := float64(total)
	return Rates{
		Success:     float64(c.Success) / t,
		Duplicate:   float64(c.Duplicate) / t,
		RateLimited: float64(c.RateLimited) / t,
		BadRequest:  float64(c.BadRequest) / t,
		Error:       float64(c.Error) / t,
	}
}

// Rates holds per-kind fractions of the total, in [0, 1].
type Rates struct {
	Success     float64 `json:"success"`
	Duplicate   float64 `json:"duplicate"`
	RateLimited float64 `json:"rate_limited"`
	BadRequest  float64 `json:"bad_request"`
	Error       float64 `json:"error"`
}

// Get returns the rate for kind k.
func (r Rates) Get(k dispatch.Kind) float64 {
	switch k {
	case dispatch.KindSuccess:
		return r.Success
	case dispatch.KindDuplicate:
		return r.Duplicate
	case dispatch.KindRateLimited:
		return r.RateLimited
	case dispatch.KindBadRequest:
		return r.BadRequest
	case dispatch.KindError:
		return r.Error
	}
	return 0
}

// Injected tallies the faults the generator injected.
type Injected struct {
	ReplayedKeys    int64 `json:"replayed_keys"`
	MalformedEvents int64 `json:"malformed_events"`
}

// LatencyStats summarises accepted-request latencies in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ms"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
}

// Summary is the final report of a run.
type Summary struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Total     int64         `json:"total"`
	Counts    Counts        `json:"counts"`
	Rates     Rates         `json:"rates"`
	Timeouts  int64         `json:"timeouts"`
	Injected  Injected      `json:"injected"`
	ActualRPS float64       `json:"actual_rps"`

	// Latency is nil when no request was accepted.
	Latency *LatencyStats `json:"latency,omitempty"`

	// Percentiles is nil with fewer than MinPercentileSamples samples.
	Percentiles *Percentiles `json:"percentiles,omitempty"`
}

// Progress is a periodic snapshot of a running generator.
type Progress struct {
	Elapsed time.Duration
	Total   int64
	Counts  Counts

	// RPS is the achieved rate since the previous snapshot
	RPS float64

	// AvgRPS is the achieved rate since the start of the run
	AvgRPS float64

	// P95 is the live 95th percentile latency in milliseconds, nil until
	// the first accepted response.
	P95 *float64
}
