package metrics

import "sort"

// MinPercentileSamples is the smallest sample count for which percentiles
// are reported.
const MinPercentileSamples = 4

// Percentiles holds the reported latency percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`
}

// ComputePercentiles returns P50, P95 and P99 of samples, or nil when
// there are fewer than MinPercentileSamples. samples is not modified.
func ComputePercentiles(samples []float64) *Percentiles {
	if len(samples) < MinPercentileSamples {
		return nil
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return &Percentiles{
		P50: exclusiveQuantile(sorted, 50),
		P95: exclusiveQuantile(sorted, 95),
		P99: exclusiveQuantile(sorted, 99),
	}
}

// exclusiveQuantile computes the p-th percentile of sorted data with the
// exclusive method: the rank is p*(n+1)/100, the lower index is clamped to
// [1, n-1] and the value is linearly interpolated from its neighbours.
// Near the ends the clamp makes the interpolation extrapolate, so P99 of a
// small sample may exceed its maximum. len(sorted) must be at least 2.
func exclusiveQuantile(sorted []float64, p int) float64 {
	const buckets = 100
	n := len(sorted)
	m := n + 1

	j := p * m / buckets
	if j < 1 {
		j = 1
	}
	if j > n-1 {
		j = n - 1
	}
	delta := float64(p*m - j*buckets)

	return (sorted[j-1]*(buckets-delta) + sorted[j]*delta) / buckets
}
