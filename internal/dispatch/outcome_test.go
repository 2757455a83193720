package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind_String(t *testing.T) {
	want := []string{"success", "duplicate", "rate_limited", "bad_request", "error"}
	for i, k := range Kinds {
		assert.Equal(t, want[i], k.String())
	}
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestOutcome_Accepted(t *testing.T) {
	for _, k := range Kinds {
		out := Outcome{Kind: k}
		assert.Equal(t, k == KindSuccess || k == KindDuplicate, out.Accepted(), k.String())
	}
}

func TestOutcome_LatencyMillis(t *testing.T) {
	out := Outcome{Latency: 1500 * time.Microsecond}
	assert.InDelta(t, 1.5, out.LatencyMillis(), 1e-9)
}
