package event

import (
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-events/loadgen/internal/random"
)

var (
	eventIDPattern = regexp.MustCompile(`^evt_[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	userIDPattern  = regexp.MustCompile(`^user_[1-9][0-9]{3}$`)
	sessionPattern = regexp.MustCompile(`^[a-z0-9]{20}$`)
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFactory_GenerateWellFormed(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	f := NewFactory(random.New(1), WithClock(fixedClock(now)))

	ev := f.Generate(false)

	assert.False(t, ev.Malformed())
	assert.Regexp(t, eventIDPattern, ev.ID)
	assert.Contains(t, Types, ev.Type)
	assert.Equal(t, SchemaVersion, ev.SchemaVersion)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.True(t, ev.OccurredAt.Equal(now))

	assert.Regexp(t, userIDPattern, ev.Payload.UserID)
	assert.Regexp(t, sessionPattern, ev.Payload.SessionID)
	ip := net.ParseIP(ev.Payload.IP)
	require.NotNil(t, ip, "ip %q", ev.Payload.IP)
	assert.NotNil(t, ip.To4())
	assert.Equal(t, "value", ev.Payload.Data["key"])
	count, ok := ev.Payload.Data["count"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, 100)
}

func TestFactory_GenerateMalformedRemovesExactlyOneField(t *testing.T) {
	f := NewFactory(random.New(7))

	const n = 3000
	removed := make(map[Field]int)
	for i := 0; i < n; i++ {
		ev := f.Generate(true)
		require.True(t, ev.Malformed())

		present := 0
		for _, field := range RequiredFields {
			if ev.Has(field) {
				present++
			}
		}
		assert.Equal(t, len(RequiredFields)-1, present)
		assert.NotEmpty(t, ev.ID)
		removed[ev.Missing()]++
	}

	require.Len(t, removed, len(RequiredFields))
	for field, count := range removed {
		frac := float64(count) / n
		assert.InDelta(t, 1.0/3.0, frac, 0.05, "field %s removed %d times", field, count)
	}
}

func TestFactory_UniqueIdentifiers(t *testing.T) {
	f := NewFactory(random.New(99))

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := f.Generate(i%2 == 0).ID
		_, dup := seen[id]
		require.False(t, dup, "identifier %s generated twice", id)
		seen[id] = struct{}{}
	}
}

func TestFactory_SeedReproducible(t *testing.T) {
	clock := fixedClock(time.Unix(1700000000, 0))
	a := NewFactory(random.New(42), WithClock(clock))
	b := NewFactory(random.New(42), WithClock(clock))

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Generate(i%3 == 0), b.Generate(i%3 == 0))
	}
}
