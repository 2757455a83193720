package event

import (
	"fmt"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/pulse-events/loadgen/internal/random"
)

// Factory builds events from a seedable random source.
//
// A Factory is not safe for concurrent use; the scheduler owns one and
// calls it from its control goroutine only.
type Factory struct {
	src   random.Source
	faker *gofakeit.Faker
	ids   io.Reader
	now   func() time.Time
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithClock overrides the clock used for occurred_at.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		f.now = now
	}
}

// NewFactory creates a Factory drawing all randomness from src.
func NewFactory(src random.Source, opts ...FactoryOption) *Factory {
	f := &Factory{
		src:   src,
		faker: gofakeit.NewFaker(src, false),
		ids:   random.Reader(src),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Generate returns a fresh event. When malformed is true exactly one of
// the required fields, chosen uniformly, is removed.
func (f *Factory) Generate(malformed bool) Event {
	id, err := uuid.NewRandomFromReader(f.ids)
	if err != nil {
		id = uuid.New()
	}

	ev := Event{
		ID:            "evt_" + id.String(),
		Type:          Types[f.src.IntN(len(Types))],
		SchemaVersion: SchemaVersion,
		OccurredAt:    f.now().UTC(),
		Payload: Payload{
			UserID:    fmt.Sprintf("user_%d", 1000+f.src.IntN(9000)),
			IP:        f.faker.IPv4Address(),
			SessionID: random.String(f.src, 20),
			Data: map[string]any{
				"key":   "value",
				"count": 1 + f.src.IntN(100),
			},
		},
	}

	if malformed {
		ev.missing = RequiredFields[f.src.IntN(len(RequiredFields))]
	}
	return ev
}
