package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-events/loadgen/internal/random"
)

func TestValidator_GeneratedEvents(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	f := NewFactory(random.New(3))
	for i := 0; i < 50; i++ {
		assert.NoError(t, v.ValidateEvent(f.Generate(false)))

		bad := f.Generate(true)
		err := v.ValidateEvent(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), string(bad.Missing()))
	}
}

func TestValidator_Validate(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{
			name:  "complete",
			doc:   `{"event_id":"evt_1","event_type":"signup","schema_version":1,"occurred_at":"2026-01-01T00:00:00.5Z","payload":{}}`,
			valid: true,
		},
		{
			name: "zero schema version",
			doc:  `{"event_id":"evt_1","event_type":"signup","schema_version":0,"occurred_at":"2026-01-01T00:00:00Z","payload":{}}`,
		},
		{
			name: "timestamp not RFC 3339",
			doc:  `{"event_id":"evt_1","event_type":"signup","schema_version":1,"occurred_at":"yesterday","payload":{}}`,
		},
		{
			name: "empty identifier",
			doc:  `{"event_id":"","event_type":"signup","schema_version":1,"occurred_at":"2026-01-01T00:00:00Z","payload":{}}`,
		},
		{
			name: "missing payload",
			doc:  `{"event_id":"evt_1","event_type":"signup","schema_version":1,"occurred_at":"2026-01-01T00:00:00Z"}`,
		},
		{
			name: "not JSON",
			doc:  `{"event_id"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.doc))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
