package loadgen

import (
	"context"

	"github.com/pulse-events/loadgen/internal/dispatch"
	"github.com/pulse-events/loadgen/internal/event"
	"github.com/pulse-events/loadgen/internal/metrics"
)

// Dispatcher sends one event and classifies the response.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenant string, ev event.Event, key string) dispatch.Outcome
}

// Reporter receives periodic progress and exactly one final summary per
// run.
type Reporter interface {
	OnProgress(p metrics.Progress)
	OnFinal(s metrics.Summary)
}
