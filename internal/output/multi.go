package output

import "github.com/pulse-events/loadgen/internal/metrics"

// Reporter receives progress updates and the final summary of a run.
type Reporter interface {
	OnProgress(p metrics.Progress)
	OnFinal(s metrics.Summary)
}

// Multi forwards every update to each reporter in order.
type Multi []Reporter

// OnProgress implements Reporter.
func (m Multi) OnProgress(p metrics.Progress) {
	for _, r := range m {
		r.OnProgress(p)
	}
}

// OnFinal implements Reporter.
func (m Multi) OnFinal(s metrics.Summary) {
	for _, r := range m {
		r.OnFinal(s)
	}
}
