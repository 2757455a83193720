package loadgen

// State is the lifecycle phase of a Scheduler.
type State int32

const (
	// StateIdle is the state before Run, and after a Run rejected by
	// configuration validation.
	StateIdle State = iota
	// StateRunning generates and dispatches requests.
	StateRunning
	// StateDraining waits for in-flight requests and emits the final report.
	StateDraining
	// StateDone is terminal.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
