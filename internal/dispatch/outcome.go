package dispatch

import "time"

// Kind classifies the result of one dispatch.
type Kind int

const (
	KindSuccess Kind = iota
	KindDuplicate
	KindRateLimited
	KindBadRequest
	KindError
)

// Kinds lists every outcome kind in reporting order.
var Kinds = []Kind{KindSuccess, KindDuplicate, KindRateLimited, KindBadRequest, KindError}

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindDuplicate:
		return "duplicate"
	case KindRateLimited:
		return "rate_limited"
	case KindBadRequest:
		return "bad_request"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of a single request.
type Outcome struct {
	Kind Kind

	// Status is the HTTP status code, 0 when no response was received.
	Status int

	// Latency runs from just before send to response receipt or failure.
	// For timeouts it is the configured timeout.
	Latency time.Duration

	// Timeout is set when the request exceeded its deadline.
	Timeout bool

	// Err describes transport failures and unexpected statuses.
	Err string
}

// Accepted reports whether the target accepted the event, either fresh or
// as a duplicate. Only accepted outcomes contribute latency samples.
func (o Outcome) Accepted() bool {
	return o.Kind == KindSuccess || o.Kind == KindDuplicate
}

// LatencyMillis returns the latency in fractional milliseconds.
func (o Outcome) LatencyMillis() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}
