// Package dispatch sends generated events to the ingestion endpoint and
// classifies each response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pulse-events/loadgen/internal/event"
	lhttp "github.com/pulse-events/loadgen/internal/http"
	"github.com/pulse-events/loadgen/pkg/jsonpath"
)

const tracerName = "github.com/pulse-events/loadgen/internal/dispatch"

// Header names sent with every event.
const (
	HeaderAPIKey         = "X-API-Key"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Sender performs HTTP requests. *lhttp.Client satisfies it.
type Sender interface {
	Do(ctx context.Context, req *lhttp.Request) (*lhttp.Response, error)
	Timeout() time.Duration
}

// Dispatcher posts events for a set of tenants. It holds no per-request
// state and is safe for concurrent use.
type Dispatcher struct {
	client      Sender
	url         string
	credentials map[string]string
	tracer      trace.Tracer
	logger      *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for transport failures.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTracerProvider sets the provider spans are started from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		d.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Dispatcher posting to url. credentials maps tenant names
// to API keys.
func New(client Sender, url string, credentials map[string]string, opts ...Option) *Dispatcher {
	creds := make(map[string]string, len(credentials))
	for tenant, key := range credentials {
		creds[tenant] = key
	}

	d := &Dispatcher{
		client:      client,
		url:         url,
		credentials: creds,
		tracer:      otel.Tracer(tracerName),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"))
	return d
}

// Dispatch sends ev once on behalf of tenant with the given idempotency
// key and classifies the result. It never retries and never returns an
// error: every failure becomes a KindError outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant string, ev event.Event, key string) Outcome {
	apiKey, ok := d.credentials[tenant]
	if !ok {
		return Outcome{Kind: KindError, Err: fmt.Sprintf("no credential for tenant %q", tenant)}
	}

	ctx, span := d.tracer.Start(ctx, "dispatch event",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("loadgen.tenant", tenant),
			attribute.String("loadgen.event_id", ev.ID),
			attribute.Bool("loadgen.malformed", ev.Malformed()),
		),
	)
	defer span.End()

	req := lhttp.NewRequest(http.MethodPost, d.url).
		WithHeader("Content-Type", "application/json").
		WithHeader(HeaderAPIKey, apiKey).
		WithHeader(HeaderIdempotencyKey, key).
		WithBody(ev)

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		out := d.failure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, out.Err)
		return out
	}

	out := classify(resp)
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.String("loadgen.outcome", out.Kind.String()),
		attribute.Float64("loadgen.latency_ms", out.LatencyMillis()),
		attribute.Float64("loadgen.ttfb_ms", float64(resp.TimeToFirstByte)/float64(time.Millisecond)),
	)
	if out.Kind == KindError {
		span.SetStatus(codes.Error, out.Err)
	}
	return out
}

func (d *Dispatcher) failure(err error) Outcome {
	if isTimeout(err) {
		d.logger.Debug("request timed out", zap.Duration("timeout", d.client.Timeout()))
		return Outcome{
			Kind:    KindError,
			Latency: d.client.Timeout(),
			Timeout: true,
			Err:     "timeout",
		}
	}
	d.logger.Debug("request failed", zap.Error(err))
	return Outcome{Kind: KindError, Err: err.Error()}
}

func classify(resp *lhttp.Response) Outcome {
	out := Outcome{Status: resp.StatusCode, Latency: resp.Latency}

	switch resp.StatusCode {
	case http.StatusAccepted:
		out.Kind = KindSuccess
		if isJSON(resp) && jsonpath.Bool(resp.BodyString(), "$.duplicate") {
			out.Kind = KindDuplicate
		}
	case http.StatusTooManyRequests:
		out.Kind = KindRateLimited
	case http.StatusBadRequest:
		out.Kind = KindBadRequest
	default:
		out.Kind = KindError
		out.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return out
}

// isJSON reports whether the response declares a JSON body. Only those
// are searched for the duplicate flag.
func isJSON(resp *lhttp.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
