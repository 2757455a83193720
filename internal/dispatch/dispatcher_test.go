package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulse-events/loadgen/internal/event"
	lhttp "github.com/pulse-events/loadgen/internal/http"
	"github.com/pulse-events/loadgen/internal/random"
)

var testCredentials = map[string]string{"tenant_a": "key_a", "tenant_b": "key_b"}

func newEvent(t *testing.T, malformed bool) event.Event {
	t.Helper()
	return event.NewFactory(random.New(1)).Generate(malformed)
}

func TestDispatcher_Classification(t *testing.T) {
	const jsonType = "application/json"

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantKind    Kind
		wantErr     string
	}{
		{name: "accepted", status: 202, contentType: jsonType, body: `{"status":"accepted","request_id":"r1"}`, wantKind: KindSuccess},
		{name: "accepted duplicate", status: 202, contentType: jsonType, body: `{"status":"accepted","duplicate":true}`, wantKind: KindDuplicate},
		{name: "accepted duplicate with charset", status: 202, contentType: "application/json; charset=utf-8", body: `{"duplicate":true}`, wantKind: KindDuplicate},
		{name: "accepted duplicate mixed case type", status: 202, contentType: "Application/JSON", body: `{"duplicate":true}`, wantKind: KindDuplicate},
		{name: "accepted duplicate false", status: 202, contentType: jsonType, body: `{"duplicate":false}`, wantKind: KindSuccess},
		{name: "duplicate flag in text body", status: 202, contentType: "text/plain", body: `{"duplicate":true}`, wantKind: KindSuccess},
		{name: "duplicate flag without declared type", status: 202, body: `{"duplicate":true}`, wantKind: KindSuccess},
		{name: "duplicate flag with malformed type", status: 202, contentType: "application/json; =", body: `{"duplicate":true}`, wantKind: KindSuccess},
		{name: "accepted empty body", status: 202, contentType: jsonType, wantKind: KindSuccess},
		{name: "accepted non-JSON body", status: 202, contentType: jsonType, body: "ok", wantKind: KindSuccess},
		{name: "rate limited", status: 429, wantKind: KindRateLimited},
		{name: "bad request", status: 400, contentType: jsonType, body: `{"error":{"code":"invalid_request"}}`, wantKind: KindBadRequest},
		{name: "unauthorized", status: 401, wantKind: KindError, wantErr: "unexpected status 401"},
		{name: "server error", status: 503, wantKind: KindError, wantErr: "unexpected status 503"},
		{name: "ok is unexpected", status: 200, wantKind: KindError, wantErr: "unexpected status 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			d := New(lhttp.NewClient(), server.URL+"/events", testCredentials)
			out := d.Dispatch(context.Background(), "tenant_a", newEvent(t, false), "idem_x")

			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.wantErr, out.Err)
			assert.False(t, out.Timeout)
			assert.Greater(t, out.Latency, time.Duration(0))
		})
	}
}

func TestDispatcher_SendsEventWithHeaders(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    map[string]any
		gotMethod  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ev := newEvent(t, true)
	d := New(lhttp.NewClient(), server.URL, testCredentials)
	out := d.Dispatch(context.Background(), "tenant_b", ev, "idem_abc")
	require.Equal(t, KindSuccess, out.Kind)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "key_b", gotHeaders.Get(HeaderAPIKey))
	assert.Equal(t, "idem_abc", gotHeaders.Get(HeaderIdempotencyKey))

	assert.Equal(t, ev.ID, gotBody["event_id"])
	assert.NotContains(t, gotBody, string(ev.Missing()))
	assert.Contains(t, gotBody, "payload")
}

func TestDispatcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	timeout := 50 * time.Millisecond
	d := New(lhttp.NewClient(lhttp.WithTimeout(timeout)), server.URL, testCredentials)
	out := d.Dispatch(context.Background(), "tenant_a", newEvent(t, false), "idem_x")

	assert.Equal(t, KindError, out.Kind)
	assert.True(t, out.Timeout)
	assert.Equal(t, timeout, out.Latency)
	assert.Equal(t, 0, out.Status)
	assert.False(t, out.Accepted())
}

func TestDispatcher_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	d := New(lhttp.NewClient(lhttp.WithTimeout(time.Second)), url, testCredentials)
	out := d.Dispatch(context.Background(), "tenant_a", newEvent(t, false), "idem_x")

	assert.Equal(t, KindError, out.Kind)
	assert.False(t, out.Timeout)
	assert.Equal(t, time.Duration(0), out.Latency)
	assert.NotEmpty(t, out.Err)
}

func TestDispatcher_UnknownTenant(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := New(lhttp.NewClient(), server.URL, testCredentials)
	out := d.Dispatch(context.Background(), "tenant_z", newEvent(t, false), "idem_x")

	assert.Equal(t, KindError, out.Kind)
	assert.Contains(t, out.Err, "tenant_z")
	assert.Equal(t, int32(0), hits.Load())
}

func TestDispatcher_CredentialsCopied(t *testing.T) {
	creds := map[string]string{"tenant_a": "key_a"}
	d := New(lhttp.NewClient(), "http://localhost", creds)
	creds["tenant_a"] = "changed"

	assert.Equal(t, "key_a", d.credentials["tenant_a"])
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestDispatcher_Spans(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome string
		wantCode    codes.Code
	}{
		{name: "duplicate", status: 202, body: `{"duplicate":true}`, wantOutcome: "duplicate", wantCode: codes.Unset},
		{name: "rate limited", status: 429, wantOutcome: "rate_limited", wantCode: codes.Unset},
		{name: "server error", status: 500, wantOutcome: "error", wantCode: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			recorder := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
			defer tp.Shutdown(context.Background())

			ev := newEvent(t, true)
			d := New(lhttp.NewClient(), server.URL, testCredentials, WithTracerProvider(tp))
			d.Dispatch(context.Background(), "tenant_b", ev, "idem_x")

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			span := spans[0]
			assert.Equal(t, "dispatch event", span.Name())
			assert.Equal(t, trace.SpanKindClient, span.SpanKind())
			assert.Equal(t, tt.wantCode, span.Status().Code)

			attrs := spanAttributes(span)
			assert.Equal(t, "tenant_b", attrs["loadgen.tenant"].AsString())
			assert.Equal(t, ev.ID, attrs["loadgen.event_id"].AsString())
			assert.True(t, attrs["loadgen.malformed"].AsBool())
			assert.Equal(t, int64(tt.status), attrs["http.response.status_code"].AsInt64())
			assert.Equal(t, tt.wantOutcome, attrs["loadgen.outcome"].AsString())
			assert.Greater(t, attrs["loadgen.latency_ms"].AsFloat64(), 0.0)
			require.Contains(t, attrs, attribute.Key("loadgen.ttfb_ms"))
			assert.Greater(t, attrs["loadgen.ttfb_ms"].AsFloat64(), 0.0)
			assert.LessOrEqual(t, attrs["loadgen.ttfb_ms"].AsFloat64(), attrs["loadgen.latency_ms"].AsFloat64())
		})
	}
}

func TestDispatcher_SpanOnTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	d := New(lhttp.NewClient(lhttp.WithTimeout(time.Second)), url, testCredentials, WithTracerProvider(tp))
	out := d.Dispatch(context.Background(), "tenant_a", newEvent(t, false), "idem_x")
	require.Equal(t, KindError, out.Kind)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, out.Err, spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
