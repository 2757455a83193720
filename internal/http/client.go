// Package http is the generator's outbound HTTP transport: a thin client
// over net/http with connection-pool tuning, per-request latency
// measurement and trace-context propagation.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// TransportConfig tunes the underlying connection pool.
type TransportConfig struct {
	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host, 0 is unlimited
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultTransportConfig returns pool settings sized for a single target
// host.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Client sends requests to the target.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	propagator propagation.TextMapPropagator
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a client with DefaultTimeout and DefaultTransportConfig,
// then applies options.
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: newTransport(DefaultTransportConfig()),
		},
		headers: make(map[string]string),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithTransport replaces the connection pool settings.
func WithTransport(cfg TransportConfig) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = newTransport(cfg)
	}
}

// WithPropagator sets the propagator used to inject trace context. When
// unset the global otel propagator is used at send time.
func WithPropagator(p propagation.TextMapPropagator) ClientOption {
	return func(c *Client) {
		c.propagator = p
	}
}

// Timeout returns the configured per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func newTransport(cfg TransportConfig) *http.Transport {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return transport
}

// Do sends req and reads the whole response body. Latency covers the span
// from just before the request is written until the body has been read.
// Transport failures, including timeouts, are returned unwrapped enough
// for errors.As to find a net.Error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.Build(ctx)
	if err != nil {
		return nil, err
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	propagator := c.propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	var firstByte time.Duration
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Since(start)
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode:      httpResp.StatusCode,
		Headers:         httpResp.Header,
		Latency:         latency,
		TimeToFirstByte: firstByte,
		body:            body,
	}, nil
}
