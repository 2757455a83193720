// Package testtarget is an in-process emulator of the event ingestion
// endpoint. It authenticates by API key, validates events, detects replayed
// idempotency keys and can be told to throttle, fail or slow down, so the
// generator can be exercised without the real platform.
package testtarget

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Config controls the emulator's behaviour.
type Config struct {
	// APIKeys maps API keys to tenant names
	APIKeys map[string]string

	// RateLimitPerMinute throttles each tenant per wall-clock minute; 0 disables it
	RateLimitPerMinute int

	// IdempotencyTTL is how long a key is remembered; 0 remembers forever
	IdempotencyTTL time.Duration

	// Latency is added before every response
	Latency time.Duration

	// FixedStatus, when non-zero, answers every authenticated request with
	// this status instead of processing it
	FixedStatus int
}

// DefaultConfig returns a configuration accepting the generator's default
// credentials.
func DefaultConfig() Config {
	return Config{
		APIKeys: map[string]string{
			"key_a": "tenant_a",
			"key_b": "tenant_b",
		},
		IdempotencyTTL: 24 * time.Hour,
	}
}

// Counters tallies what the emulator has answered.
type Counters struct {
	Accepted     int64 `json:"accepted"`
	Duplicates   int64 `json:"duplicates"`
	Invalid      int64 `json:"invalid"`
	Unauthorized int64 `json:"unauthorized"`
	RateLimited  int64 `json:"rate_limited"`
	Forced       int64 `json:"forced"`
}

// Server is the emulator. It is an http.Handler.
type Server struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	router chi.Router

	idemMu sync.Mutex
	idem   map[string]time.Time

	limitMu sync.Mutex
	window  string
	usage   map[string]int

	accepted     atomic.Int64
	duplicates   atomic.Int64
	invalid      atomic.Int64
	unauthorized atomic.Int64
	rateLimited  atomic.Int64
	forced       atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock overrides the clock used for rate-limit windows and key expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates an emulator.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		idem:   make(map[string]time.Time),
		usage:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "testtarget"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.delay)
		r.Use(s.forceStatus)
		r.Use(s.rateLimit)
		r.Post("/events", s.handleIngest)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Counters returns a snapshot of the response tallies.
func (s *Server) Counters() Counters {
	return Counters{
		Accepted:     s.accepted.Load(),
		Duplicates:   s.duplicates.Load(),
		Invalid:      s.invalid.Load(),
		Unauthorized: s.unauthorized.Load(),
		RateLimited:  s.rateLimited.Load(),
		Forced:       s.forced.Load(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"counters": s.Counters(),
	})
}
