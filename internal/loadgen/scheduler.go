// Package loadgen drives a paced stream of synthetic events at the
// ingestion endpoint, injecting duplicates and malformed payloads.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulse-events/loadgen/internal/config"
	"github.com/pulse-events/loadgen/internal/event"
	"github.com/pulse-events/loadgen/internal/idempotency"
	"github.com/pulse-events/loadgen/internal/metrics"
	"github.com/pulse-events/loadgen/internal/random"
)

// ErrAlreadyStarted is returned by Run on a scheduler that has already run.
var ErrAlreadyStarted = errors.New("loadgen: scheduler already started")

// Scheduler paces ticks at the configured rate for the configured
// duration. Each tick generates one event, picks an idempotency key and
// dispatches one request.
//
// All random draws, event generation and key issuing happen on the
// goroutine calling Run. With Concurrency above 1 only the dispatch itself
// runs on worker goroutines, at most Concurrency at a time.
type Scheduler struct {
	cfg        *config.Config
	dispatcher Dispatcher
	reporter   Reporter

	src       random.Source
	factory   *event.Factory
	pool      *idempotency.KeyPool
	stats     *metrics.Stats
	observer  metrics.Observer
	validator *event.Validator
	logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state   atomic.Int32
	started atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSource sets the random source for every decision of the run. When
// unset a source is seeded from cfg.Seed, or from the clock if that is 0.
func WithSource(src random.Source) Option {
	return func(s *Scheduler) {
		s.src = src
	}
}

// WithStats injects the aggregator. By default a fresh one is created when
// Run starts.
func WithStats(stats *metrics.Stats) Option {
	return func(s *Scheduler) {
		s.stats = stats
	}
}

// WithObserver forwards outcomes to o, typically a *metrics.Collector.
// It only applies to the default aggregator.
func WithObserver(o metrics.Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithValidator checks every generated event against the ingestion schema
// so the malformed tally counts what was actually sent.
func WithValidator(v *event.Validator) Option {
	return func(s *Scheduler) {
		s.validator = v
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithClock replaces the wall clock and the pacing sleep. sleep must
// return ctx.Err() when ctx is cancelled before d elapses.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// New creates a Scheduler. The configuration itself is validated by Run.
func New(cfg *config.Config, dispatcher Dispatcher, reporter Reporter, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if reporter == nil {
		return nil, errors.New("reporter is required")
	}

	s := &Scheduler{
		cfg:        cfg,
		dispatcher: dispatcher,
		reporter:   reporter,
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.src == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = random.NewSeed()
		}
		s.src = random.New(seed)
	}
	s.logger = s.logger.With(zap.String("component", "scheduler"))
	s.factory = event.NewFactory(s.src, event.WithClock(s.now))
	s.pool = idempotency.NewKeyPool(s.src, cfg.KeyPoolSize)

	return s, nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.logger.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", st))
}

// Run generates traffic until the configured duration elapses or ctx is
// cancelled, then drains in-flight requests and reports the final summary
// exactly once. Cancellation is a normal way to end a run and is not
// returned as an error.
//
// Run fails before sending anything if the configuration is invalid; the
// error wraps *config.ValidationErrors. A Scheduler runs at most once.
func (s *Scheduler) Run(ctx context.Context) (metrics.Summary, error) {
	if !s.started.CompareAndSwap(false, true) {
		return metrics.Summary{}, ErrAlreadyStarted
	}

	if err := s.cfg.Validate(); err != nil {
		s.started.Store(false)
		s.logger.Error("invalid configuration", zap.Error(err))
		return metrics.Summary{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if s.stats == nil {
		statsOpts := []metrics.Option{metrics.WithClock(s.now)}
		if s.observer != nil {
			statsOpts = append(statsOpts, metrics.WithObserver(s.observer))
		}
		s.stats = metrics.NewStats(statsOpts...)
	}

	s.logger.Info("run started",
		zap.String("url", s.cfg.URL),
		zap.Int("rps", s.cfg.RPS),
		zap.Duration("duration", s.cfg.Duration.Std()),
		zap.Float64("duplicate_rate", s.cfg.DuplicateRate),
		zap.Float64("bad_rate", s.cfg.BadRate),
		zap.Strings("tenants", s.cfg.Tenants),
		zap.Int("concurrency", s.cfg.Concurrency),
	)
	s.setState(StateRunning)

	var workers errgroup.Group
	workers.SetLimit(s.cfg.Concurrency)
	ticks := s.generate(ctx, &workers)

	s.setState(StateDraining)
	_ = workers.Wait()
	summary := s.stats.Summary()
	s.reporter.OnFinal(summary)
	s.setState(StateDone)

	s.logger.Info("run finished",
		zap.Int("ticks", ticks),
		zap.Int64("total", summary.Total),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
	return summary, nil
}

// generate runs the tick loop and returns the number of ticks. Requests
// handed to workers may still be in flight when it returns.
func (s *Scheduler) generate(ctx context.Context, workers *errgroup.Group) int {
	var (
		start    = s.now()
		duration = s.cfg.Duration.Std()
		interval = time.Second / time.Duration(s.cfg.RPS)
		tenants  = s.cfg.Tenants
		every    = s.cfg.ProgressEvery
	)

	// In-flight requests finish during draining even after ctx is
	// cancelled; the client timeout bounds them.
	dispatchCtx := context.WithoutCancel(ctx)

	ticks := 0
	for ctx.Err() == nil && s.now().Sub(start) < duration {
		tickStart := s.now()

		tenant := tenants[s.src.IntN(len(tenants))]
		isBad := s.src.Float64() < s.cfg.BadRate
		isDup := s.src.Float64() < s.cfg.DuplicateRate

		ev := s.factory.Generate(isBad)
		key, replayed := s.pool.Issue(isDup)
		s.stats.RecordInjection(replayed, s.malformed(ev))

		if s.cfg.Concurrency <= 1 {
			s.stats.Record(s.dispatcher.Dispatch(dispatchCtx, tenant, ev, key))
		} else {
			workers.Go(func() error {
				s.stats.Record(s.dispatcher.Dispatch(dispatchCtx, tenant, ev, key))
				return nil
			})
		}

		ticks++
		if ticks%every == 0 {
			s.reporter.OnProgress(s.stats.Progress(s.now()))
		}

		if wait := interval - s.now().Sub(tickStart); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				break
			}
		}
	}
	return ticks
}

func (s *Scheduler) malformed(ev event.Event) bool {
	if s.validator == nil {
		return ev.Malformed()
	}
	if err := s.validator.ValidateEvent(ev); err != nil {
		s.logger.Debug("sending invalid event", zap.String("event_id", ev.ID), zap.Error(err))
		return true
	}
	return false
}

// Stats returns the aggregator of the run, nil before Run starts unless
// one was injected.
func (s *Scheduler) Stats() *metrics.Stats {
	return s.stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
