package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulse-events/loadgen/internal/dispatch"
)

// Collector exports the generator's own activity as Prometheus metrics.
type Collector struct {
	Requests *prometheus.CounterVec
	Latency  prometheus.Histogram
	Timeouts prometheus.Counter
	Injected *prometheus.CounterVec
	registry *prometheus.Registry
}

// NewCollector registers the generator metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgen_requests_total",
			Help: "Requests sent to the ingestion endpoint by outcome",
		}, []string{"outcome"}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "loadgen_accepted_latency_seconds",
			Help:    "Latency of requests accepted by the ingestion endpoint",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		Timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "loadgen_request_timeouts_total",
			Help: "Requests that exceeded the dispatch timeout",
		}),
		Injected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loadgen_injected_faults_total",
			Help: "Faults deliberately injected into requests",
		}, []string{"fault"}),
		registry: reg,
	}
}

// ObserveOutcome implements Observer.
func (c *Collector) ObserveOutcome(out dispatch.Outcome) {
	c.Requests.WithLabelValues(out.Kind.String()).Inc()
	if out.Timeout {
		c.Timeouts.Inc()
	}
	if out.Accepted() {
		c.Latency.Observe(out.Latency.Seconds())
	}
}

// ObserveInjection implements Observer.
func (c *Collector) ObserveInjection(replayed, malformed bool) {
	if replayed {
		c.Injected.WithLabelValues("replayed_key").Inc()
	}
	if malformed {
		c.Injected.WithLabelValues("malformed_event").Inc()
	}
}

// Gatherer returns the registry holding the generator metrics.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
