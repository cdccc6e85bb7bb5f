// Package metrics carries vprism's ambient, client-side instrumentation.
// No HTTP exposition server is wired here — §1's Non-goals place metrics
// export out of scope — but every counter is real and registered against a
// caller-supplied *prometheus.Registry so an embedding application can
// expose it however it likes (an HTTP handler, a push gateway, a test
// assertion against registry.Gather()).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/histogram vprism's internals touch.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CircuitState   *prometheus.GaugeVec
	RetryAttempts  *prometheus.CounterVec
	BatchInFlight  *prometheus.GaugeVec
	IngestRejected prometheus.Counter
}

// New builds and registers every metric against reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vprism",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier (l1, l2).",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vprism",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by tier (l1, l2).",
		}, []string{"tier"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vprism",
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Circuit breaker state by provider (0=closed, 1=half_open, 2=open).",
		}, []string{"provider"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vprism",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Retry attempts by provider and outcome (success, failure).",
		}, []string{"provider", "outcome"}),
		BatchInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vprism",
			Subsystem: "batch",
			Name:      "in_flight",
			Help:      "Queries currently in flight per provider group.",
		}, []string{"provider"}),
		IngestRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vprism",
			Subsystem: "ingestion",
			Name:      "rejected_rows_total",
			Help:      "Rows rejected by the ingestion validation pass.",
		}),
	}

	reg.MustRegister(m.CacheHits, m.CacheMisses, m.CircuitState, m.RetryAttempts, m.BatchInFlight, m.IngestRejected)
	return m
}

// CircuitStateValue maps a breaker state name to the gauge encoding above.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
