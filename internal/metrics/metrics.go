// Package metrics exposes Prometheus counters for envgod loads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "envgod"

// Outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeError        = "error"
	OutcomeUnauthorized = "unauthorized"
	OutcomeTimeout      = "timeout"
)

// Metrics holds the collectors for one loader. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Loads         *prometheus.CounterVec
	Exchanges     *prometheus.CounterVec
	BundleFetches *prometheus.CounterVec
	CacheHits     prometheus.Counter
	Retries       prometheus.Counter
	LoadDuration  prometheus.Histogram
}

// New registers collectors with reg. A nil reg creates unregistered
// collectors, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Completed load computations by outcome",
		}, []string{"outcome"}),
		Exchanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Token exchange requests by outcome",
		}, []string{"outcome"}),
		BundleFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_fetches_total",
			Help:      "Bundle fetch requests by outcome",
		}, []string{"outcome"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Loads served from cache without network calls",
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_retries_total",
			Help:      "Refresh-and-retry cycles triggered by a 401 bundle fetch",
		}),
		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of load computations",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveLoad records a finished load computation.
func (m *Metrics) ObserveLoad(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(outcome).Inc()
	m.LoadDuration.Observe(d.Seconds())
}

// ObserveExchange records one token exchange request.
func (m *Metrics) ObserveExchange(outcome string) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one bundle fetch request.
func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.BundleFetches.WithLabelValues(outcome).Inc()
}

// CacheHit records a load served entirely from cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// Retry records an unauthorized retry cycle.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}
