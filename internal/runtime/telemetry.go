package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the crawl pipeline. A nil
// *Metrics is valid and records nothing, so components never need to guard.
type Metrics struct {
	FetchTotal       *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RateLimitDenials prometheus.Counter
	SearchRequests   prometheus.Counter
	BatchDuration    prometheus.Histogram
	RecoveryRuns     prometheus.Counter
}

// NewMetrics registers the crawl agent's instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlagent_fetch_total",
			Help: "Fetch attempts by outcome.",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlagent_cache_hits_total",
			Help: "Content cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlagent_cache_misses_total",
			Help: "Content cache misses (absent, expired or stale).",
		}),
		RateLimitDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlagent_ratelimit_denials_total",
			Help: "Fetches denied by per-origin admission control.",
		}),
		SearchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlagent_search_requests_total",
			Help: "Search backend page requests.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawlagent_batch_duration_seconds",
			Help:    "Wall time of FetchMany calls.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		RecoveryRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlagent_recovery_runs_total",
			Help: "Orchestrator recovery cycles started.",
		}),
	}
	reg.MustRegister(
		m.FetchTotal, m.CacheHits, m.CacheMisses, m.RateLimitDenials,
		m.SearchRequests, m.BatchDuration, m.RecoveryRuns,
	)
	return m
}

// ObserveFetch records a fetch outcome label ("success", "invalid", "error").
func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) ObserveRateLimitDenial() {
	if m == nil {
		return
	}
	m.RateLimitDenials.Inc()
}

func (m *Metrics) ObserveSearchRequest() {
	if m == nil {
		return
	}
	m.SearchRequests.Inc()
}

func (m *Metrics) ObserveBatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(seconds)
}

func (m *Metrics) ObserveRecovery() {
	if m == nil {
		return
	}
	m.RecoveryRuns.Inc()
}
