// Package metrics holds the Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the relay. Components treat a
// nil *Metrics as instrumentation disabled.
type Metrics struct {
	SearchJobsTotal    *prometheus.CounterVec
	JobStatesTotal     *prometheus.CounterVec
	EntitiesTotal      *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	EnrichmentDuration *prometheus.HistogramVec
	IntelCacheHits     prometheus.Counter
	IntelCacheMisses   prometheus.Counter
}

// NewMetrics registers all collectors on the default registry. Call once per
// process.
func NewMetrics() *Metrics {
	return &Metrics{
		SearchJobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sumo_relay_search_jobs_total",
			Help: "Search jobs submitted to Sumo Logic, by mode",
		}, []string{"mode"}),
		JobStatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sumo_relay_job_terminal_states_total",
			Help: "Terminal job states observed, by state",
		}, []string{"state"}),
		EntitiesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sumo_relay_entities_total",
			Help: "CTIM entities emitted, by type",
		}, []string{"type"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sumo_relay_errors_total",
			Help: "Errors and warnings collected, by severity",
		}, []string{"severity"}),
		EnrichmentDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sumo_relay_enrichment_duration_seconds",
			Help:    "Wall-clock duration of one observable's enrichment, by flow",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"flow"}),
		IntelCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sumo_relay_intel_cache_hits_total",
			Help: "Intel lookups served from the in-process cache",
		}),
		IntelCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sumo_relay_intel_cache_misses_total",
			Help: "Intel lookups that went to Sumo Logic",
		}),
	}
}

// IncSearchJob counts one submitted search job.
func (m *Metrics) IncSearchJob(mode string) {
	if m == nil {
		return
	}
	m.SearchJobsTotal.WithLabelValues(mode).Inc()
}

// IncJobState counts one observed terminal job state.
func (m *Metrics) IncJobState(state string) {
	if m == nil {
		return
	}
	m.JobStatesTotal.WithLabelValues(state).Inc()
}

// IncEntities counts emitted entities of one type.
func (m *Metrics) IncEntities(entityType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EntitiesTotal.WithLabelValues(entityType).Add(float64(n))
}

// IncError counts one collected error or warning.
func (m *Metrics) IncError(severity string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(severity).Inc()
}

// ObserveEnrichment records one observable's enrichment duration.
func (m *Metrics) ObserveEnrichment(flow string, seconds float64) {
	if m == nil {
		return
	}
	m.EnrichmentDuration.WithLabelValues(flow).Observe(seconds)
}

// CacheHit counts one intel cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.IntelCacheHits.Inc()
}

// CacheMiss counts one intel cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.IntelCacheMisses.Inc()
}
