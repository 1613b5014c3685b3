package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the origin-report service.
type Metrics struct {
	// Tracking metrics
	TouchesRecorded *prometheus.CounterVec
	TouchesSkipped  prometheus.Counter
	OrdersTagged    *prometheus.CounterVec

	// Reporting metrics
	ReportRuns      *prometheus.CounterVec
	ReportLatency   *prometheus.HistogramVec
	SchemeSelected  *prometheus.CounterVec
	ReportCacheHits *prometheus.CounterVec

	// ROAS metrics
	ROASCalculations prometheus.Counter

	// System metrics
	GeoLookupLatency *prometheus.HistogramVec
	RateLimitHits    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TouchesRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "touches_recorded_total",
				Help:      "First-touch visits recorded, by origin kind",
			},
			[]string{"kind"},
		),
		TouchesSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "touches_skipped_total",
				Help:      "Visits skipped because a first-touch cookie already existed",
			},
		),
		OrdersTagged: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_tagged_total",
				Help:      "Orders tagged with an origin label, by normalized label",
			},
			[]string{"label"},
		),
		ReportRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_runs_total",
				Help:      "Aggregation runs, by path (standard or today)",
			},
			[]string{"path"},
		),
		ReportLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_latency_seconds",
				Help:      "Aggregation run latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		SchemeSelected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheme_selected_total",
				Help:      "Attribution source scheme chosen per reporting run",
			},
			[]string{"scheme"},
		),
		ReportCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_cache_total",
				Help:      "Report cache lookups, by outcome",
			},
			[]string{"outcome"},
		),
		ROASCalculations: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "roas_calculations_total",
				Help:      "ROAS calculations performed",
			},
		),
		GeoLookupLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "geo_lookup_latency_seconds",
				Help:      "GeoIP lookup latency",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
			},
			[]string{"cache_hit"},
		),
		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by rate limiting",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTouch records a first-touch visit.
func (m *Metrics) RecordTouch(kind string) {
	m.TouchesRecorded.WithLabelValues(kind).Inc()
}

// RecordTouchSkipped records a repeat visit that kept its first touch.
func (m *Metrics) RecordTouchSkipped() {
	m.TouchesSkipped.Inc()
}

// RecordOrderTagged records an order tagged with a normalized origin.
func (m *Metrics) RecordOrderTagged(label string) {
	m.OrdersTagged.WithLabelValues(label).Inc()
}

// RecordReportRun records one aggregation run.
func (m *Metrics) RecordReportRun(path string, scheme string, latency time.Duration) {
	m.ReportRuns.WithLabelValues(path).Inc()
	m.ReportLatency.WithLabelValues(path).Observe(latency.Seconds())
	if scheme != "" {
		m.SchemeSelected.WithLabelValues(scheme).Inc()
	}
}

// RecordCacheOutcome records a report cache hit or miss.
func (m *Metrics) RecordCacheOutcome(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.ReportCacheHits.WithLabelValues(outcome).Inc()
}

// RecordROAS records a ROAS calculation.
func (m *Metrics) RecordROAS() {
	m.ROASCalculations.Inc()
}

// RecordGeoLookup records a geo lookup.
func (m *Metrics) RecordGeoLookup(cacheHit bool, latency time.Duration) {
	hit := "false"
	if cacheHit {
		hit = "true"
	}
	m.GeoLookupLatency.WithLabelValues(hit).Observe(latency.Seconds())
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
