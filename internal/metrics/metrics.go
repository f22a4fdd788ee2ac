package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the crawler and catalog server.
// A nil *Metrics is valid and turns every method into a no-op.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesFetchedTotal prometheus.Counter
	PagesFailedTotal  prometheus.Counter
	FetchDuration     prometheus.Histogram
	RecordsTotal      *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pagesFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_pages_fetched_total",
			Help: "Catalog pages fetched successfully.",
		},
	)
	pagesFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_pages_failed_total",
			Help: "Catalog pages that failed to fetch or process.",
		},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Latency of one catalog page fetch.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_records_total",
			Help: "Extracted records by filter outcome.",
		},
		[]string{"outcome"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_crawl_runs_total",
			Help: "Finished crawl runs by stop reason.",
		},
		[]string{"reason"},
	)

	registry.MustRegister(pagesFetched, pagesFailed, fetchDuration, records, runs)

	return &Metrics{
		Registry:          registry,
		PagesFetchedTotal: pagesFetched,
		PagesFailedTotal:  pagesFailed,
		FetchDuration:     fetchDuration,
		RecordsTotal:      records,
		RunsTotal:         runs,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// PageFetched records one successful page fetch and its latency.
func (m *Metrics) PageFetched(d time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// PageFailed records one failed page.
func (m *Metrics) PageFailed() {
	if m == nil {
		return
	}
	m.PagesFailedTotal.Inc()
}

// RecordKept counts a record accepted into the dataset.
func (m *Metrics) RecordKept() {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues("kept").Inc()
}

// RecordDuplicate counts a record rejected as a duplicate.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues("duplicate").Inc()
}

// RecordIncomplete counts a candidate dropped by the completeness gate.
func (m *Metrics) RecordIncomplete() {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues("incomplete").Inc()
}

// RunFinished counts a finished crawl run by stop reason.
func (m *Metrics) RunFinished(reason string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(reason).Inc()
}
