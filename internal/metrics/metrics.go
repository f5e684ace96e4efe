// Package metrics exposes the Prometheus instrumentation for the crawl
// pipeline. All collectors are registered on the default registry via
// promauto so they show up on the standard /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_pages_total",
			Help: "Total number of page loads, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	navigationRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscout_navigation_retries_total",
			Help: "Total number of retried page navigations.",
		},
	)

	searchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscout_searches_total",
			Help: "Total number of search queries submitted.",
		},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_records_total",
			Help: "Total number of input records processed, labeled by status.",
		},
		[]string{"status"},
	)

	sessionRestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscout_session_restarts_total",
			Help: "Total number of browser session restarts.",
		},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadscout_active_workers",
			Help: "Number of workers currently processing a record.",
		},
	)

	recordDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadscout_record_duration_seconds",
			Help:    "Histogram of per-record processing times.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)
)

// Page outcomes.
const (
	PageFetched     = "fetched"
	PageCertInvalid = "cert_invalid"
	PagePDFSkipped  = "pdf_skipped"
	PageFailed      = "failed"
)

// Record statuses.
const (
	RecordFound    = "found"
	RecordNotFound = "not_found"
	RecordSkipped  = "skipped"
	RecordFailed   = "failed"
)

func ObservePage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

func ObserveNavigationRetry() {
	navigationRetriesTotal.Inc()
}

func ObserveSearch() {
	searchesTotal.Inc()
}

func ObserveRecord(status string, seconds float64) {
	recordsTotal.WithLabelValues(status).Inc()
	recordDurationSeconds.Observe(seconds)
}

func ObserveSessionRestart() {
	sessionRestartsTotal.Inc()
}

func WorkerStarted() {
	activeWorkers.Inc()
}

func WorkerStopped() {
	activeWorkers.Dec()
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
