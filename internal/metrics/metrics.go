// Package metrics provides Prometheus metrics for bronze-harvest.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PagesTotal counts persisted pages.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bronze",
			Name:      "pages_total",
			Help:      "Total number of pages fetched and persisted",
		},
		[]string{"dataset"},
	)

	// RecordsTotal counts records contained in persisted pages.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bronze",
			Name:      "records_total",
			Help:      "Total number of records contained in persisted pages",
		},
		[]string{"dataset"},
	)

	// FetchDuration measures one search call.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bronze",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of search calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dataset"},
	)

	// RunsTotal counts finished harvests by completion reason.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bronze",
			Name:      "runs_total",
			Help:      "Total number of finished harvest runs",
		},
		[]string{"dataset", "reason"},
	)

	// ErrorsTotal counts failures by stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bronze",
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"dataset", "stage"},
	)
)

// RecordPage records one persisted page.
func RecordPage(dataset string, records int, seconds float64) {
	PagesTotal.WithLabelValues(dataset).Inc()
	RecordsTotal.WithLabelValues(dataset).Add(float64(records))
	FetchDuration.WithLabelValues(dataset).Observe(seconds)
}

// RecordRun records a finished harvest.
func RecordRun(dataset, reason string) {
	RunsTotal.WithLabelValues(dataset, reason).Inc()
}

// RecordError records a failure.
func RecordError(dataset, stage string) {
	ErrorsTotal.WithLabelValues(dataset, stage).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
