// Package metrics exposes Prometheus counters for selection and view activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	selectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashviz_selection_changes_total",
		Help: "Committed selection changes by field.",
	}, []string{"field"})

	viewDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashviz_view_dispatches_total",
		Help: "Instructions dispatched to view collaborators.",
	}, []string{"view", "instruction"})

	unknownSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashviz_unknown_segment_total",
		Help: "Detail lookups for segment ids missing from the index.",
	})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashviz_dataset_fetch_errors_total",
		Help: "Dataset loads that failed, by dataset kind.",
	}, []string{"dataset"})

	recordsLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crashviz_dataset_records",
		Help: "Records held in memory per city and dataset.",
	}, []string{"city", "dataset"})
)

func SelectionChanged(field string) {
	selectionChanges.WithLabelValues(field).Inc()
}

func Dispatched(view, instruction string) {
	viewDispatches.WithLabelValues(view, instruction).Inc()
}

func UnknownSegment() {
	unknownSegments.Inc()
}

func FetchFailed(dataset string) {
	fetchErrors.WithLabelValues(dataset).Inc()
}

func RecordsLoaded(city, dataset string, n int) {
	recordsLoaded.WithLabelValues(city, dataset).Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
