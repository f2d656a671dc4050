package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// active-fires post-processing pipeline.
type Metrics struct {
	PassesProcessed prometheus.Counter
	PassesDropped   *prometheus.CounterVec // labels: reason={product,malformed,geometry}
	DetectionsIn    prometheus.Counter
	DetectionsOut   prometheus.Counter
	Rejections      *prometheus.CounterVec // labels: reason={invalid,quality,outside_borders,inside_exclusion}
	PipelineRunning prometheus.Gauge

	// Identity cache metrics.
	IdentitiesIssued prometheus.Counter
	IdentitiesReused prometheus.Counter
	IdentitiesPruned prometheus.Counter

	// Output metrics.
	OutputsWritten    *prometheus.CounterVec // labels: target
	NotificationsSent *prometheus.CounterVec // labels: kind={file,info}
	TargetsSkipped    *prometheus.CounterVec // labels: target

	PassSize               prometheus.Histogram
	PassProcessingDuration prometheus.Histogram
	DatasetReloads         prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.PassesProcessed,
		m.PassesDropped,
		m.DetectionsIn,
		m.DetectionsOut,
		m.Rejections,
		m.PipelineRunning,
		m.IdentitiesIssued,
		m.IdentitiesReused,
		m.IdentitiesPruned,
		m.OutputsWritten,
		m.NotificationsSent,
		m.TargetsSkipped,
		m.PassSize,
		m.PassProcessingDuration,
		m.DatasetReloads,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PassesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "passes_processed_total",
			Help:      "Total satellite passes processed end to end.",
		}),
		PassesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "passes_dropped_total",
			Help:      "Passes dropped whole, by reason.",
		}, []string{"reason"}),
		DetectionsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "detections_in_total",
			Help:      "Total fire detections received in pass messages.",
		}),
		DetectionsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "detections_out_total",
			Help:      "Total detections surviving all filter stages.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "detections_rejected_total",
			Help:      "Detections rejected, by filter stage.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "activefires",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		IdentitiesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "identities_issued_total",
			Help:      "Newly issued detection identifiers.",
		}),
		IdentitiesReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "identities_reused_total",
			Help:      "Detections matched to an existing identifier.",
		}),
		IdentitiesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "identities_pruned_total",
			Help:      "Identity records pruned as older than the validity window.",
		}),
		OutputsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "outputs_written_total",
			Help:      "GeoJSON output files written, by target.",
		}, []string{"target"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "notifications_sent_total",
			Help:      "Notification messages published, by kind.",
		}, []string{"kind"}),
		TargetsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "targets_skipped_total",
			Help:      "Output targets skipped due to conversion or write failures.",
		}, []string{"target"}),
		PassSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "activefires",
			Name:      "pass_size",
			Help:      "Number of detections per pass message.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		PassProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "activefires",
			Name:      "pass_processing_duration_seconds",
			Help:      "Duration of a complete per-pass filter-identify-compose cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		DatasetReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activefires",
			Name:      "dataset_reloads_total",
			Help:      "Polygon datasets reloaded after a backing-file change.",
		}),
	}
}
