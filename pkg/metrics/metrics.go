package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	DatasetsLoaded    *prometheus.CounterVec
	RecordsRejected   prometheus.Counter
	PointsReady       prometheus.Gauge
	Searches          *prometheus.CounterVec
	Projections       prometheus.Counter
	ProjectionSeconds prometheus.Histogram
	ControlEvents     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DatasetsLoaded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "latlng_datasets_loaded_total",
			Help: "Total number of dataset loads by outcome.",
		}, []string{"status"}),
		RecordsRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "latlng_records_rejected_total",
			Help: "Total number of malformed records dropped by the loader.",
		}),
		PointsReady: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "latlng_points_ready",
			Help: "Number of renderable points after sentinel removal.",
		}),
		Searches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "latlng_searches_total",
			Help: "Total number of searches by result.",
		}, []string{"result"}),
		Projections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "latlng_projections_total",
			Help: "Total number of projection recomputations.",
		}),
		ProjectionSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "latlng_projection_duration_seconds",
			Help:    "Duration of projection recomputations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		ControlEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "latlng_control_events_total",
			Help: "Total number of remote control events by type.",
		}, []string{"type"}),
	}
}

// Discard returns collectors registered on a private registry, for callers
// that do not export metrics.
func Discard() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
