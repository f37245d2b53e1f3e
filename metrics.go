package vdet

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters of a post-processing run. A nil *Metrics records nothing.
type Metrics struct {
	framesScored  prometheus.Counter
	scoreLatency  prometheus.Histogram
	rowsRejected  *prometheus.CounterVec
	rowsEvicted   *prometheus.CounterVec
	rowsFinalized *prometheus.CounterVec
	rowsDropped   *prometheus.CounterVec
	rowsKept      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vdet_frames_scored_total",
			Help: "Frames sent to the scorer",
		}),
		scoreLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vdet_frame_score_seconds",
			Help:    "Time spent scoring one frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdet_rows_rejected_total",
			Help: "Rows dropped at ingestion by the class threshold or the per image cap",
		}, []string{"class"}),
		rowsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdet_scores_evicted_total",
			Help: "Scores popped from a class heap to enforce the per set cap",
		}, []string{"class"}),
		rowsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdet_rows_finalized_total",
			Help: "Rows kept after finalization",
		}, []string{"class"}),
		rowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdet_rows_suppressed_total",
			Help: "Detections removed by suppression",
		}, []string{"class"}),
		rowsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vdet_rows_kept_total",
			Help: "Detections kept by suppression",
		}, []string{"class"}),
	}
	m.registry.MustRegister(
		m.framesScored,
		m.scoreLatency,
		m.rowsRejected,
		m.rowsEvicted,
		m.rowsFinalized,
		m.rowsDropped,
		m.rowsKept,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) frameScored(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.framesScored.Inc()
	m.scoreLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ingested(class string, rejected, evicted int) {
	if m == nil {
		return
	}
	m.rowsRejected.WithLabelValues(class).Add(float64(rejected))
	m.rowsEvicted.WithLabelValues(class).Add(float64(evicted))
}

func (m *Metrics) finalized(class string, kept int) {
	if m == nil {
		return
	}
	m.rowsFinalized.WithLabelValues(class).Add(float64(kept))
}

func (m *Metrics) suppressed(class string, kept, total int) {
	if m == nil {
		return
	}
	m.rowsKept.WithLabelValues(class).Add(float64(kept))
	m.rowsDropped.WithLabelValues(class).Add(float64(total - kept))
}
