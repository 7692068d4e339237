package inference

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes inference performance to Prometheus.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	duration    *prometheus.HistogramVec
	inferences  *prometheus.CounterVec
	predictions *prometheus.CounterVec
	inUse       prometheus.Gauge
}

// NewMetrics creates and registers the inference collectors.
//
// Arguments:
//   - reg: The registry to register with.
//
// Returns:
//   - *Metrics: The metrics.
//   - error: An error if a collector is already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metal_classifier",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each classification stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"stage"}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metal_classifier",
			Name:      "classifications_total",
			Help:      "Classifications by outcome.",
		}, []string{"status"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metal_classifier",
			Name:      "top_predictions_total",
			Help:      "Top-1 predicted class counts.",
		}, []string{"class"}),
		inUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metal_classifier",
			Name:      "sessions_in_use",
			Help:      "Inference sessions currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.duration, m.inferences, m.predictions, m.inUse} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) result(err error, top string) {
	if m == nil {
		return
	}
	if err != nil {
		m.inferences.WithLabelValues("error").Inc()
		return
	}
	m.inferences.WithLabelValues("ok").Inc()
	m.predictions.WithLabelValues(top).Inc()
}

func (m *Metrics) setInUse(n int) {
	if m == nil {
		return
	}
	m.inUse.Set(float64(n))
}
