package objectstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes object store calls. A nil Metrics records nothing.
type Metrics interface {
	ObserveOperation(operation string, duration time.Duration, err error)
}

type prometheusMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the object store collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (Metrics, error) {
	m := &prometheusMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamdrive",
			Subsystem: "objectstore",
			Name:      "operations_total",
			Help:      "Object store calls by operation and outcome",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamdrive",
			Subsystem: "objectstore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of object store calls",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prometheusMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func observe(m Metrics, operation string, start time.Time, err error) {
	if m != nil {
		m.ObserveOperation(operation, time.Since(start), err)
	}
}
