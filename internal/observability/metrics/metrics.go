package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for the scheduling write path.
type SchedulingMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationLatency   *prometheus.HistogramVec
	notifyFailureTotal *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of lifecycle operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		notifyFailureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "notification_failures_total",
			Help:      "Post-commit notification dispatch failures",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.notifyFailureTotal)
	return m
}

func (m *SchedulingMetrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *SchedulingMetrics) NotificationFailure(kind string) {
	if m == nil {
		return
	}
	m.notifyFailureTotal.WithLabelValues(kind).Inc()
}
