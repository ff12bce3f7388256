// Package metrics exposes the Application Master's Prometheus
// instrumentation: key-value traffic, container state transitions,
// scheduling and restart activity, reconciliation timing, and RPC
// durations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Key-value store metrics
	KVOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_kv_operations_total",
			Help: "Total number of key-value store operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	KVWaitersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skein_kv_waiters",
			Help: "Number of goroutines currently blocked in a waiting get",
		},
	)

	KVKeysTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skein_kv_keys_total",
			Help: "Total number of keys currently stored",
		},
	)

	// Container/service metrics
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skein_containers_total",
			Help: "Total number of containers by state",
		},
		[]string{"state"},
	)

	ServicesEligibleTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skein_services_eligible_total",
			Help: "Number of services currently launch-eligible",
		},
	)

	RestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_restarts_total",
			Help: "Total number of container restarts by service",
		},
		[]string{"service"},
	)

	ServiceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_service_failures_total",
			Help: "Total number of services that exhausted their restart budget",
		},
		[]string{"service"},
	)

	// Scheduler/reconciler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skein_scheduling_latency_seconds",
			Help:    "Time taken for one scheduler eligibility pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skein_reconciliation_duration_seconds",
			Help:    "Time taken for one reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skein_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ContainersScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skein_containers_scheduled_total",
			Help: "Total number of containers handed to the cluster interface for launch",
		},
	)

	AllocationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_allocation_requests_total",
			Help: "Total number of container allocation requests issued to the cluster interface",
		},
		[]string{"service"},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skein_rpc_requests_total",
			Help: "Total number of Master RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skein_rpc_request_duration_seconds",
			Help:    "Master RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		KVOperationsTotal,
		KVWaitersGauge,
		KVKeysTotal,
		ContainersTotal,
		ServicesEligibleTotal,
		RestartsTotal,
		ServiceFailuresTotal,
		SchedulingLatency,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ContainersScheduled,
		AllocationRequestsTotal,
		RPCRequestsTotal,
		RPCRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
