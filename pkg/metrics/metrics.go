package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Plan / cluster-state metrics
	PlanVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wsomgr_plan_version",
			Help: "Version of the most recently observed Plan",
		},
	)

	ManagersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wsomgr_managers_total",
			Help: "Total number of managers by active/primary state",
		},
		[]string{"state"},
	)

	ManagerDeadForCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wsomgr_manager_dead_for_count",
			Help: "Number of peers that currently consider a manager dead",
		},
		[]string{"manager"},
	)

	VmsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wsomgr_vms_total",
			Help: "Total number of planned VMs by type",
		},
		[]string{"type"},
	)

	// Heartbeat metrics
	HeartbeatAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wsomgr_heartbeat_age_seconds",
			Help: "Time since the last heartbeat was received for a token",
		},
		[]string{"token"},
	)

	HeartbeatsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsomgr_heartbeats_sent_total",
			Help: "Total number of outbound heartbeats sent by peer",
		},
		[]string{"peer"},
	)

	HeartbeatReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsomgr_heartbeat_reconnects_total",
			Help: "Total number of outbound heartbeat reconnects by peer",
		},
		[]string{"peer"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsomgr_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsomgr_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Reconciler metrics (manager-state / plan recomputation)
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wsomgr_reconciliation_duration_seconds",
			Help:    "Time taken for a correction cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wsomgr_reconciliation_cycles_total",
			Help: "Total number of correction cycles completed",
		},
	)

	PlanCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsomgr_plan_commits_total",
			Help: "Total number of SavePlan attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Local VM reconciler metrics
	VmActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsomgr_vm_actions_total",
			Help: "Total number of local VM actions by kind and outcome",
		},
		[]string{"action", "outcome"},
	)

	VmActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsomgr_vm_action_duration_seconds",
			Help:    "Time taken for a local VM action in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(PlanVersion)
	prometheus.MustRegister(ManagersTotal)
	prometheus.MustRegister(ManagerDeadForCount)
	prometheus.MustRegister(VmsTotal)
	prometheus.MustRegister(HeartbeatAgeSeconds)
	prometheus.MustRegister(HeartbeatsSentTotal)
	prometheus.MustRegister(HeartbeatReconnectsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(PlanCommitsTotal)
	prometheus.MustRegister(VmActionsTotal)
	prometheus.MustRegister(VmActionDuration)
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
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
