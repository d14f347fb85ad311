/*
Package metrics provides Prometheus metrics collection and exposition
for wsomgr.

The metrics package defines and registers all wsomgr metrics using the
Prometheus client library, giving observability into Plan state,
manager liveness, heartbeat freshness, and local VM action outcomes.
Metrics are exposed via HTTP for scraping by Prometheus servers.

# Metrics Catalog

wsomgr_plan_version:
  - Gauge. Version of the most recently observed Plan.

wsomgr_managers_total{state}:
  - Gauge. Managers by state ("primary", "active", "inactive").

wsomgr_manager_dead_for_count{manager}:
  - Gauge. Number of peers currently considering a manager dead.

wsomgr_vms_total{type}:
  - Gauge. Planned VMs by type ("wrk", "lb").

wsomgr_heartbeat_age_seconds{token}:
  - Gauge. Time since the last heartbeat was received for a token.

wsomgr_heartbeats_sent_total{peer}:
  - Counter. Outbound heartbeats sent per peer.

wsomgr_heartbeat_reconnects_total{peer}:
  - Counter. Outbound heartbeat reconnects per peer.

wsomgr_api_requests_total{method, status}:
  - Counter. Admin API requests by method and status.

wsomgr_api_request_duration_seconds{method}:
  - Histogram. Admin API request duration.

wsomgr_reconciliation_duration_seconds / wsomgr_reconciliation_cycles_total:
  - Histogram / Counter. Correction-cycle duration and count.

wsomgr_plan_commits_total{outcome}:
  - Counter. SavePlan attempts by outcome ("applied", "lost_race", "error").

wsomgr_vm_actions_total{action, outcome} / wsomgr_vm_action_duration_seconds{action}:
  - Counter / Histogram. Local VM actions (create/delete/update_lb) by outcome.

# Usage

	metrics.ManagersTotal.WithLabelValues("active").Set(3)

	timer := metrics.NewTimer()
	// ... run a correction cycle ...
	timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationCyclesTotal.Inc()

	http.Handle("/metrics", metrics.Handler())

# Integration Points

pkg/reconciler updates the plan version, cycle and commit metrics after
each cycle; a Collector fills the plan version, manager and VM gauges
from a Plan snapshot while it runs. pkg/vmreconciler updates VM action
metrics, pkg/heart counts outbound beats and reconnects, and pkg/api
instruments request count and duration. No package in this module sets
wsomgr_heartbeat_age_seconds; it is registered and exported empty.

# Design Patterns

All metrics are registered once in init() via MustRegister and are
package-level variables, reachable from any wsomgr package without
passing a registry around.
*/
package metrics
