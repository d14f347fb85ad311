/*
Package orchestrator wires one manager process's long-running
subsystems together.

# Architecture

	┌─────────────────────── ORCHESTRATOR ───────────────────────┐
	│                                                              │
	│  Run(ctx):                                                  │
	│    GetConfig/GetPlan once (fatal on failure)                │
	│    applyConfig -> one outbound Heart per peer manager,      │
	│      table.Plan/Forget kept in step with the managers list  │
	│    applyPlan   -> vmreconciler.Reconcile right away         │
	│    reconciler.Reconciler.Start() -> ~1s correction ticks    │
	│    WatchConfig loop -> applyConfig, then a correction Tick  │
	│    WatchPlan loop   -> applyPlan, then a correction Tick    │
	│                                                              │
	│  ReconcileNow(ctx) re-runs vmreconciler against the last     │
	│  observed Config/Plan, for pkg/api's operator shortcut.      │
	└──────────────────────────────────────────────────────────────┘

Every other manager's expected heartbeat token is planned into the
StatusTable as soon as it appears in Config and forgotten as soon as
it's renamed or removed; a locally-owned VM's token is planned and
forgotten by pkg/vmreconciler itself on every Reconcile call.
*/
package orchestrator
