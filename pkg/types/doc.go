/*
Package types defines the core data structures shared by every wsomgr
package: the admin-authored Config, the manager-authored Plan, and the
process-local ConnectionStatus used for liveness bookkeeping.

# Architecture

Config and Plan are the two documents stored in the shared document
store (see pkg/repository). Every manager process loads its own copy at
startup and refreshes it from a change-stream watch; ConnectionStatus
never leaves the process that created it.

	┌────────────────────┐      ┌────────────────────┐
	│       Config        │      │        Plan         │
	│  (admin intent)      │      │ (manager-authored)   │
	│  - general           │      │  - version           │
	│  - managers[]         │      │  - vms[]              │
	│  - services[]         │      │  - manager_states[]   │
	│  - load_balancers[]   │      └──────────┬───────────┘
	└──────────┬───────────┘                 │
	           │        read by               │ read/written by
	           ▼                              ▼
	                  pkg/reconciler (planner)
	                              │
	                              ▼
	                  pkg/vmreconciler (per-manager)

# Vm variants

Vm is a closed sum of Worker and LoadBalancer, discriminated in Go by
the concrete type and on the wire by a "type" field ("wrk" or "lb",
see VmList). Both embed VmBase, which derives the
hypervisor-visible domain Name from manager+type+service+token.

# ConnectionStatus

ConnectionStatus is the liveness primitive read by both the heartbeat
fabric (pkg/heart) and the reconciler: a token is dead once more than
max_inactive has elapsed since its last beat, with a grace period for
entries that have never beaten at all.
*/
package types
