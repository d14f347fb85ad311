/*
Package reconciler rebuilds the cluster Plan from Config, the previous
Plan, and local liveness observations, and commits it with optimistic
compare-and-swap.

# Architecture

	┌─────────────────────── RECONCILER ────────────────────────┐
	│                                                             │
	│  Tick (ticker, ~1Hz, or triggered by a Config/Plan watch   │
	│  event delivered by pkg/orchestrator):                     │
	│                                                             │
	│    GetConfig + GetPlan                                     │
	│      └─ Reconcile(cfg, plan, selfName, live, rng)          │
	│           ├─ reconcileManagerStates   (§4.3.1 passes 1-3)  │
	│           ├─ planWorkers per service  (§4.3.2)             │
	│           └─ planLoadBalancer per service (§4.3.3)         │
	│      └─ unchanged? return, nothing to commit               │
	│      └─ changed: SavePlan (CAS) — false means another      │
	│         manager raced and won; wait for the next event     │
	└─────────────────────────────────────────────────────────────┘

Reconcile itself is a pure function of its inputs (Config, Plan, this
manager's name, a LiveChecker, and a random source for placement),
deliberately separated from the ticking/committing wrapper so it can be
tested directly on in-memory Config and Plan values, with a seeded
random source, without a store, a clock or a network.

# Manager state and primary election

Every manager in Config gets a ManagerState carried across ticks. A
manager marks a peer dead-for-itself when its local heartbeat table
says so; it never marks itself dead. The primary is the manager
minimizing (count of managers considering it dead, whether it is not
this process), with ties broken by a uniform shuffle: a manager stays
primary once elected unless it becomes dead-for-quorum and a
strictly-better candidate exists. The active set is the BFS closure
from the primary over the "not dead-for any already-visited manager"
edge; inactive managers lose their VM placements on the next pass.

# Per-service planning

Each service's desired replica count against its *active*-manager
workers determines delta: positive delta mints workers on random
active managers at the next free address in that manager's pool
(ascending scan; ErrPoolExhausted if none remain); negative delta
removes a uniformly random subset. A service's load balancer, if
configured, is created or reconciled in place — only a manager or
address change forces a fresh token, since that means the VM must be
rebuilt rather than reconfigured.

# See Also

  - pkg/types - Plan, Config, Vm, ManagerState definitions
  - pkg/repository - the Store interface Reconciler commits through
  - pkg/heart - the Table satisfying LiveChecker
  - pkg/vmreconciler - drives local VM state toward the committed Plan
*/
package reconciler
