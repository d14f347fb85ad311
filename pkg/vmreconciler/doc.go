/*
Package vmreconciler drives one manager's local VM population toward
the subset of the committed Plan it owns.

# Architecture

	┌────────────────────── VMRECONCILER ───────────────────────┐
	│                                                             │
	│  Reconcile(ctx, cfg, plan), on every observed Plan change: │
	│                                                             │
	│    ListAllDomains -> filter by "wso-<selfName>-..." name   │
	│    Plan.Vms       -> filter by vm.Manager == selfName      │
	│      └─ diff by domain name                                │
	│           ├─ create:    in Plan, absent locally            │
	│           ├─ delete:    present locally, absent in Plan    │
	│           └─ updateLB:  an existing LoadBalancer's name    │
	│      └─ fan out create/delete/updateLB concurrently,       │
	│         each independently idempotent and independently    │
	│         logged — one VM's failure never blocks another's   │
	│      └─ refresh the heartbeat StatusTable: Plan() every    │
	│         surviving token, Forget() every deleted one        │
	└─────────────────────────────────────────────────────────────┘

# Create sequence

Clone the service's base image, define and start the domain, wait for
the guest agent, discover its DHCP address, re-IP it to the planned
address, wait for reachability, then run the kind-specific setup step
(worker bring-up carrying its token and the owning manager's address,
or LB upstream rendering).

# Crash safety

LocalReconciler never trusts a previously-computed diff: every call
re-lists hypervisor domains and re-diffs from scratch, so a crash
between committing a Plan and finishing a local action self-heals on
the next Reconcile call, including the very first one after a restart.

# See Also

  - pkg/hypervisor - the libvirt RPCs this package consumes
  - pkg/image - qcow2 header validation after an image clone
  - pkg/heart - the StatusTable this package keeps in sync
*/
package vmreconciler
