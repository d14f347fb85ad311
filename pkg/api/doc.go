/*
Package api exposes the HTTP/WebSocket surface named in spec.md §6:
inbound heartbeats, a small set of operator shortcuts, a status
readout, and Prometheus metrics. Nothing in this package sits on the
convergence critical path — a manager with this server down still
converges its Plan and its local VMs on schedule; it just can't be
inspected or heartbeat-pinged from outside until it comes back.

Routes:

	GET /heartbeats/{token}     - WebSocket upgrade, delegates to pkg/heart.Handler
	GET /status                 - this manager's view of the Plan's manager states
	GET /create_time/{name}     - force an out-of-cycle local VM reconciliation
	GET /ip/{domain_name}       - look up a domain's current address
	GET /delete/{name}          - destroy a domain directly (rebuilt on the next local reconcile if still planned)
	GET /metrics                - Prometheus exposition
*/
package api
