/*
Package heart is wsomgr's heartbeat fabric: the mechanism by which one
manager tells its peers, and a local VM reconciler tells itself, "I am
still alive."

# Architecture

	┌──────────────────────── HEART ────────────────────────────┐
	│                                                             │
	│  Outbound (one per peer manager, carrying this manager's   │
	│  own token):                                               │
	│                                                             │
	│    Heart.BeatForever(ctx)                                  │
	│      └─ reconnect loop: dial ws://peer/heartbeats/<token>  │
	│         └─ beat loop: sleep(beatInterval); send empty frame│
	│         on error: log, sleep(reconnectInterval), redial    │
	│                                                             │
	│  Inbound (one process-wide WS endpoint):                   │
	│                                                             │
	│    Handler.ServeHTTP  ── upgrades /heartbeats/{token}       │
	│      └─ on connect:    Table.Beat(token) marks first beat  │
	│      └─ on each frame: Table.Beat(token)                   │
	│      └─ on close:      return; the token stays in the table│
	│                                                             │
	│  Table (types.ConnectionStatus per token) is read by the   │
	│  reconciler every correction cycle to decide IsDeadFor.     │
	└─────────────────────────────────────────────────────────────┘

The wire protocol is deliberately trivial: a heartbeat is an empty text
frame. There is no payload and no acknowledgement; liveness is entirely
a function of frame arrival time.
*/
package heart
