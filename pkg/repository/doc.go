/*
Package repository defines the store facade every manager uses to read
and write the two global singleton documents, Config and Plan, and to
watch them for changes.

# Architecture

	┌─────────────────────── Repository ────────────────────────┐
	│                                                             │
	│  GetConfig()  ──► configs.find_one({_id: "global"})        │
	│  GetPlan()    ──► plans.find_one({_id: "global"})          │
	│  SavePlan(p)  ──► plans.replace_one(                       │
	│                     {_id: "global", version: p.version-1}, │
	│                     p); for version 1 only, insert_one(p)  │
	│                     when nothing matched                   │
	│  WatchConfig()──► configs.watch(full_document="required")  │
	│  WatchPlan()  ──► plans.watch(full_document="required")    │
	│                                                             │
	└────────────────────────┬────────────────────────────────────┘
	                         │
	           ┌─────────────┴─────────────┐
	           ▼                           ▼
	  mongostore.Store            memstore.Store
	  (production, backed by      (tests: an in-memory
	   go.mongodb.org/mongo-driver) fake with the same CAS
	                                 and fan-out semantics)

SavePlan is a compare-and-swap: it succeeds only when the stored
version equals plan.Version-1, and its bool return tells the caller
whether it won the race. A losing caller must not retry blindly — it
waits for the next event off WatchPlan, which carries the winner's
Plan, and rebases its pending change on top of it.

WatchConfig and WatchPlan never terminate: on a transport error they
log and retry after WatchErrorRecoveryInterval, exactly like the
reconnect loop in pkg/heart's outbound Heart.
*/
package repository
