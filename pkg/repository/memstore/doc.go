// Package memstore is an in-memory repository.Store used by unit tests.
// It reproduces the same compare-and-swap and fan-out-on-write semantics
// as mongostore, without a database: SavePlan rejects a write whose
// base version does not match, and every successful SaveConfig/SavePlan
// fans the new document out to every channel returned by a prior
// WatchConfig/WatchPlan call.
package memstore
