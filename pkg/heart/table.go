package heart

import (
	"sync"
	"time"

	"github.com/cuemby/wsomgr/pkg/types"
)

// Table is a mutex-guarded map from expected token to ConnectionStatus.
// One Table exists per manager process: it tracks liveness of every
// peer manager and every locally-owned VM this process expects to
// hear from.
type Table struct {
	mu          sync.Mutex
	clock       Clock
	maxInactive time.Duration
	entries     map[string]types.ConnectionStatus
}

// NewTable creates an empty Table. maxInactive is the grace period
// (spec's general.max_inactive) after which a silent token is dead.
func NewTable(clock Clock, maxInactive time.Duration) *Table {
	if clock == nil {
		clock = SystemClock
	}
	return &Table{
		clock:       clock,
		maxInactive: maxInactive,
		entries:     make(map[string]types.ConnectionStatus),
	}
}

// Plan ensures a token is tracked, without marking it as having beaten
// yet. Calling Plan for a token that already exists is a no-op: it
// must not reset an in-flight grace period or an established beat
// history.
func (t *Table) Plan(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[token]; ok {
		return
	}
	t.entries[token] = types.NewConnectionStatus(t.clock.Now())
}

// Beat records a heartbeat for token, planning it first if unseen.
func (t *Table) Beat(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.entries[token]
	if !ok {
		status = types.NewConnectionStatus(t.clock.Now())
	}
	t.entries[token] = status.Beat(t.clock.Now())
}

// IsExpected reports whether token is currently tracked. The inbound
// handler uses this to reject a heartbeat for a token nobody planned.
func (t *Table) IsExpected(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[token]
	return ok
}

// Forget drops a token, e.g. once the Plan no longer names it.
func (t *Table) Forget(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, token)
}

// IsDead evaluates liveness as of now. An unknown token is never dead:
// the caller is expected to have called Plan for every token it cares
// about before asking.
func (t *Table) IsDead(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.entries[token]
	if !ok {
		return false
	}
	return status.Evaluate(t.clock.Now(), t.maxInactive).IsDead()
}

// Snapshot returns the evaluated status of every tracked token, for
// metrics export and testing.
func (t *Table) Snapshot() map[string]types.ConnectionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	out := make(map[string]types.ConnectionStatus, len(t.entries))
	for token, status := range t.entries {
		out[token] = status.Evaluate(now, t.maxInactive)
	}
	return out
}
