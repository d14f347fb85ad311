package heart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually-advanced Clock for deterministic liveness tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTablePlanDoesNotResetExistingEntry(t *testing.T) {
	clock := newFakeClock()
	table := NewTable(clock, time.Minute)

	table.Plan("token-a")
	clock.Advance(5 * time.Second)
	table.Beat("token-a")
	clock.Advance(5 * time.Second)

	table.Plan("token-a")

	assert.False(t, table.IsDead("token-a"))
	snap := table.Snapshot()
	require.Contains(t, snap, "token-a")
	require.NotNil(t, snap["token-a"].LastBeatAt)
}

func TestTableBeatRevivesUnseenToken(t *testing.T) {
	clock := newFakeClock()
	table := NewTable(clock, time.Minute)

	table.Beat("token-b")

	assert.False(t, table.IsDead("token-b"))
}

func TestTableIsDeadAfterMaxInactive(t *testing.T) {
	clock := newFakeClock()
	table := NewTable(clock, 10*time.Second)

	table.Beat("token-c")
	clock.Advance(20 * time.Second)

	assert.True(t, table.IsDead("token-c"))
}

func TestTableIsDeadFalseForUnknownToken(t *testing.T) {
	clock := newFakeClock()
	table := NewTable(clock, time.Second)

	assert.False(t, table.IsDead("never-planned"))
}

func TestTableForgetRemovesEntry(t *testing.T) {
	clock := newFakeClock()
	table := NewTable(clock, time.Minute)

	table.Beat("token-d")
	table.Forget("token-d")

	snap := table.Snapshot()
	assert.NotContains(t, snap, "token-d")
}

func TestHandlerRecordsHeartbeatsIntoTable(t *testing.T) {
	table := NewTable(SystemClock, time.Minute)
	table.Plan("vm-token")
	handler := NewHandler(table)

	r := chi.NewRouter()
	r.Get("/heartbeats/{token}", handler.ServeHTTP)
	server := httptest.NewServer(r)
	defer server.Close()

	heart := New(server.Listener.Addr().String(), "vm-token", 20*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	heart.BeatForever(ctx)

	assert.False(t, table.IsDead("vm-token"))
	snap := table.Snapshot()
	require.Contains(t, snap, "vm-token")
}

func TestHandlerRejectsUnplannedToken(t *testing.T) {
	table := NewTable(SystemClock, time.Minute)
	handler := NewHandler(table)

	r := chi.NewRouter()
	r.Get("/heartbeats/{token}", handler.ServeHTTP)
	server := httptest.NewServer(r)
	defer server.Close()

	heart := New(server.Listener.Addr().String(), "unplanned-token", 20*time.Millisecond, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	heart.BeatForever(ctx)

	assert.False(t, table.IsExpected("unplanned-token"))
}

func TestHeartURL(t *testing.T) {
	h := New("10.0.0.1:8080", "abc123", time.Second, time.Second)
	assert.Equal(t, "ws://10.0.0.1:8080/heartbeats/abc123", h.url())
}

func TestHeartBeatUntilStopsWhenPredicateFalse(t *testing.T) {
	h := New("127.0.0.1:1", "token", 5*time.Millisecond, 5*time.Millisecond)

	calls := 0
	predicate := func() bool {
		calls++
		return calls < 2
	}

	done := make(chan struct{})
	go func() {
		h.BeatUntil(context.Background(), predicate)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BeatUntil did not stop when predicate became false")
	}
}

var _ http.Handler = (*Handler)(nil)
