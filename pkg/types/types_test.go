package types

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressPoolParseAndContains(t *testing.T) {
	pool, err := ParseAddressPool("10.0.0.2-10.0.0.10")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2-10.0.0.10", pool.String())

	assert.True(t, pool.Contains(netip.MustParseAddr("10.0.0.2")))
	assert.True(t, pool.Contains(netip.MustParseAddr("10.0.0.10")))
	assert.True(t, pool.Contains(netip.MustParseAddr("10.0.0.5")))
	assert.False(t, pool.Contains(netip.MustParseAddr("10.0.0.1")))
	assert.False(t, pool.Contains(netip.MustParseAddr("10.0.0.11")))
}

func TestAddressPoolNext(t *testing.T) {
	pool, err := ParseAddressPool("10.0.0.2-10.0.0.3")
	require.NoError(t, err)

	next, ok := pool.Next(netip.MustParseAddr("10.0.0.2"))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.3", next.String())

	_, ok = pool.Next(netip.MustParseAddr("10.0.0.3"))
	assert.False(t, ok, "pool is exhausted past the high bound")
}

func TestAddressPoolJSONRoundTrip(t *testing.T) {
	pool, err := ParseAddressPool("10.0.0.2-10.0.0.10")
	require.NoError(t, err)

	data, err := pool.MarshalJSON()
	require.NoError(t, err)

	var out AddressPool
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, pool, out)
}

func TestUpstreamSetEqual(t *testing.T) {
	a := []Upstream{
		{Address: netip.MustParseAddr("10.0.0.2"), Port: 80},
		{Address: netip.MustParseAddr("10.0.0.3"), Port: 80},
	}
	b := []Upstream{
		{Address: netip.MustParseAddr("10.0.0.3"), Port: 80},
		{Address: netip.MustParseAddr("10.0.0.2"), Port: 80},
	}
	assert.True(t, UpstreamSetEqual(a, b), "order must not matter")

	c := append([]Upstream{}, a[:1]...)
	assert.False(t, UpstreamSetEqual(a, c))
}

func TestManagerStateIsDead(t *testing.T) {
	st := ManagerState{Name: "m3", IsDeadFor: map[string]bool{"m1": true}}
	assert.False(t, st.IsDead(Quorum(3)), "one dead-for vote is below quorum of 2")

	st.IsDeadFor["m2"] = true
	assert.True(t, st.IsDead(Quorum(3)), "two dead-for votes reach quorum of 2")
}

func TestQuorum(t *testing.T) {
	assert.Equal(t, 1, Quorum(1))
	assert.Equal(t, 1, Quorum(2))
	assert.Equal(t, 2, Quorum(3))
	assert.Equal(t, 2, Quorum(4))
	assert.Equal(t, 3, Quorum(5))
}

// TestConnectionStatusLifecycle exercises P8: repeated beats keep a
// token alive, silence past max_inactive kills it, and a later beat
// revives it.
func TestConnectionStatusLifecycle(t *testing.T) {
	maxInactive := 10 * time.Second
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status := NewConnectionStatus(t0)
	status = status.Evaluate(t0.Add(1*time.Second), maxInactive)
	assert.False(t, status.IsDead(), "fresh entry inside grace period is not dead")

	status = status.Beat(t0.Add(2 * time.Second))
	for i := 0; i < 5; i++ {
		status = status.Beat(t0.Add(time.Duration(3+i) * time.Second))
		status = status.Evaluate(t0.Add(time.Duration(3+i)*time.Second), maxInactive)
		assert.False(t, status.IsDead(), "repeated beats under max_inactive keep it alive")
	}

	silentSince := status.LastBeatAt
	status = status.Evaluate(silentSince.Add(maxInactive+time.Second), maxInactive)
	assert.True(t, status.IsDead(), "silence beyond max_inactive marks it dead")

	status = status.Beat(silentSince.Add(maxInactive + 2*time.Second))
	status = status.Evaluate(silentSince.Add(maxInactive+2*time.Second), maxInactive)
	assert.False(t, status.IsDead(), "a beat after death clears dead_since")
}

func TestConnectionStatusGraceBeforeFirstBeat(t *testing.T) {
	maxInactive := 10 * time.Second
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status := NewConnectionStatus(t0)
	status = status.Evaluate(t0.Add(maxInactive-time.Second), maxInactive)
	assert.False(t, status.IsDead(), "still within the created_at grace period")

	status = status.Evaluate(t0.Add(maxInactive+time.Second), maxInactive)
	assert.True(t, status.IsDead(), "never beaten and grace period elapsed")
}
