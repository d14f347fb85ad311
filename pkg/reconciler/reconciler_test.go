package reconciler

import (
	"math/rand"
	"net/netip"
	"testing"

	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// neverDead is a LiveChecker that never considers anything dead.
type neverDead struct{}

func (neverDead) IsDead(string) bool { return false }

// deadTokens is a LiveChecker reporting dead for a fixed token set.
type deadTokens map[string]bool

func (d deadTokens) IsDead(token string) bool { return d[token] }

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(s)
	require.NoError(t, err)
	return addr
}

func singleManagerConfig(t *testing.T) types.Config {
	pool, err := types.ParseAddressPool("10.0.0.2-10.0.0.10")
	require.NoError(t, err)
	return types.Config{
		Managers: []types.ManagerConfig{
			{Name: "m1", Address: mustAddr(t, "10.0.0.1"), Port: 8080, Token: "tok-m1", AddressPool: pool},
		},
		Services: []types.ServiceConfig{
			{Name: "time", Image: "time.qcow2", Port: 9000, Replicas: 2},
		},
	}
}

func rng() *rand.Rand { return rand.New(rand.NewSource(1)) }

// Scenario 1: single-node empty start.
func TestReconcileSingleNodeEmptyStart(t *testing.T) {
	cfg := singleManagerConfig(t)
	plan := types.NewPlan()

	next, changed, err := Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 1, next.Version)
	workers := next.WorkersForService("time")
	assert.Len(t, workers, 2)

	seen := map[netip.Addr]bool{}
	for _, w := range workers {
		assert.Equal(t, "m1", w.Manager)
		assert.True(t, cfg.Managers[0].AddressPool.Contains(w.Address))
		assert.False(t, seen[w.Address], "duplicate address assigned")
		seen[w.Address] = true
	}

	primary, ok := next.Primary()
	require.True(t, ok)
	assert.Equal(t, "m1", primary.Name)
	assert.True(t, primary.IsActive)
}

// Scenario 2: LB added after workers exist.
func TestReconcileLoadBalancerAdded(t *testing.T) {
	cfg := singleManagerConfig(t)
	plan := types.NewPlan()
	plan, _, err := Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.NoError(t, err)

	cfg.LoadBalancers = []types.LoadBalancerConfig{
		{Service: "time", Address: mustAddr(t, "10.0.0.100"), Port: 80},
	}

	next, changed, err := Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.NoError(t, err)
	require.True(t, changed)

	lb, ok := next.LoadBalancerForService("time")
	require.True(t, ok)

	workers := next.WorkersForService("time")
	expected := make([]types.Upstream, len(workers))
	for i, w := range workers {
		expected[i] = types.Upstream{Address: w.Address, Port: w.Port}
	}
	assert.True(t, types.UpstreamSetEqual(expected, lb.Upstream))
}

// Scenario: reconciling an already-converged plan is a no-op.
func TestReconcileFixpointIsNoOp(t *testing.T) {
	cfg := singleManagerConfig(t)
	plan := types.NewPlan()
	plan, _, err := Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.NoError(t, err)

	_, changed, err := Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.NoError(t, err)
	assert.False(t, changed, "a converged plan must not be rewritten")
}

// Scenario 3: worker death triggers replacement at the next free address.
func TestReconcileWorkerReplacedOnDeath(t *testing.T) {
	cfg := singleManagerConfig(t)
	plan := types.NewPlan()
	plan, _, err := Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.NoError(t, err)

	lowest := plan.WorkersForService("time")[0]
	for _, w := range plan.WorkersForService("time") {
		if w.Address.Less(lowest.Address) {
			lowest = w
		}
	}

	// This manager's own heart table has declared the worker's token
	// dead; the reconciler must evict it and replan on the next cycle.
	next, changed, err := Reconcile(cfg, plan, "m1", deadTokens{lowest.Token: true}, rng())
	require.NoError(t, err)
	require.True(t, changed)

	workers := next.WorkersForService("time")
	require.Len(t, workers, 2)
	for _, w := range workers {
		assert.NotEqual(t, lowest.Token, w.Token)
	}
}

// Scenario 4: peer partition below quorum keeps the manager active.
func TestActiveSetToleratesMinorityDeadFor(t *testing.T) {
	pool, err := types.ParseAddressPool("10.0.1.2-10.0.1.10")
	require.NoError(t, err)
	cfg := types.Config{
		Managers: []types.ManagerConfig{
			{Name: "m1", Address: mustAddr(t, "10.0.1.1"), Token: "tok-m1", AddressPool: pool},
			{Name: "m2", Address: mustAddr(t, "10.0.1.1"), Token: "tok-m2", AddressPool: pool},
			{Name: "m3", Address: mustAddr(t, "10.0.1.1"), Token: "tok-m3", AddressPool: pool},
		},
	}
	plan := types.Plan{
		Version: 1,
		ManagerStates: []types.ManagerState{
			{Name: "m1", IsPrimary: true, IsActive: true, IsDeadFor: map[string]bool{}},
			{Name: "m2", IsActive: true, IsDeadFor: map[string]bool{}},
			{Name: "m3", IsActive: true, IsDeadFor: map[string]bool{"m1": true}},
		},
	}

	next, _, err := Reconcile(cfg, plan, "m1", deadTokens{"tok-m3": true}, rng())
	require.NoError(t, err)

	m3, ok := next.ManagerState("m3")
	require.True(t, ok)
	assert.True(t, m3.IsActive, "single dissenter is below quorum=2, m3 stays active")
}

func TestActiveSetFlipsAtQuorum(t *testing.T) {
	pool, err := types.ParseAddressPool("10.0.1.2-10.0.1.10")
	require.NoError(t, err)
	cfg := types.Config{
		Managers: []types.ManagerConfig{
			{Name: "m1", Address: mustAddr(t, "10.0.1.1"), Token: "tok-m1", AddressPool: pool},
			{Name: "m2", Address: mustAddr(t, "10.0.1.1"), Token: "tok-m2", AddressPool: pool},
			{Name: "m3", Address: mustAddr(t, "10.0.1.1"), Token: "tok-m3", AddressPool: pool},
		},
	}
	plan := types.Plan{
		Version: 1,
		ManagerStates: []types.ManagerState{
			{Name: "m1", IsPrimary: true, IsActive: true, IsDeadFor: map[string]bool{}},
			{Name: "m2", IsActive: true, IsDeadFor: map[string]bool{}},
			{Name: "m3", IsActive: true, IsDeadFor: map[string]bool{"m1": true, "m2": true}},
		},
	}

	next, _, err := Reconcile(cfg, plan, "m1", deadTokens{"tok-m3": true}, rng())
	require.NoError(t, err)

	m3, ok := next.ManagerState("m3")
	require.True(t, ok)
	assert.False(t, m3.IsActive, "two dissenters meet quorum=2, m3 goes inactive")
}

// Scenario 5: primary flap does not transfer back once the incumbent recovers.
func TestPrimaryDoesNotFlapBackOnRecovery(t *testing.T) {
	pool, err := types.ParseAddressPool("10.0.2.2-10.0.2.10")
	require.NoError(t, err)
	cfg := types.Config{
		Managers: []types.ManagerConfig{
			{Name: "m1", Address: mustAddr(t, "10.0.2.1"), Token: "tok-m1", AddressPool: pool},
			{Name: "m2", Address: mustAddr(t, "10.0.2.1"), Token: "tok-m2", AddressPool: pool},
		},
	}
	plan := types.Plan{
		Version: 1,
		ManagerStates: []types.ManagerState{
			{Name: "m1", IsPrimary: true, IsActive: true, IsDeadFor: map[string]bool{"m2": true}},
			{Name: "m2", IsActive: true, IsDeadFor: map[string]bool{}},
		},
	}

	// m2's own heart table agrees that m1 is dead, so its dead-for vote stands.
	next, changed, err := Reconcile(cfg, plan, "m2", deadTokens{"tok-m1": true}, rng())
	require.NoError(t, err)
	require.True(t, changed)

	newPrimary, ok := next.Primary()
	require.True(t, ok)
	assert.Equal(t, "m2", newPrimary.Name)

	// m1 recovers: clear its dead-for record and reconcile again.
	recovered := next
	for i := range recovered.ManagerStates {
		delete(recovered.ManagerStates[i].IsDeadFor, "m2")
	}

	after, _, err := Reconcile(cfg, recovered, "m2", neverDead{}, rng())
	require.NoError(t, err)
	stillPrimary, ok := after.Primary()
	require.True(t, ok)
	assert.Equal(t, "m2", stillPrimary.Name, "recovered m1 must not reclaim primacy")
}

func TestPlanWorkersPoolExhausted(t *testing.T) {
	pool, err := types.ParseAddressPool("10.0.3.2-10.0.3.3")
	require.NoError(t, err)
	cfg := types.Config{
		Managers: []types.ManagerConfig{
			{Name: "m1", Address: mustAddr(t, "10.0.3.1"), Token: "tok-m1", AddressPool: pool},
		},
		Services: []types.ServiceConfig{
			{Name: "time", Port: 9000, Replicas: 5},
		},
	}
	plan := types.NewPlan()

	_, _, err = Reconcile(cfg, plan, "m1", neverDead{}, rng())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}
