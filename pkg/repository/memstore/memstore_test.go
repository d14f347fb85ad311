package memstore

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigBeforeSaveIsErrNotConfigured(t *testing.T) {
	s := New()
	_, err := s.GetConfig(context.Background())
	assert.ErrorIs(t, err, repository.ErrNotConfigured)
}

func TestSaveConfigThenGetConfigRoundTrips(t *testing.T) {
	s := New()
	cfg := types.Config{Services: []types.ServiceConfig{{Name: "web", Replicas: 3}}}
	require.NoError(t, s.SaveConfig(context.Background(), cfg))

	got, err := s.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestGetPlanBeforeSaveIsEmptyPlan(t *testing.T) {
	s := New()
	plan, err := s.GetPlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.NewPlan(), plan)
}

func TestSavePlanCompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.SavePlan(ctx, types.Plan{Version: 1})
	require.NoError(t, err)
	assert.True(t, ok, "first write at version 1 should apply cleanly from version 0")

	ok, err = s.SavePlan(ctx, types.Plan{Version: 3})
	require.NoError(t, err)
	assert.False(t, ok, "write based on the wrong prior version must lose the race")

	stored, err := s.GetPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version, "a lost race must not mutate the stored plan")

	ok, err = s.SavePlan(ctx, types.Plan{Version: 2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSavePlanConcurrentRaceExactlyOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ok, err := s.SavePlan(ctx, types.Plan{Version: 1})
			require.NoError(t, err)
			results <- ok
		}()
	}

	wins := 0
	for i := 0; i < 2; i++ {
		if <-results {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one of two racing CAS writes at the same base version must win")
}

func TestWatchPlanReceivesSuccessfulWrites(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.WatchPlan(ctx)

	addr := netip.MustParseAddr("10.0.0.5")
	plan := types.Plan{Version: 1, Vms: types.VmList{types.Worker{VmBase: types.VmBase{
		Service: "web", Manager: "m1", Address: addr, Port: 80, Token: "tok",
	}}}}

	go func() {
		_, err := s.SavePlan(ctx, plan)
		assert.NoError(t, err)
	}()

	select {
	case got := <-ch:
		assert.Equal(t, plan.Version, got.Version)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestWatchPlanClosesOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.WatchPlan(ctx)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "watch channel must close once its context is done")
	case <-time.After(time.Second):
		t.Fatal("watch channel did not close after cancel")
	}
}

var _ repository.Store = (*Store)(nil)
