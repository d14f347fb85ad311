package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/wsomgr/pkg/heart"
	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/reconciler"
	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/rs/zerolog"
)

// VmReconciler is the subset of *vmreconciler.LocalReconciler this
// package consumes, kept as an interface so tests run against a fake.
type VmReconciler interface {
	Reconcile(ctx context.Context, cfg types.Config, plan types.Plan) error
}

// Orchestrator wires the pieces every manager process needs: watching
// Config/Plan for changes, keeping one outbound Heart per peer manager,
// keeping the inbound StatusTable's expected-token set current, and
// driving the local VM reconciler whenever the Plan moves.
type Orchestrator struct {
	selfName          string
	store             repository.Store
	table             *heart.Table
	recon             *reconciler.Reconciler
	vmrecon           VmReconciler
	beatInterval      time.Duration
	reconnectInterval time.Duration
	logger            zerolog.Logger

	mu      sync.Mutex
	cfg     types.Config
	plan    types.Plan
	peers   map[string]peerHeart
}

type peerHeart struct {
	token  string
	cancel context.CancelFunc
}

// New builds an Orchestrator. table backs both the reconciler's
// liveness oracle and the inbound heartbeat handler; vmrecon converges
// this manager's local VMs on every observed Plan change.
func New(selfName string, store repository.Store, table *heart.Table, vmrecon VmReconciler, beatInterval, reconnectInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		selfName:          selfName,
		store:             store,
		table:             table,
		recon:             reconciler.New(store, selfName, table),
		vmrecon:           vmrecon,
		beatInterval:      beatInterval,
		reconnectInterval: reconnectInterval,
		logger:            log.WithComponent("orchestrator").With().Str("manager", selfName).Logger(),
		peers:             make(map[string]peerHeart),
	}
}

// Run loads the initial Config and Plan, starts the correction
// reconciler and the Config/Plan watch loops, and blocks until ctx is
// cancelled. A failure to load the initial Config or Plan is fatal.
func (o *Orchestrator) Run(ctx context.Context) error {
	cfg, err := o.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("initial config load: %w", err)
	}
	plan, err := o.store.GetPlan(ctx)
	if err != nil {
		return fmt.Errorf("initial plan load: %w", err)
	}

	o.applyConfig(ctx, cfg)
	o.applyPlan(ctx, plan)

	o.recon.Start()
	defer o.recon.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for cfg := range o.store.WatchConfig(ctx) {
			o.applyConfig(ctx, cfg)
			if err := o.recon.Tick(ctx); err != nil {
				o.logger.Error().Err(err).Msg("correction cycle after config change failed")
			}
		}
	}()
	go func() {
		defer wg.Done()
		for plan := range o.store.WatchPlan(ctx) {
			o.applyPlan(ctx, plan)
			if err := o.recon.Tick(ctx); err != nil {
				o.logger.Error().Err(err).Msg("correction cycle after plan change failed")
			}
		}
	}()

	<-ctx.Done()
	o.stopAllPeers()
	wg.Wait()
	return nil
}

// ReconcileNow re-runs the local VM reconciler against the
// last-observed Config and Plan, for pkg/api's "/create_time" shortcut.
func (o *Orchestrator) ReconcileNow(ctx context.Context) error {
	o.mu.Lock()
	cfg, plan := o.cfg, o.plan
	o.mu.Unlock()
	return o.vmrecon.Reconcile(ctx, cfg, plan)
}

func (o *Orchestrator) applyConfig(ctx context.Context, cfg types.Config) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()

	selfToken := ""
	for _, m := range cfg.Managers {
		if m.Name == o.selfName {
			selfToken = m.Token
		}
	}
	if selfToken == "" {
		o.logger.Error().Msg("this manager's name is absent from the config's managers list")
		return
	}

	desired := make(map[string]types.ManagerConfig, len(cfg.Managers))
	for _, m := range cfg.Managers {
		if m.Name != o.selfName {
			desired[m.Name] = m
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for name, p := range o.peers {
		m, stillWanted := desired[name]
		if stillWanted && m.Token == p.token {
			continue
		}
		p.cancel()
		o.table.Forget(p.token)
		delete(o.peers, name)
	}

	for name, m := range desired {
		if _, ok := o.peers[name]; ok {
			continue
		}
		peerCtx, cancel := context.WithCancel(ctx)
		// m.Token is what we expect *this peer* to beat to us with;
		// selfToken is what our own outbound Heart announces to them.
		o.table.Plan(m.Token)
		h := heart.New(m.Host(), selfToken, o.beatInterval, o.reconnectInterval)
		go h.BeatForever(peerCtx)
		o.peers[name] = peerHeart{token: m.Token, cancel: cancel}
	}
}

func (o *Orchestrator) applyPlan(ctx context.Context, plan types.Plan) {
	o.mu.Lock()
	o.plan = plan
	cfg := o.cfg
	o.mu.Unlock()

	if err := o.vmrecon.Reconcile(ctx, cfg, plan); err != nil {
		o.logger.Error().Err(err).Msg("local vm reconciliation failed")
	}
}

func (o *Orchestrator) stopAllPeers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name, p := range o.peers {
		p.cancel()
		delete(o.peers, name)
	}
}
