package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/metrics"
	"github.com/cuemby/wsomgr/pkg/repository"
	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrPoolExhausted means a manager's address_pool has no free address
// left for a new worker.
var ErrPoolExhausted = errors.New("reconciler: address pool exhausted")

// LiveChecker answers whether a token (peer manager or local VM) is
// currently considered dead. Satisfied by *heart.Table; kept as an
// interface so reconciler tests don't need a real Table.
type LiveChecker interface {
	IsDead(token string) bool
}

// Reconciler rebuilds Plan from (Config, Plan, local liveness) and
// commits the result with compare-and-swap, the way the teacher's
// Scheduler rebuilds container placement from (Services, Nodes) on a
// ticker calling a pure schedule step.
type Reconciler struct {
	store    repository.Store
	selfName string
	live     LiveChecker
	logger   zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Reconciler. selfName is this manager's Config entry
// name (WSOMGR_MANAGER_NAME); live answers per-token liveness from the
// local heartbeat table.
func New(store repository.Store, selfName string, live LiveChecker) *Reconciler {
	return &Reconciler{
		store:    store,
		selfName: selfName,
		live:     live,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the ~1Hz correction loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the correction loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.Tick(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("correction cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Tick performs one correction cycle: read Config/Plan, recompute, and
// attempt to commit. A lost CAS race is not an error — the loser waits
// for the next watch event or tick.
func (r *Reconciler) Tick(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	cfg, err := r.store.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	plan, err := r.store.GetPlan(ctx)
	if err != nil {
		return fmt.Errorf("get plan: %w", err)
	}

	next, changed, err := Reconcile(cfg, plan, r.selfName, r.live, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			r.logger.Error().Err(err).Msg("address pool exhausted, retrying next cycle")
			return nil
		}
		return err
	}
	if !changed {
		return nil
	}

	applied, err := r.store.SavePlan(ctx, next)
	if err != nil {
		metrics.PlanCommitsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("save plan: %w", err)
	}
	if !applied {
		metrics.PlanCommitsTotal.WithLabelValues("lost_race").Inc()
		r.logger.Debug().Int("version", next.Version).Msg("lost compare-and-swap race, deferring to watch event")
		return nil
	}

	metrics.PlanCommitsTotal.WithLabelValues("applied").Inc()
	metrics.PlanVersion.Set(float64(next.Version))
	r.logger.Info().Int("version", next.Version).Msg("plan committed")
	return nil
}

// Reconcile is the pure core: given the current Config, the current
// Plan, this manager's name, a liveness oracle, and a source of
// randomness for placement, it returns the next Plan and whether
// anything changed. It never touches the store.
func Reconcile(cfg types.Config, plan types.Plan, selfName string, live LiveChecker, rng *rand.Rand) (types.Plan, bool, error) {
	states, statesChanged := reconcileManagerStates(cfg, plan, selfName, live, rng)
	activeManagers := activeManagerNames(states)

	vms := append(types.VmList(nil), plan.Vms...)
	anyVmChanged := false

	for _, svc := range cfg.Services {
		newVms, changed, err := planService(cfg, svc, vms, activeManagers, selfName, live, rng)
		if err != nil {
			return types.Plan{}, false, err
		}
		vms = newVms
		anyVmChanged = anyVmChanged || changed
	}

	changed := statesChanged || anyVmChanged
	if !changed {
		return plan, false, nil
	}

	return types.Plan{
		Version:       plan.Version + 1,
		Vms:           vms,
		ManagerStates: states,
	}, true, nil
}

func activeManagerNames(states []types.ManagerState) []string {
	var out []string
	for _, st := range states {
		if st.IsActive {
			out = append(out, st.Name)
		}
	}
	return out
}

// reconcileManagerStates implements spec.md §4.3.1 passes 1-3.
func reconcileManagerStates(cfg types.Config, plan types.Plan, selfName string, live LiveChecker, rng *rand.Rand) ([]types.ManagerState, bool) {
	changed := false
	quorum := types.Quorum(len(cfg.Managers))

	byName := make(map[string]types.ManagerState, len(plan.ManagerStates))
	for _, st := range plan.ManagerStates {
		byName[st.Name] = st
	}

	// Pass 1: membership and dead-for sets.
	var states []types.ManagerState
	for _, m := range cfg.Managers {
		st, existed := byName[m.Name]
		if !existed {
			st = types.ManagerState{Name: m.Name, IsDeadFor: map[string]bool{}}
			changed = true
		}
		if st.IsDeadFor == nil {
			st.IsDeadFor = map[string]bool{}
		}

		dead := live.IsDead(m.Token)
		wasDead := st.IsDeadFor[selfName]
		if m.Name != selfName && dead != wasDead {
			if dead {
				st.IsDeadFor[selfName] = true
			} else {
				delete(st.IsDeadFor, selfName)
			}
			changed = true
		}
		states = append(states, st)
	}

	// Pass 2: choose primary.
	var current *types.ManagerState
	for i := range states {
		if states[i].IsPrimary {
			current = &states[i]
		}
	}

	candidateIdx := leastDeadCandidate(states, selfName, rng)

	switch {
	case current == nil:
		states[candidateIdx].IsPrimary = true
		changed = true
	case current.IsDead(quorum) && !states[candidateIdx].IsDead(quorum) && states[candidateIdx].Name != current.Name:
		current.IsPrimary = false
		states[candidateIdx].IsPrimary = true
		changed = true
	}

	// Pass 3: active set via BFS over the "not dead-for any visited" edge.
	var primaryName string
	for _, st := range states {
		if st.IsPrimary {
			primaryName = st.Name
		}
	}
	activeSet := activeSetFrom(states, primaryName)
	for i := range states {
		wantActive := activeSet[states[i].Name]
		if states[i].IsActive != wantActive {
			states[i].IsActive = wantActive
			changed = true
		}
	}

	return states, changed
}

// leastDeadCandidate minimizes (|is_dead_for|, name != selfName), with
// ties broken by a uniform shuffle — spec.md §4.3.1 pass 2.
func leastDeadCandidate(states []types.ManagerState, selfName string, rng *rand.Rand) int {
	order := rng.Perm(len(states))
	best := order[0]
	bestKey := candidateKey(states[best], selfName)
	for _, i := range order[1:] {
		key := candidateKey(states[i], selfName)
		if key.less(bestKey) {
			best, bestKey = i, key
		}
	}
	return best
}

type candidateRank struct {
	deadCount int
	notSelf   int
}

func (a candidateRank) less(b candidateRank) bool {
	if a.deadCount != b.deadCount {
		return a.deadCount < b.deadCount
	}
	return a.notSelf < b.notSelf
}

func candidateKey(st types.ManagerState, selfName string) candidateRank {
	notSelf := 0
	if st.Name != selfName {
		notSelf = 1
	}
	return candidateRank{deadCount: st.DeadCount(), notSelf: notSelf}
}

// activeSetFrom computes the BFS reachability set from primary using
// the edge relation "B reachable from A iff B is not dead-for A".
func activeSetFrom(states []types.ManagerState, primary string) map[string]bool {
	if primary == "" {
		return map[string]bool{}
	}

	visited := map[string]bool{primary: true}
	queue := []string{primary}
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		for _, st := range states {
			if visited[st.Name] {
				continue
			}
			if st.MarkedDeadBy(a) {
				continue
			}
			visited[st.Name] = true
			queue = append(queue, st.Name)
		}
	}
	return visited
}

// planService rebuilds one service's workers and (if configured) its
// load balancer — spec.md §4.3.2 and §4.3.3. It returns the full VM
// list with this service's entries replaced.
func planService(cfg types.Config, svc types.ServiceConfig, vms []types.Vm, activeManagers []string, selfName string, live LiveChecker, rng *rand.Rand) ([]types.Vm, bool, error) {
	var others []types.Vm
	var workers []types.Worker
	var lb *types.LoadBalancer

	for _, vm := range vms {
		switch v := vm.(type) {
		case types.Worker:
			if v.Service != svc.Name {
				others = append(others, vm)
			}
		case types.LoadBalancer:
			if v.Service == svc.Name {
				lbCopy := v
				lb = &lbCopy
			} else {
				others = append(others, vm)
			}
		default:
			others = append(others, vm)
		}
	}
	for _, vm := range vms {
		if w, ok := vm.(types.Worker); ok && w.Service == svc.Name && containsString(activeManagers, w.Manager) {
			workers = append(workers, w)
		}
	}

	newWorkers, workersChanged, err := planWorkers(cfg, svc, workers, vms, activeManagers, selfName, live, rng)
	if err != nil {
		return nil, false, err
	}

	newLb, lbChanged := planLoadBalancer(cfg, svc, newWorkers, lb, activeManagers, rng)

	out := others
	for _, w := range newWorkers {
		out = append(out, w)
	}
	if newLb != nil {
		out = append(out, *newLb)
	}

	return out, workersChanged || lbChanged, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// planWorkers implements spec.md §4.3.2's delta-based scale up/down.
// Before computing delta, it evicts any worker this manager owns whose
// token its own heartbeat table has declared dead — spec.md §3
// Lifecycles: "a Vm ... leaves ... when its token is declared dead by
// its owning manager."
func planWorkers(cfg types.Config, svc types.ServiceConfig, existing []types.Worker, allVms []types.Vm, activeManagers []string, selfName string, live LiveChecker, rng *rand.Rand) ([]types.Worker, bool, error) {
	var alive []types.Worker
	evicted := false
	for _, w := range existing {
		if w.Manager == selfName && live.IsDead(w.Token) {
			evicted = true
			continue
		}
		alive = append(alive, w)
	}
	existing = alive

	delta := svc.Replicas - len(existing)
	if delta == 0 {
		return existing, evicted, nil
	}

	if delta < 0 {
		remove := -delta
		idxs := rng.Perm(len(existing))[:remove]
		toRemove := make(map[int]bool, remove)
		for _, i := range idxs {
			toRemove[i] = true
		}
		var kept []types.Worker
		for i, w := range existing {
			if !toRemove[i] {
				kept = append(kept, w)
			}
		}
		return kept, true, nil
	}

	if len(activeManagers) == 0 {
		return existing, false, nil
	}

	managersByName := make(map[string]types.ManagerConfig, len(cfg.Managers))
	for _, m := range cfg.Managers {
		managersByName[m.Name] = m
	}

	used := usedAddresses(allVms)
	out := append([]types.Worker(nil), existing...)
	for i := 0; i < delta; i++ {
		managerName := activeManagers[rng.Intn(len(activeManagers))]
		manager := managersByName[managerName]
		addr, ok := allocateAddress(manager.AddressPool, used)
		if !ok {
			return nil, false, fmt.Errorf("%w: manager %q service %q", ErrPoolExhausted, managerName, svc.Name)
		}
		used[addr] = true
		out = append(out, types.Worker{VmBase: types.VmBase{
			Service: svc.Name,
			Manager: managerName,
			Address: addr,
			Port:    svc.Port,
			Token:   uuid.NewString(),
		}})
	}
	return out, true, nil
}

// planLoadBalancer implements spec.md §4.3.3.
func planLoadBalancer(cfg types.Config, svc types.ServiceConfig, workers []types.Worker, existing *types.LoadBalancer, activeManagers []string, rng *rand.Rand) (*types.LoadBalancer, bool) {
	var lbCfg *types.LoadBalancerConfig
	for i := range cfg.LoadBalancers {
		if cfg.LoadBalancers[i].Service == svc.Name {
			lbCfg = &cfg.LoadBalancers[i]
			break
		}
	}

	if lbCfg == nil {
		return nil, existing != nil
	}

	upstream := upstreamFor(workers)

	if existing == nil {
		if len(activeManagers) == 0 {
			return nil, false
		}
		managerName := activeManagers[rng.Intn(len(activeManagers))]
		return &types.LoadBalancer{
			VmBase: types.VmBase{
				Service: svc.Name,
				Manager: managerName,
				Address: lbCfg.Address,
				Port:    lbCfg.Port,
				Token:   uuid.NewString(),
			},
			Upstream: upstream,
		}, true
	}

	manager := existing.Manager
	rebuildToken := false
	if !containsString(activeManagers, manager) && len(activeManagers) > 0 {
		manager = activeManagers[rng.Intn(len(activeManagers))]
		rebuildToken = true
	}
	if existing.Address != lbCfg.Address {
		rebuildToken = true
	}

	changed := manager != existing.Manager ||
		existing.Address != lbCfg.Address ||
		existing.Port != lbCfg.Port ||
		!types.UpstreamSetEqual(existing.Upstream, upstream)

	if !changed {
		return existing, false
	}

	token := existing.Token
	if rebuildToken {
		token = uuid.NewString()
	}

	return &types.LoadBalancer{
		VmBase: types.VmBase{
			Service: svc.Name,
			Manager: manager,
			Address: lbCfg.Address,
			Port:    lbCfg.Port,
			Token:   token,
		},
		Upstream: upstream,
	}, true
}

func upstreamFor(workers []types.Worker) []types.Upstream {
	out := make([]types.Upstream, len(workers))
	for i, w := range workers {
		out[i] = types.Upstream{Address: w.Address, Port: w.Port}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}

// usedAddresses collects every address already occupied by a VM, so
// allocateAddress never hands out a duplicate.
func usedAddresses(vms []types.Vm) map[netip.Addr]bool {
	used := make(map[netip.Addr]bool, len(vms))
	for _, vm := range vms {
		used[vm.Base().Address] = true
	}
	return used
}

// allocateAddress scans pool ascending and returns the first address
// not in used — spec.md §4.3.2.
func allocateAddress(pool types.AddressPool, used map[netip.Addr]bool) (netip.Addr, bool) {
	addr := pool.Low
	for {
		if !used[addr] {
			return addr, true
		}
		next, ok := pool.Next(addr)
		if !ok {
			return netip.Addr{}, false
		}
		addr = next
	}
}
