package types

import (
	"fmt"
	"net/netip"
	"time"
)

// Config is the global, admin-authored singleton describing cluster intent.
type Config struct {
	General       GeneralSettings      `json:"general" bson:"general"`
	Managers      []ManagerConfig      `json:"managers" bson:"managers"`
	Services      []ServiceConfig      `json:"services" bson:"services"`
	LoadBalancers []LoadBalancerConfig `json:"load_balancers,omitempty" bson:"load_balancers,omitempty"`
}

// GeneralSettings holds cluster-wide tunables.
type GeneralSettings struct {
	// MaxInactive is the grace period after which a silent party is
	// considered dead.
	MaxInactive time.Duration `json:"max_inactive" bson:"max_inactive"`
}

// ManagerConfig describes one physical manager host.
type ManagerConfig struct {
	Name    string     `json:"name" bson:"name"`
	Address netip.Addr `json:"address" bson:"address"`
	Port    int        `json:"port" bson:"port"`
	// Token authenticates this manager's outbound heartbeats.
	Token string `json:"token" bson:"token"`
	// ImgsPath is the directory holding base and cloned qcow2 images.
	ImgsPath string `json:"imgs_path" bson:"imgs_path"`
	// AddressPool is an inclusive IPv4 range ("A-B") this manager's VMs
	// are allocated from.
	AddressPool AddressPool `json:"address_pool" bson:"address_pool"`
}

// Host returns "address:port" for dialing this manager.
func (m ManagerConfig) Host() string {
	return fmt.Sprintf("%s:%d", m.Address, m.Port)
}

// AddressPool is an inclusive IPv4 range expressed as "A-B".
type AddressPool struct {
	Low  netip.Addr `json:"-" bson:"-"`
	High netip.Addr `json:"-" bson:"-"`
}

// ParseAddressPool parses the "A-B" wire form.
func ParseAddressPool(s string) (AddressPool, error) {
	lowStr, highStr := "", ""
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			lowStr, highStr = s[:i], s[i+1:]
			break
		}
	}
	if highStr == "" {
		return AddressPool{}, fmt.Errorf("address pool %q: expected \"A-B\"", s)
	}
	low, err := netip.ParseAddr(lowStr)
	if err != nil {
		return AddressPool{}, fmt.Errorf("address pool %q: low bound: %w", s, err)
	}
	high, err := netip.ParseAddr(highStr)
	if err != nil {
		return AddressPool{}, fmt.Errorf("address pool %q: high bound: %w", s, err)
	}
	return AddressPool{Low: low, High: high}, nil
}

func (p AddressPool) String() string {
	return fmt.Sprintf("%s-%s", p.Low, p.High)
}

// Contains reports whether addr lies within the inclusive range.
func (p AddressPool) Contains(addr netip.Addr) bool {
	return !addr.Less(p.Low) && !p.High.Less(addr)
}

// MarshalJSON / UnmarshalJSON render AddressPool as its "A-B" wire form.
func (p AddressPool) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", p.String())), nil
}

func (p *AddressPool) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseAddressPool(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Next returns the address immediately after addr, or false if that
// would fall outside the pool.
func (p AddressPool) Next(addr netip.Addr) (netip.Addr, bool) {
	next := addr.Next()
	if !next.IsValid() || p.High.Less(next) {
		return netip.Addr{}, false
	}
	return next, true
}

// ServiceConfig is a user-declared workload.
type ServiceConfig struct {
	Name     string `json:"name" bson:"name"`
	Image    string `json:"image" bson:"image"`
	Port     int    `json:"port" bson:"port"`
	Replicas int    `json:"replicas" bson:"replicas"`
}

// LoadBalancerConfig binds a public address:port to a service's workers.
// At most one entry may name a given Service.
type LoadBalancerConfig struct {
	Service string     `json:"service" bson:"service"`
	Address netip.Addr `json:"address" bson:"address"`
	Port    int        `json:"port" bson:"port"`
}

// Plan is the global, manager-authored singleton assigning VMs to hosts.
type Plan struct {
	Version       int            `json:"version" bson:"version"`
	Vms           VmList         `json:"vms" bson:"vms"`
	ManagerStates []ManagerState `json:"manager_states" bson:"manager_states"`
}

// NewPlan returns the default, empty plan used when none has been saved yet.
func NewPlan() Plan {
	return Plan{Version: 0}
}

// WorkersForService returns the Worker VMs belonging to a service, in plan order.
func (p Plan) WorkersForService(service string) []Worker {
	var out []Worker
	for _, vm := range p.Vms {
		if w, ok := vm.(Worker); ok && w.Service == service {
			out = append(out, w)
		}
	}
	return out
}

// LoadBalancerForService returns the service's LoadBalancer VM, if any.
func (p Plan) LoadBalancerForService(service string) (LoadBalancer, bool) {
	for _, vm := range p.Vms {
		if lb, ok := vm.(LoadBalancer); ok && lb.Service == service {
			return lb, true
		}
	}
	return LoadBalancer{}, false
}

// ManagerState returns the state entry for the named manager, if any.
func (p Plan) ManagerState(name string) (ManagerState, bool) {
	for _, st := range p.ManagerStates {
		if st.Name == name {
			return st, true
		}
	}
	return ManagerState{}, false
}

// Primary returns the manager currently marked primary, if any.
func (p Plan) Primary() (ManagerState, bool) {
	for _, st := range p.ManagerStates {
		if st.IsPrimary {
			return st, true
		}
	}
	return ManagerState{}, false
}

// VmType discriminates the Vm sum type.
type VmType string

const (
	VmTypeWorker       VmType = "wrk"
	VmTypeLoadBalancer VmType = "lb"
)

// Vm is the closed sum Worker | LoadBalancer, tagged by Type.
// Matching on Type (via a type switch) drives both serialization and
// per-kind reconciliation — see pkg/reconciler and pkg/vmreconciler.
type Vm interface {
	vmTag() VmType
	Base() VmBase
}

// VmBase holds the fields shared by every Vm variant.
type VmBase struct {
	Service string     `json:"service" bson:"service"`
	Manager string     `json:"manager" bson:"manager"`
	Address netip.Addr `json:"address" bson:"address"`
	Port    int        `json:"port" bson:"port"`
	Token   string     `json:"token" bson:"token"`
}

// Name is the stable hypervisor-visible domain name:
// "wso-<manager>-<type>-<service>-<token>".
func (b VmBase) Name(t VmType) string {
	return fmt.Sprintf("wso-%s-%s-%s-%s", b.Manager, t, b.Service, b.Token)
}

// Host returns "address:port".
func (b VmBase) Host() string {
	return fmt.Sprintf("%s:%d", b.Address, b.Port)
}

// Worker runs one application replica of a service.
type Worker struct {
	VmBase
}

func (w Worker) vmTag() VmType { return VmTypeWorker }
func (w Worker) Base() VmBase  { return w.VmBase }

// Name is the stable hypervisor-visible domain name for this worker.
func (w Worker) Name() string { return w.VmBase.Name(VmTypeWorker) }

// Upstream identifies one worker as an (address, port) pair.
type Upstream struct {
	Address netip.Addr `json:"address" bson:"address"`
	Port    int        `json:"port" bson:"port"`
}

// LoadBalancer fronts the workers of a single service.
type LoadBalancer struct {
	VmBase
	Upstream []Upstream `json:"upstream" bson:"upstream"`
}

func (l LoadBalancer) vmTag() VmType { return VmTypeLoadBalancer }
func (l LoadBalancer) Base() VmBase  { return l.VmBase }

// Name is the stable hypervisor-visible domain name for this load balancer.
func (l LoadBalancer) Name() string { return l.VmBase.Name(VmTypeLoadBalancer) }

// UpstreamSetEqual compares two upstream lists for set equality (order irrelevant).
func UpstreamSetEqual(a, b []Upstream) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[Upstream]int, len(a))
	for _, u := range a {
		counts[u]++
	}
	for _, u := range b {
		counts[u]--
		if counts[u] < 0 {
			return false
		}
	}
	return true
}

// ManagerState tracks one manager's place in the primary-election /
// active-set computation. Exactly one ManagerState has IsPrimary=true;
// a manager is IsActive iff reachable from the primary in the
// not-dead-for graph.
type ManagerState struct {
	Name      string `json:"name" bson:"name"`
	IsPrimary bool   `json:"is_primary" bson:"is_primary"`
	IsActive  bool   `json:"is_active" bson:"is_active"`
	// IsDeadFor is the set of manager names that currently consider
	// this manager dead. Represented as a map for JSON/BSON stability;
	// semantically a set.
	IsDeadFor map[string]bool `json:"is_dead_for" bson:"is_dead_for"`
}

// MarkedDeadBy reports whether `by` currently considers this manager dead.
func (s ManagerState) MarkedDeadBy(by string) bool {
	return s.IsDeadFor[by]
}

// DeadCount is |is_dead_for|.
func (s ManagerState) DeadCount() int {
	return len(s.IsDeadFor)
}

// IsDead reports whether this manager is dead-for-quorum managers.
func (s ManagerState) IsDead(quorum int) bool {
	return s.DeadCount() >= quorum
}

// Quorum is ceil(N/2) over the managers known to Config.
func Quorum(managerCount int) int {
	return (managerCount + 1) / 2
}

// ConnectionStatus is the process-local liveness record for one
// expected token (a peer manager or a locally-owned VM). It is never
// shared across processes; different managers may disagree about a
// token's liveness, which is exactly what ManagerState.IsDeadFor
// records.
type ConnectionStatus struct {
	PlannedAt  time.Time  `json:"planned_at"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	LastBeatAt *time.Time `json:"last_beat_at,omitempty"`
	DeadSince  *time.Time `json:"dead_since,omitempty"`
}

// NewConnectionStatus starts a fresh entry for a just-discovered token:
// no beats yet, so it is neither alive nor dead until its grace period
// (max_inactive after CreatedAt) elapses.
func NewConnectionStatus(now time.Time) ConnectionStatus {
	return ConnectionStatus{PlannedAt: now, CreatedAt: &now}
}

// Evaluate recomputes DeadSince against the current time and returns the
// updated status. It must be called on every read, since liveness is a
// function of wall-clock time rather than of the last mutating event.
func (c ConnectionStatus) Evaluate(now time.Time, maxInactive time.Duration) ConnectionStatus {
	var anchor *time.Time
	switch {
	case c.LastBeatAt != nil:
		anchor = c.LastBeatAt
	case c.CreatedAt != nil:
		anchor = c.CreatedAt
	default:
		c.DeadSince = nil
		return c
	}
	deadline := anchor.Add(maxInactive)
	if now.After(deadline) {
		c.DeadSince = &deadline
	} else {
		c.DeadSince = nil
	}
	return c
}

// IsDead reports liveness as of the last Evaluate call.
func (c ConnectionStatus) IsDead() bool {
	return c.DeadSince != nil
}

// Beat records a heartbeat arrival at `now`.
func (c ConnectionStatus) Beat(now time.Time) ConnectionStatus {
	c.LastBeatAt = &now
	c.DeadSince = nil
	return c
}
