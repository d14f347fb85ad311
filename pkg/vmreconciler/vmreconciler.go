package vmreconciler

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/cuemby/wsomgr/pkg/log"
	"github.com/cuemby/wsomgr/pkg/metrics"
	"github.com/cuemby/wsomgr/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HypervisorDriver is the subset of pkg/hypervisor.Driver this package
// consumes, kept as an interface so tests run against a fake.
type HypervisorDriver interface {
	ListAllDomains(ctx context.Context) ([]DomainInfo, error)
	CreateXML(ctx context.Context, domainXML string) (DomainInfo, error)
	Destroy(ctx context.Context, name string) error
	DomainInterfaceAddresses(ctx context.Context, name string) ([]string, error)
}

// DomainInfo mirrors hypervisor.Domain; redeclared here so this
// package doesn't have to import pkg/hypervisor just for a struct
// shape the fakes also need to produce.
type DomainInfo struct {
	Name string
	UUID string
}

// ImageProvisioner clones a service's base qcow2 image to the path a
// new domain's XML definition will reference. The concrete shell/
// playbook driver is out of core scope; this interface is what
// LocalReconciler consumes.
type ImageProvisioner interface {
	CloneImage(ctx context.Context, imgsPath, serviceImage, vmName string) (diskPath string, err error)
	DomainXML(vmName, diskPath string) string
	// RemoveImage deletes the cloned disk a prior CloneImage produced
	// for vmName, once its domain is gone.
	RemoveImage(ctx context.Context, imgsPath, vmName string) error
}

// GuestProvisioner drives the post-boot playbooks: re-IP, reachability
// wait, and per-kind setup (worker bring-up vs LB upstream config).
type GuestProvisioner interface {
	WaitGuestAgent(ctx context.Context, vmName string) error
	ReIP(ctx context.Context, vmName, dhcpAddr string, target netip.Addr) error
	WaitReachable(ctx context.Context, target netip.Addr) error
	SetupWorker(ctx context.Context, w types.Worker, managerAddress string) error
	SetupLoadBalancer(ctx context.Context, lb types.LoadBalancer) error
}

// StatusTable is the subset of pkg/heart.Table this package updates
// after every diff: newly planned tokens start a grace period, gone
// tokens are forgotten.
type StatusTable interface {
	Plan(token string)
	Forget(token string)
}

// LocalReconciler diffs the Plan's VMs assigned to this manager
// against what the hypervisor actually has running, and drives
// creates/deletes/LB-reconfigurations to close the gap.
type LocalReconciler struct {
	selfName       string
	managerAddress string
	imgsPath       string

	driver HypervisorDriver
	images ImageProvisioner
	guests GuestProvisioner
	table  StatusTable

	logger zerolog.Logger
	mu     sync.Mutex
}

// New creates a LocalReconciler for selfName, whose own address is
// managerAddress (handed to newly-provisioned workers so their heart
// knows where home is) and whose base images live under imgsPath.
func New(selfName, managerAddress, imgsPath string, driver HypervisorDriver, images ImageProvisioner, guests GuestProvisioner, table StatusTable) *LocalReconciler {
	return &LocalReconciler{
		selfName:       selfName,
		managerAddress: managerAddress,
		imgsPath:       imgsPath,
		driver:         driver,
		images:         images,
		guests:         guests,
		table:          table,
		logger:         log.WithComponent("vmreconciler").With().Str("manager", selfName).Logger(),
	}
}

// Reconcile diffs plan against the hypervisor and converges toward it.
// It is safe to call repeatedly and safe to call after a crash: it
// always re-diffs against live hypervisor state rather than trusting
// any previously-applied diff.
func (r *LocalReconciler) Reconcile(ctx context.Context, cfg types.Config, plan types.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	domains, err := r.driver.ListAllDomains(ctx)
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}

	local := ownedDomainsByName(domains, r.selfName)
	desired := ownedVmsByName(plan, r.selfName)
	serviceImages := serviceImageIndex(cfg)

	diff := computeDiff(desired, local)

	// A plain errgroup (no WithContext) is used deliberately: one VM's
	// action failing must not cancel its siblings' in-flight context.
	var g errgroup.Group
	for _, vm := range diff.create {
		vm := vm
		g.Go(func() error { return r.create(ctx, serviceImages[vm.Base().Service], vm) })
	}
	for name := range diff.delete {
		name := name
		g.Go(func() error { return r.delete(ctx, name) })
	}
	for _, vm := range diff.updateLB {
		vm := vm
		g.Go(func() error { return r.updateLB(ctx, vm) })
	}

	err = g.Wait()

	r.refreshStatusTable(desired, diff.delete)

	return err
}

func serviceImageIndex(cfg types.Config) map[string]string {
	out := make(map[string]string, len(cfg.Services))
	for _, svc := range cfg.Services {
		out[svc.Name] = svc.Image
	}
	return out
}

type diffResult struct {
	create   []types.Vm
	delete   map[string]struct{}
	updateLB []types.LoadBalancer
}

func computeDiff(desired map[string]types.Vm, local map[string]DomainInfo) diffResult {
	diff := diffResult{delete: map[string]struct{}{}}

	for name, vm := range desired {
		if _, present := local[name]; !present {
			diff.create = append(diff.create, vm)
			continue
		}
		// Every Plan change re-renders an already-running LB's upstream
		// config idempotently; there is no cheaper signal available
		// locally than "this LB's name is unchanged" to know whether its
		// upstream set moved.
		if lb, ok := vm.(types.LoadBalancer); ok {
			diff.updateLB = append(diff.updateLB, lb)
		}
	}
	for name := range local {
		if _, present := desired[name]; !present {
			diff.delete[name] = struct{}{}
		}
	}
	return diff
}

func ownedVmsByName(plan types.Plan, selfName string) map[string]types.Vm {
	out := make(map[string]types.Vm)
	for _, vm := range plan.Vms {
		b := vm.Base()
		if b.Manager != selfName {
			continue
		}
		var name string
		switch vm.(type) {
		case types.Worker:
			name = b.Name(types.VmTypeWorker)
		case types.LoadBalancer:
			name = b.Name(types.VmTypeLoadBalancer)
		default:
			continue
		}
		out[name] = vm
	}
	return out
}

func ownedDomainsByName(domains []DomainInfo, selfName string) map[string]DomainInfo {
	out := make(map[string]DomainInfo)
	for _, d := range domains {
		parsed, ok := parseName(d.Name)
		if !ok {
			continue
		}
		if parsed.Manager != selfName {
			continue
		}
		out[d.Name] = d
	}
	return out
}

func (r *LocalReconciler) create(ctx context.Context, serviceImage string, vm types.Vm) error {
	timer := metrics.NewTimer()
	base := vm.Base()
	var name string
	switch v := vm.(type) {
	case types.Worker:
		name = v.Name()
	case types.LoadBalancer:
		name = v.Name()
	default:
		return fmt.Errorf("create: unknown vm variant for token %s", base.Token)
	}

	logger := log.WithVmName(name)
	logger.Info().Msg("creating vm")

	diskPath, err := r.images.CloneImage(ctx, r.imgsPath, serviceImage, name)
	if err != nil {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("clone image for %s: %w", name, err)
	}

	domainXML := r.images.DomainXML(name, diskPath)
	if _, err := r.driver.CreateXML(ctx, domainXML); err != nil {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("define domain %s: %w", name, err)
	}

	if err := r.guests.WaitGuestAgent(ctx, name); err != nil {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("wait guest agent %s: %w", name, err)
	}

	addrs, err := r.driver.DomainInterfaceAddresses(ctx, name)
	if err != nil || len(addrs) == 0 {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("discover dhcp address for %s: %w", name, err)
	}

	if err := r.guests.ReIP(ctx, name, addrs[0], base.Address); err != nil {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("re-ip %s: %w", name, err)
	}
	if err := r.guests.WaitReachable(ctx, base.Address); err != nil {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("wait reachable %s: %w", name, err)
	}

	switch v := vm.(type) {
	case types.Worker:
		err = r.guests.SetupWorker(ctx, v, r.managerAddress)
	case types.LoadBalancer:
		err = r.guests.SetupLoadBalancer(ctx, v)
	}
	if err != nil {
		metrics.VmActionsTotal.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("setup %s: %w", name, err)
	}

	timer.ObserveDurationVec(metrics.VmActionDuration, "create")
	metrics.VmActionsTotal.WithLabelValues("create", "ok").Inc()
	logger.Info().Msg("vm created")
	return nil
}

func (r *LocalReconciler) delete(ctx context.Context, name string) error {
	timer := metrics.NewTimer()
	logger := log.WithVmName(name)
	logger.Info().Msg("deleting vm")

	if err := r.driver.Destroy(ctx, name); err != nil {
		metrics.VmActionsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("destroy %s: %w", name, err)
	}

	if err := r.images.RemoveImage(ctx, r.imgsPath, name); err != nil {
		metrics.VmActionsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("remove disk for %s: %w", name, err)
	}

	timer.ObserveDurationVec(metrics.VmActionDuration, "delete")
	metrics.VmActionsTotal.WithLabelValues("delete", "ok").Inc()
	logger.Info().Msg("vm deleted")
	return nil
}

func (r *LocalReconciler) updateLB(ctx context.Context, lb types.LoadBalancer) error {
	timer := metrics.NewTimer()
	name := lb.Name()
	logger := log.WithVmName(name)

	if err := r.guests.SetupLoadBalancer(ctx, lb); err != nil {
		metrics.VmActionsTotal.WithLabelValues("update_lb", "error").Inc()
		return fmt.Errorf("reconfigure lb %s: %w", name, err)
	}

	timer.ObserveDurationVec(metrics.VmActionDuration, "update_lb")
	metrics.VmActionsTotal.WithLabelValues("update_lb", "ok").Inc()
	logger.Debug().Msg("lb upstream reconfigured")
	return nil
}

func (r *LocalReconciler) refreshStatusTable(desired map[string]types.Vm, deletedNames map[string]struct{}) {
	for _, vm := range desired {
		r.table.Plan(vm.Base().Token)
	}
	for name := range deletedNames {
		if parsed, ok := parseName(name); ok {
			r.table.Forget(parsed.UUID)
		}
	}
}
