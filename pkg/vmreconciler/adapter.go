package vmreconciler

import (
	"context"

	"github.com/cuemby/wsomgr/pkg/hypervisor"
)

// HypervisorAdapter adapts *hypervisor.Driver to the HypervisorDriver
// interface this package consumes, translating hypervisor.Domain to
// the local DomainInfo shape.
type HypervisorAdapter struct {
	Driver *hypervisor.Driver
}

func (a HypervisorAdapter) ListAllDomains(ctx context.Context) ([]DomainInfo, error) {
	domains, err := a.Driver.ListAllDomains(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DomainInfo, len(domains))
	for i, d := range domains {
		out[i] = DomainInfo{Name: d.Name, UUID: d.UUID}
	}
	return out, nil
}

func (a HypervisorAdapter) CreateXML(ctx context.Context, domainXML string) (DomainInfo, error) {
	d, err := a.Driver.CreateXML(ctx, domainXML)
	if err != nil {
		return DomainInfo{}, err
	}
	return DomainInfo{Name: d.Name, UUID: d.UUID}, nil
}

func (a HypervisorAdapter) Destroy(ctx context.Context, name string) error {
	return a.Driver.Destroy(ctx, name)
}

func (a HypervisorAdapter) DomainInterfaceAddresses(ctx context.Context, name string) ([]string, error) {
	return a.Driver.DomainInterfaceAddresses(ctx, name)
}

var _ HypervisorDriver = HypervisorAdapter{}
