package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/wsomgr/pkg/hypervisor"
)

// domainLookup adapts *hypervisor.Driver to pkg/api.DomainLookup: the
// first address the guest agent reports, on any interface, for "/ip",
// and domain-destroy-plus-disk-removal
// for "/delete".
type domainLookup struct {
	driver   *hypervisor.Driver
	imgsPath string
}

func (d domainLookup) LookupIP(ctx context.Context, domainName string) (string, error) {
	addrs, err := d.driver.DomainInterfaceAddresses(ctx, domainName)
	if err != nil {
		return "", fmt.Errorf("lookup ip for %s: %w", domainName, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("domain %s reported no addresses", domainName)
	}
	return addrs[0], nil
}

func (d domainLookup) Delete(ctx context.Context, domainName string) error {
	if err := d.driver.Destroy(ctx, domainName); err != nil {
		return fmt.Errorf("destroy domain %s: %w", domainName, err)
	}
	disk := filepath.Join(d.imgsPath, domainName+".qcow2")
	if err := os.Remove(disk); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove disk %s: %w", disk, err)
	}
	return nil
}
