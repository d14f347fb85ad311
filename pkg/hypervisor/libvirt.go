package hypervisor

import (
	"context"
	"fmt"
	"net"

	"github.com/digitalocean/go-libvirt"
)

// DefaultSocketPath is the default libvirtd UNIX socket.
const DefaultSocketPath = "/var/run/libvirt/libvirt-sock"

// Driver is a thin wrapper over the libvirt RPCs this module needs:
// listAllDomains, createXML, lookupByName, destroy, interfaceAddresses.
// It exists so pkg/vmreconciler depends on a small interface rather
// than the full go-libvirt client surface.
type Driver struct {
	conn net.Conn
	l    *libvirt.Libvirt
}

// Dial opens a UNIX socket to libvirtd and performs the RPC handshake.
func Dial(socketPath string) (*Driver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial libvirt socket %s: %w", socketPath, err)
	}
	l := libvirt.New(conn)
	if err := l.Connect(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("libvirt connect: %w", err)
	}
	return &Driver{conn: conn, l: l}, nil
}

// Close disconnects from libvirtd.
func (d *Driver) Close() error {
	if err := d.l.Disconnect(); err != nil {
		d.conn.Close()
		return fmt.Errorf("libvirt disconnect: %w", err)
	}
	return d.conn.Close()
}

// Domain is the subset of libvirt.Domain fields callers need.
type Domain struct {
	Name string
	UUID string
}

// ListAllDomains returns every domain libvirtd knows about, running or
// not, so the local VM reconciler can diff hypervisor reality against
// the Plan regardless of power state.
func (d *Driver) ListAllDomains(ctx context.Context) ([]Domain, error) {
	domains, _, err := d.l.ConnectListAllDomains(-1, libvirt.ConnectListDomainsActive|libvirt.ConnectListDomainsInactive)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	out := make([]Domain, len(domains))
	for i, dom := range domains {
		out[i] = Domain{Name: dom.Name, UUID: fmt.Sprintf("%x", dom.UUID)}
	}
	return out, nil
}

// CreateXML defines and starts a domain from its libvirt XML
// definition, the equivalent of `virsh create domain.xml`.
func (d *Driver) CreateXML(ctx context.Context, domainXML string) (Domain, error) {
	dom, err := d.l.DomainCreateXML(domainXML, 0)
	if err != nil {
		return Domain{}, fmt.Errorf("create domain: %w", err)
	}
	return Domain{Name: dom.Name, UUID: fmt.Sprintf("%x", dom.UUID)}, nil
}

// LookupDomainByName resolves a domain by its hypervisor-visible name.
func (d *Driver) LookupDomainByName(ctx context.Context, name string) (Domain, error) {
	dom, err := d.l.DomainLookupByName(name)
	if err != nil {
		return Domain{}, fmt.Errorf("lookup domain %s: %w", name, err)
	}
	return Domain{Name: dom.Name, UUID: fmt.Sprintf("%x", dom.UUID)}, nil
}

// Destroy forcibly stops a running domain. Callers are expected to
// also remove the backing disk file; Destroy only stops the guest.
func (d *Driver) Destroy(ctx context.Context, name string) error {
	dom, err := d.l.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("lookup domain %s: %w", name, err)
	}
	if err := d.l.DomainDestroy(dom); err != nil {
		return fmt.Errorf("destroy domain %s: %w", name, err)
	}
	return nil
}

// DomainInterfaceAddresses queries the guest agent for its current IP
// addresses, used to discover the DHCP-assigned address before re-IP.
func (d *Driver) DomainInterfaceAddresses(ctx context.Context, name string) ([]string, error) {
	dom, err := d.l.DomainLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("lookup domain %s: %w", name, err)
	}
	ifaces, err := d.l.DomainInterfaceAddresses(dom, uint32(libvirt.DomainInterfaceAddressesSrcAgent), 0)
	if err != nil {
		return nil, fmt.Errorf("interface addresses for domain %s: %w", name, err)
	}
	var addrs []string
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
	}
	return addrs, nil
}

// GuestAgentCommand sends a raw qemu-guest-agent JSON-RPC command
// ("guest-ping", "guest-exec", ...) and returns its raw JSON reply.
func (d *Driver) GuestAgentCommand(ctx context.Context, name, command string, timeoutSeconds int32) (string, error) {
	dom, err := d.l.DomainLookupByName(name)
	if err != nil {
		return "", fmt.Errorf("lookup domain %s: %w", name, err)
	}
	result, err := d.l.DomainQemuAgentCommand(dom, command, timeoutSeconds, 0)
	if err != nil {
		return "", fmt.Errorf("guest agent command on %s: %w", name, err)
	}
	return result, nil
}
