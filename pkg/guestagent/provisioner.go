package guestagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cuemby/wsomgr/pkg/types"
)

// Driver is the subset of *hypervisor.Driver this package needs: a
// single raw qemu-guest-agent JSON-RPC round trip.
type Driver interface {
	GuestAgentCommand(ctx context.Context, name, command string, timeoutSeconds int32) (string, error)
}

// Provisioner drives post-boot guest configuration entirely over the
// QEMU guest agent channel: no SSH keys or network path to the guest
// are required beyond the virtio-serial console libvirt already wires
// up in the domain XML.
type Provisioner struct {
	driver       Driver
	pollInterval time.Duration
	commandTimeout int32
	reachablePort  int
}

// NewProvisioner builds a Provisioner. reachablePort is the TCP port
// WaitReachable dials to confirm the guest's network stack is up after
// re-IP (22, since cloud images always run sshd).
func NewProvisioner(driver Driver) *Provisioner {
	return &Provisioner{
		driver:         driver,
		pollInterval:   500 * time.Millisecond,
		commandTimeout: 5,
		reachablePort:  22,
	}
}

// WaitGuestAgent polls guest-ping until the agent responds or ctx ends.
func (p *Provisioner) WaitGuestAgent(ctx context.Context, vmName string) error {
	for {
		_, err := p.driver.GuestAgentCommand(ctx, vmName, `{"execute":"guest-ping"}`, p.commandTimeout)
		if err == nil {
			return nil
		}
		if !sleepOrDone(ctx, p.pollInterval) {
			return fmt.Errorf("wait guest agent on %s: %w", vmName, ctx.Err())
		}
	}
}

// ReIP drops the DHCP-leased address and assigns the planned static
// address via a shell one-liner executed through guest-exec.
func (p *Provisioner) ReIP(ctx context.Context, vmName, dhcpAddr string, target netip.Addr) error {
	script := fmt.Sprintf(
		"ip addr flush dev eth0 && ip addr add %s/24 dev eth0 && ip link set eth0 up",
		target.String(),
	)
	return p.guestExec(ctx, vmName, script)
}

// WaitReachable polls a TCP dial to target until it succeeds or ctx ends.
func (p *Provisioner) WaitReachable(ctx context.Context, target netip.Addr) error {
	addr := net.JoinHostPort(target.String(), fmt.Sprint(p.reachablePort))
	for {
		conn, err := (&net.Dialer{Timeout: p.pollInterval}).DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if !sleepOrDone(ctx, p.pollInterval) {
			return fmt.Errorf("wait reachable %s: %w", target, ctx.Err())
		}
	}
}

// SetupWorker writes the environment file read by the wsomgr-heart
// systemd unit (this worker's own outbound heart process), pointing it
// at the owning manager's address and carrying the worker's token, then
// restarts that unit.
func (p *Provisioner) SetupWorker(ctx context.Context, w types.Worker, managerAddress string) error {
	script := fmt.Sprintf(
		`cat >/etc/wsomgr-heart.env <<'EOF'
WSOMGR_MANAGER_ADDRESS=%s
WSOMGR_TOKEN=%s
EOF
systemctl restart wsomgr-heart`,
		managerAddress, w.Token,
	)
	return p.guestExec(ctx, w.Name(), script)
}

// SetupLoadBalancer (re)renders the reverse-proxy upstream config for
// lb's current worker set and reloads the proxy in place. Called both
// on initial create and whenever the upstream set changes.
func (p *Provisioner) SetupLoadBalancer(ctx context.Context, lb types.LoadBalancer) error {
	var upstreams string
	for _, u := range lb.Upstream {
		upstreams += fmt.Sprintf("    server %s:%d;\n", u.Address, u.Port)
	}
	script := fmt.Sprintf(
		`cat >/etc/nginx/conf.d/upstream.conf <<'EOF'
upstream backend {
%s}
EOF
nginx -s reload`,
		upstreams,
	)
	return p.guestExec(ctx, lb.Name(), script)
}

// guestExec runs script through the guest's shell via guest-exec,
// base64-encoding it so shell metacharacters survive JSON transport.
func (p *Provisioner) guestExec(ctx context.Context, vmName, script string) error {
	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	cmd := guestExecCommand{Execute: "guest-exec", Arguments: guestExecArgs{
		Path:          "/bin/sh",
		Arg:           []string{"-c", fmt.Sprintf("echo %s | base64 -d | sh", encoded)},
		CaptureOutput: true,
	}}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode guest-exec command: %w", err)
	}
	if _, err := p.driver.GuestAgentCommand(ctx, vmName, string(payload), p.commandTimeout); err != nil {
		return fmt.Errorf("guest-exec on %s: %w", vmName, err)
	}
	return nil
}

type guestExecCommand struct {
	Execute   string        `json:"execute"`
	Arguments guestExecArgs `json:"arguments"`
}

type guestExecArgs struct {
	Path          string   `json:"path"`
	Arg           []string `json:"arg"`
	CaptureOutput bool     `json:"capture-output"`
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
