package guestagent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/wsomgr/pkg/image"
)

// ImageCloner clones a service's base qcow2 image by copying the file
// and validating the copy's header, and renders the minimal libvirt
// domain XML a new VM is defined from.
type ImageCloner struct{}

// CloneImage copies imgsPath/serviceImage to imgsPath/vmName.qcow2 and
// validates the result is a well-formed qcow2 image before returning.
func (ImageCloner) CloneImage(ctx context.Context, imgsPath, serviceImage, vmName string) (string, error) {
	src := filepath.Join(imgsPath, serviceImage)
	dst := filepath.Join(imgsPath, vmName+".qcow2")

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open base image %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", dst, err)
	}

	if _, err := image.Inspect(dst); err != nil {
		return "", fmt.Errorf("validate cloned image %s: %w", dst, err)
	}
	return dst, nil
}

// RemoveImage deletes the cloned disk imgsPath/vmName.qcow2. It is not
// an error if the file is already gone.
func (ImageCloner) RemoveImage(ctx context.Context, imgsPath, vmName string) error {
	path := filepath.Join(imgsPath, vmName+".qcow2")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// DomainXML renders the libvirt domain definition for a new VM: one
// disk backed by diskPath, one NIC on the default NAT network, and the
// QEMU guest agent channel vmreconciler depends on for bring-up.
func (ImageCloner) DomainXML(vmName, diskPath string) string {
	return fmt.Sprintf(domainXMLTemplate, vmName, diskPath)
}

const domainXMLTemplate = `<domain type='kvm'>
  <name>%s</name>
  <memory unit='MiB'>512</memory>
  <vcpu>1</vcpu>
  <os>
    <type arch='x86_64'>hvm</type>
  </os>
  <devices>
    <disk type='file' device='disk'>
      <driver name='qemu' type='qcow2'/>
      <source file='%s'/>
      <target dev='vda' bus='virtio'/>
    </disk>
    <interface type='network'>
      <source network='default'/>
      <model type='virtio'/>
    </interface>
    <channel type='unix'>
      <target type='virtio' name='org.qemu.guest_agent.0'/>
    </channel>
    <console type='pty'/>
  </devices>
</domain>
`
