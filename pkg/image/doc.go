/*
Package image validates cloned qcow2 disk images before a domain is
defined against them, using github.com/lima-vm/go-qcow2reader to parse
the qcow2 header without needing libvirt or qemu-img installed.
*/
package image
