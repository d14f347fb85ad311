// Package guestagent implements vmreconciler.ImageProvisioner and
// vmreconciler.GuestProvisioner against a real hypervisor: disk cloning
// plus domain-XML rendering in ImageCloner, and post-boot bring-up
// (guest agent ping, re-IP, reachability, service setup) driven entirely
// over the QEMU guest agent channel in Provisioner. Neither type talks
// to a guest over the network until WaitReachable confirms it has one.
package guestagent
