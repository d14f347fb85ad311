/*
Package hypervisor is a thin wrapper around github.com/digitalocean/go-libvirt
exposing the RPCs pkg/vmreconciler needs (ListAllDomains, CreateXML,
LookupDomainByName, Destroy, DomainInterfaceAddresses) plus
GuestAgentCommand for pkg/guestagent.

Every call is a blocking libvirt RPC over a UNIX socket. pkg/vmreconciler
runs each VM action in its own goroutine (an errgroup with no
concurrency limit) rather than on a request-serving goroutine, the same
offload discipline the teacher's pkg/runtime gives containerd calls.
*/
package hypervisor
