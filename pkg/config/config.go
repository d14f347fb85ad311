package config

import (
	"fmt"
	"os"
)

// RuntimeSettings holds the handful of values a manager process needs
// before it can even reach the store: who it is and where the store
// lives. Everything else (services, address pools, ports) comes from
// the Config singleton once connected. This mirrors the original
// pydantic-settings "Settings" object, which read exactly one value
// (manager_name) from the environment.
type RuntimeSettings struct {
	// ManagerName must match the Name of one entry in the Config
	// singleton's Managers list.
	ManagerName string
	// ConnectionString is a "mongodb://..." DSN naming exactly one host.
	ConnectionString string
	// LibvirtSocket is the path to the local libvirtd RPC socket.
	LibvirtSocket string
	// ListenAddress is the address the admin HTTP/WS surface binds to.
	ListenAddress string
}

// Load reads RuntimeSettings from the environment, applying the same
// defaults the original implementation's single-node deployments used.
func Load() (RuntimeSettings, error) {
	name := os.Getenv("WSOMGR_MANAGER_NAME")
	if name == "" {
		return RuntimeSettings{}, fmt.Errorf("WSOMGR_MANAGER_NAME must be set")
	}

	connStr := os.Getenv("WSOMGR_CONNECTION_STRING")
	if connStr == "" {
		connStr = "mongodb://localhost/wso"
	}

	socket := os.Getenv("WSOMGR_LIBVIRT_SOCKET")
	if socket == "" {
		socket = "/var/run/libvirt/libvirt-sock"
	}

	listen := os.Getenv("WSOMGR_LISTEN_ADDRESS")
	if listen == "" {
		listen = ":8080"
	}

	return RuntimeSettings{
		ManagerName:      name,
		ConnectionString: connStr,
		LibvirtSocket:    socket,
		ListenAddress:    listen,
	}, nil
}
