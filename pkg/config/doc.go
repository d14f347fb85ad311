// Package config loads the handful of environment-supplied values a
// wsomgr manager process needs before it can connect to the store:
// its own manager name, the store's connection string, the libvirt
// socket path and the admin listen address. Everything else lives in
// the Config singleton, not the environment.
package config
