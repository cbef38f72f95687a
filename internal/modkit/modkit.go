package modkit

import (
	phttp "signalroom/internal/platform/net/http"
)

// Module is the common surface of service modules
type Module interface {
	// Name returns the module name used in logs
	Name() string
	// MountRoutes mounts HTTP routes; modules without routes leave it empty
	MountRoutes(r phttp.Router)
	// Ports returns the module's port set for cross wiring
	Ports() any
}

// PortsAs type asserts a module's ports
func PortsAs[T any](m Module) (T, bool) {
	p, ok := m.Ports().(T)
	return p, ok
}

// Mount mounts every module in order and returns their names
func Mount(r phttp.Router, mods ...Module) []string {
	names := make([]string, 0, len(mods))
	for _, m := range mods {
		m.MountRoutes(r)
		names = append(names, m.Name())
	}
	return names
}
