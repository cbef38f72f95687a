// Package module wires the report runner
package module

import (
	stdhttp "net/http"

	"signalroom/internal/adapters/notify"
	"signalroom/internal/modkit"
	phttp "signalroom/internal/platform/net/http"
	"signalroom/internal/services/reports/domain"
	"signalroom/internal/services/reports/render"
	"signalroom/internal/services/reports/repo"
	"signalroom/internal/services/reports/service"
)

// Ports exposed by the reports module
type Ports struct {
	Runner *service.Runner
}

// Module implements the reports module
type Module struct {
	ports Ports
}

// New builds the runner over postgres when connected. send may be nil to
// build the dispatcher from config
func New(deps modkit.Deps, send service.Notifier, opts ...service.Option) *Module {
	var load service.Loader
	if deps.PG != nil {
		load = repo.NewPG(deps.PG)
	}
	if send == nil {
		send = notify.New(notify.FromConfig(deps.Cfg))
	}
	r := service.New(domain.Default(), render.New(), load, send, service.FromConfig(deps.Cfg), opts...)
	return &Module{ports: Ports{Runner: r}}
}

// Runner returns the report runner
func (m *Module) Runner() *service.Runner { return m.ports.Runner }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "reports" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r phttp.Router) {
	phttp.GetJSON(r, "/v1/reports", func(*stdhttp.Request) (any, error) {
		return m.ports.Runner.Registry().All(), nil
	})
}
