// Package module wires the sync service to its destination and cursor store
package module

import (
	"context"
	stdhttp "net/http"

	"signalroom/internal/core/cursor"
	"signalroom/internal/modkit"
	perr "signalroom/internal/platform/errors"
	phttp "signalroom/internal/platform/net/http"
	"signalroom/internal/services/sync/catalog"
	"signalroom/internal/services/sync/domain"
	"signalroom/internal/services/sync/repo"
	"signalroom/internal/services/sync/service"
)

// Ports exposed by the sync module
type Ports struct {
	Runner  domain.RunnerPort
	Catalog *catalog.Catalog
}

// Module implements the sync service module
type Module struct {
	deps   modkit.Deps
	ports  Ports
	dest   string
	schema func(context.Context) error
}

// New constructs the sync module. The destination follows Options; a
// requested backend that is not connected is a configuration error
func New(deps modkit.Deps, extra ...service.Option) (*Module, error) {
	opts := FromConfig(deps.Cfg)

	dest := opts.Destination
	if dest == "" {
		switch {
		case deps.PG != nil:
			dest = DestPostgres
		case deps.CH != nil:
			dest = DestClickhouse
		default:
			dest = DestMemory
		}
	}

	m := &Module{deps: deps, dest: dest}
	var (
		writer  domain.Destination
		cursors domain.CursorStore
	)
	switch dest {
	case DestPostgres:
		if deps.PG == nil {
			return nil, perr.Configf("sync destination %q needs SERVICE_PGSQL_URL", dest)
		}
		p := repo.NewPG(deps.PG, opts.StatementTimeout)
		writer, cursors = p, p.Cursors()
		if opts.EnsureSchema {
			m.schema = p.EnsureSchema
		}
	case DestClickhouse:
		if deps.CH == nil {
			return nil, perr.Configf("sync destination %q needs SERVICE_CLICKHOUSE_URL", dest)
		}
		c := repo.NewCH(deps.CH)
		writer, cursors = c, c.Cursors()
		if opts.EnsureSchema {
			m.schema = c.EnsureSchema
		}
	default:
		writer, cursors = repo.NewMemory(), cursor.NewMemory()
	}

	cat := catalog.New(deps.Cfg)
	svcOpts := append([]service.Option{service.WithLocation(opts.DayZone)}, extra...)
	m.ports = Ports{
		Runner:  service.New(cat, writer, cursors, svcOpts...),
		Catalog: cat,
	}
	deps.Log.Info().Str("destination", dest).Msg("sync module ready")
	return m, nil
}

// Init applies the destination schema when configured to
func (m *Module) Init(ctx context.Context) error {
	if m.schema == nil {
		return nil
	}
	return m.schema(ctx)
}

// Destination names the selected write target
func (m *Module) Destination() string { return m.dest }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "sync" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// MountRoutes satisfies modkit.Module
func (m *Module) MountRoutes(r phttp.Router) {
	phttp.GetJSON(r, "/v1/sources", func(*stdhttp.Request) (any, error) {
		return map[string]any{
			"sources":     m.ports.Catalog.Describe(),
			"clients":     domain.Clients(),
			"destination": m.dest,
		}, nil
	})
}
