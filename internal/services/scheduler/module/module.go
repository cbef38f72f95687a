// Package module wires the calendar scheduler and its HTTP surface
package module

import (
	"context"
	stdhttp "net/http"

	"signalroom/internal/modkit"
	phttp "signalroom/internal/platform/net/http"
	"signalroom/internal/services/scheduler/domain"
	"signalroom/internal/services/scheduler/repo"
	"signalroom/internal/services/scheduler/service"

	"github.com/go-chi/chi/v5"
)

// Ports exposed by the scheduler module
type Ports struct {
	Scheduler *service.Scheduler
	Store     domain.Store
}

// Module implements the scheduler module
type Module struct {
	ports    Ports
	defaults []domain.Schedule
	schema   func(context.Context) error
}

// New stores schedules in postgres when connected, in memory otherwise
func New(deps modkit.Deps, wf service.Workflows, opts ...service.Option) *Module {
	m := &Module{defaults: repo.Defaults(), schema: func(context.Context) error { return nil }}
	var st domain.Store = repo.NewMemory()
	if deps.PG != nil {
		pg := repo.NewPG(deps.PG)
		st, m.schema = pg, pg.EnsureSchema
	}
	m.ports = Ports{Scheduler: service.New(wf, st, m.defaults, opts...), Store: st}
	return m
}

// Scheduler returns the calendar
func (m *Module) Scheduler() *service.Scheduler { return m.ports.Scheduler }

// Defaults returns the shipped schedule set
func (m *Module) Defaults() []domain.Schedule { return m.defaults }

// Store returns the schedule store
func (m *Module) Store() domain.Store { return m.ports.Store }

// EnsureSchema creates the schedule table when backed by postgres
func (m *Module) EnsureSchema(ctx context.Context) error { return m.schema(ctx) }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "scheduler" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// listing is the GET /v1/schedules body
type listing struct {
	Schedules []domain.Schedule `json:"schedules"`
	Active    []service.Entry   `json:"active"`
}

// MountRoutes satisfies modkit.Module. Writes reload the calendar
func (m *Module) MountRoutes(r phttp.Router) {
	sch, st := m.ports.Scheduler, m.ports.Store

	phttp.GetJSON(r, "/v1/schedules", func(req *stdhttp.Request) (any, error) {
		stored, err := st.List(req.Context())
		if err != nil {
			return nil, err
		}
		return listing{Schedules: domain.Merge(m.defaults, stored), Active: sch.Entries()}, nil
	})

	phttp.PostJSON(r, "/v1/schedules", func(req *stdhttp.Request, f domain.File) phttp.Response {
		if err := st.Apply(req.Context(), f.Schedules...); err != nil {
			return phttp.Error(err)
		}
		return m.reload(req)
	})

	phttp.PostJSON(r, "/v1/schedules/reload", func(req *stdhttp.Request, _ struct{}) phttp.Response {
		return m.reload(req)
	})

	r.Delete("/v1/schedules/{id}", phttp.Handle(func(req *stdhttp.Request) phttp.Response {
		if err := st.Delete(req.Context(), chi.URLParam(req, "id")); err != nil {
			return phttp.Error(err)
		}
		return m.reload(req)
	}))
}

func (m *Module) reload(req *stdhttp.Request) phttp.Response {
	n, err := m.ports.Scheduler.Reload(req.Context())
	if err != nil {
		return phttp.Error(err)
	}
	return phttp.OK(map[string]int{"active": n})
}
