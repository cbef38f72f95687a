// Package module wires the workflow engine and its HTTP surface
package module

import (
	"errors"
	stdhttp "net/http"
	"strconv"

	"signalroom/internal/adapters/notify"
	"signalroom/internal/modkit"
	perr "signalroom/internal/platform/errors"
	phttp "signalroom/internal/platform/net/http"
	"signalroom/internal/services/orchestrator/domain"
	"signalroom/internal/services/orchestrator/durable"
	"signalroom/internal/services/orchestrator/service"
	syncdom "signalroom/internal/services/sync/domain"

	"github.com/go-chi/chi/v5"
)

// Ports exposed by the orchestrator module
type Ports struct {
	Workflows *service.Workflows
}

// Module implements the orchestrator module
type Module struct {
	ports Ports
}

// New builds the engine over redis identities when connected, in-process otherwise
func New(deps modkit.Deps, sync syncdom.RunnerPort, reports service.ReportRunner, send notify.Sender, opts ...durable.Option) *Module {
	var lock durable.Locker
	if deps.Redis != nil {
		lock = durable.NewRedisLocker(deps.Redis, deps.Cfg.MayString("WORKER_LOCK_PREFIX", ""))
	}
	eng := durable.New(lock, opts...)
	wf := service.New(eng, sync, reports, send, service.FromConfig(deps.Cfg))
	deps.Log.Info().Bool("redis_lock", lock != nil).Msg("orchestrator ready")
	return &Module{ports: Ports{Workflows: wf}}
}

// Workflows returns the workflow runner
func (m *Module) Workflows() *service.Workflows { return m.ports.Workflows }

// Name satisfies modkit.Module
func (m *Module) Name() string { return "orchestrator" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

func wait(r *stdhttp.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	return ok
}

// MountRoutes satisfies modkit.Module. Starts answer 202 unless ?wait=true
func (m *Module) MountRoutes(r phttp.Router) {
	wf := m.ports.Workflows

	phttp.PostJSON(r, "/v1/workflows/sync", func(req *stdhttp.Request, in domain.SyncInput) phttp.Response {
		if !wait(req) {
			x, err := wf.StartSync(req.Context(), in)
			if err != nil {
				return phttp.Error(err)
			}
			return phttp.Accepted(x)
		}
		out, err := wf.SyncWorkflow(req.Context(), in)
		if err != nil && (out.RunID == "" || errors.Is(err, durable.ErrAlreadyRunning)) {
			return phttp.Error(err)
		}
		return phttp.OK(out)
	})

	phttp.PostJSON(r, "/v1/workflows/report", func(req *stdhttp.Request, in domain.ReportInput) phttp.Response {
		if !wait(req) {
			x, err := wf.StartReport(req.Context(), in)
			if err != nil {
				return phttp.Error(err)
			}
			return phttp.Accepted(x)
		}
		out, err := wf.ReportWorkflow(req.Context(), in)
		if err != nil && (out.RunID == "" || errors.Is(err, durable.ErrAlreadyRunning)) {
			return phttp.Error(err)
		}
		return phttp.OK(out)
	})

	phttp.GetJSON(r, "/v1/workflows", func(*stdhttp.Request) (any, error) {
		return wf.Engine().Registry().List(), nil
	})

	phttp.GetJSON(r, "/v1/workflows/{id}", func(req *stdhttp.Request) (any, error) {
		id := chi.URLParam(req, "id")
		x, ok := wf.Engine().Registry().Get(id)
		if !ok {
			return nil, perr.WithField(perr.NotFoundf("workflow %q not found", id), "id")
		}
		return x, nil
	})
}
