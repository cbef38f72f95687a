// Package api assembles the worker: every service module, the health probe
// and the metrics endpoint, mounted on one router
package api

import (
	"context"
	stdhttp "net/http"
	"time"

	"signalroom/internal/adapters/notify"
	"signalroom/internal/modkit"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/metrics"
	phttp "signalroom/internal/platform/net/http"
	"signalroom/internal/platform/store"

	orchmod "signalroom/internal/services/orchestrator/module"
	reportsmod "signalroom/internal/services/reports/module"
	schedmod "signalroom/internal/services/scheduler/module"
	syncmod "signalroom/internal/services/sync/module"
)

// Options are the worker options
type Options struct {
	Config config.Conf
	// Store may be nil; every module then runs in memory
	Store *store.Store
	// Send overrides the config-built notification dispatcher
	Send *notify.Dispatcher
}

// Worker holds the wired modules
type Worker struct {
	Sync         *syncmod.Module
	Reports      *reportsmod.Module
	Orchestrator *orchmod.Module
	Scheduler    *schedmod.Module

	store *store.Store
	mods  []modkit.Module
}

// Build wires the modules in dependency order: sync and reports feed the
// orchestrator, which the scheduler drives
func Build(opt Options) (*Worker, error) {
	deps := modkit.FromStore(opt.Store, opt.Config)
	send := opt.Send
	if send == nil {
		send = notify.New(notify.FromConfig(opt.Config))
	}

	sm, err := syncmod.New(deps)
	if err != nil {
		return nil, err
	}
	sp, _ := modkit.PortsAs[syncmod.Ports](sm)
	rm := reportsmod.New(deps, send)
	om := orchmod.New(deps, sp.Runner, rm.Runner(), send)
	scm := schedmod.New(deps, om.Workflows())

	return &Worker{
		Sync:         sm,
		Reports:      rm,
		Orchestrator: om,
		Scheduler:    scm,
		store:        opt.Store,
		mods:         []modkit.Module{sm, rm, om, scm},
	}, nil
}

// Init applies the schemas the modules own
func (w *Worker) Init(ctx context.Context) error {
	if err := w.Sync.Init(ctx); err != nil {
		return err
	}
	return w.Scheduler.EnsureSchema(ctx)
}

// Modules returns the mounted modules in order
func (w *Worker) Modules() []modkit.Module { return w.mods }

// Store returns the opened backends, nil when running in memory
func (w *Worker) Store() *store.Store { return w.store }

// Mount mounts /healthz and /metrics at the root and every module route
// scoped by opts
func (w *Worker) Mount(r phttp.Router, opts ...modkit.Option) []string {
	phttp.GetJSON(r, "/healthz", func(req *stdhttp.Request) (any, error) {
		if w.store != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := w.store.Guard(ctx); err != nil {
				return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "backend unreachable")
			}
		}
		return map[string]any{"status": "ok", "destination": w.Sync.Destination()}, nil
	})
	r.Handle("/metrics", metrics.Handler())
	var names []string
	modkit.Build(opts...).Scoped(r, func(sub phttp.Router) {
		names = modkit.Mount(sub, w.mods...)
	})
	return names
}
