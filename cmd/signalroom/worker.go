package main

import (
	"context"
	"time"

	"signalroom/internal/modkit"
	"signalroom/internal/modkit/repokit"
	"signalroom/internal/platform/logger"
	phttp "signalroom/internal/platform/net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

func (a *app) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve the worker API and fire calendar schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			w, done, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			if st := w.Store(); st != nil {
				repokit.MustGuard(ctx, st)
			}
			wcfg := a.cfg.Prefix("WORKER_")
			srv := phttp.NewServer(wcfg)
			mods := w.Mount(srv.Router(), modkit.WithPrefix(wcfg.MayString("PREFIX", "")), modkit.WithMiddlewares(chimw.NoCache))
			log := logger.Named("worker")
			log.Info().Strs("modules", mods).Str("addr", srv.Addr()).Msg("worker starting")

			errc := make(chan error, 2)
			go func() { errc <- srv.Run(ctx) }()
			running := 1
			if wcfg.MayBool("SCHEDULER", true) {
				running++
				go func() { errc <- w.Scheduler.Scheduler().Run(ctx, wcfg.MayDuration("SCHEDULE_RELOAD", time.Minute)) }()
			}

			var first error
			for ; running > 0; running-- {
				if err := <-errc; err != nil && first == nil {
					first = err
				}
				cancel()
			}
			w.Orchestrator.Workflows().Engine().Drain()
			log.Info().Msg("worker stopped")
			return first
		},
	}
}
