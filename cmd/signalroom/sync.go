package main

import (
	"signalroom/internal/modkit"
	perr "signalroom/internal/platform/errors"
	orchdom "signalroom/internal/services/orchestrator/domain"
	syncdom "signalroom/internal/services/sync/domain"
	syncmod "signalroom/internal/services/sync/module"

	"github.com/spf13/cobra"
)

func (a *app) syncCmd() *cobra.Command {
	var (
		in   orchdom.SyncInput
		plan bool
	)
	cmd := &cobra.Command{
		Use:   "sync <source>",
		Short: "Run one source sync in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := syncdom.ParseSource(args[0]); err != nil {
				return err
			}
			in.Source = args[0]
			w, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if plan {
				ports, _ := modkit.PortsAs[syncmod.Ports](w.Sync)
				p, err := ports.Runner.Plan(cmd.Context(), in.Task())
				if err != nil {
					return err
				}
				printPlan(a.out, p)
				return nil
			}

			out, err := w.Orchestrator.Workflows().SyncWorkflow(cmd.Context(), in)
			printSync(a.out, out)
			if err != nil {
				return err
			}
			if !out.Succeeded() {
				return perr.Newf(perr.ErrorCodeUnknown, "sync %s finished %s", in.Source, out.State)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&in.Resources, "resources", nil, "resources to sync, default all")
	f.StringVar(&in.Start, "start", "", "window start, overrides the cursor")
	f.StringVar(&in.End, "end", "", "window end, overrides the cursor")
	f.BoolVar(&in.DryRun, "dry-run", false, "fetch and normalize without writing or advancing cursors")
	f.BoolVar(&plan, "plan", false, "print the resolved windows and exit")
	f.StringVar(&in.ClientID, "client", "", "client id rows are tagged with")
	f.BoolVar(&in.NotifyOnSuccess, "notify-success", false, "send a notification when the sync succeeds")
	return cmd
}
