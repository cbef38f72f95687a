package main

import (
	"os"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/services/scheduler/domain"

	"github.com/spf13/cobra"
)

func (a *app) schedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Manage calendar schedules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <file.yaml>",
		Short: "Validate and store the schedules in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "open %s", args[0])
			}
			defer func() { _ = f.Close() }()
			ss, err := domain.Parse(f)
			if err != nil {
				return err
			}
			w, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			if err := w.Scheduler.Store().Apply(cmd.Context(), ss...); err != nil {
				return err
			}
			printSchedules(a.out, ss, nil)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List default and stored schedules with their next fire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			if _, err := w.Scheduler.Scheduler().Reload(cmd.Context()); err != nil {
				return err
			}
			stored, err := w.Scheduler.Store().List(cmd.Context())
			if err != nil {
				return err
			}
			printSchedules(a.out, domain.Merge(w.Scheduler.Defaults(), stored), w.Scheduler.Scheduler().Entries())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return w.Scheduler.Store().Delete(cmd.Context(), args[0])
		},
	})
	return cmd
}
