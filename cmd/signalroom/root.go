package main

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"signalroom/internal/core/version"
	"signalroom/internal/platform/config"
	"signalroom/internal/platform/logger"
	"signalroom/internal/platform/store"
	"signalroom/internal/services/api"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app carries what every command shares
type app struct {
	cfg config.Conf
	out io.Writer
	// open connects the configured backends and wires the worker
	open func(ctx context.Context) (*api.Worker, func(), error)
}

func newApp(out io.Writer) *app {
	a := &app{cfg: config.New(), out: out}
	a.open = a.openWorker
	return a
}

func newRoot(a *app) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "signalroom",
		Short:         "Marketing data ingestion worker and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			logger.Init(logger.FromEnv())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before anything else")

	root.AddCommand(
		a.syncCmd(),
		a.triggerCmd(),
		a.schedulesCmd(),
		a.reportCmd(),
		a.workerCmd(),
		a.sourcesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build identity",
			RunE: func(*cobra.Command, []string) error {
				return printJSON(a.out, version.Info("signalroom"))
			},
		},
	)
	return root
}

func (a *app) openWorker(ctx context.Context) (*api.Worker, func(), error) {
	l := logger.Get()
	st, err := store.Open(ctx, store.FromConfig(a.cfg, "signalroom"), store.WithLogger(*l))
	if err != nil {
		return nil, nil, err
	}
	done := func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}
	w, err := api.Build(api.Options{Config: a.cfg, Store: st})
	if err != nil {
		done()
		return nil, nil, err
	}
	if err := w.Init(ctx); err != nil {
		done()
		return nil, nil, err
	}
	return w, done, nil
}
