package main

import (
	"signalroom/internal/services/sync/catalog"
	syncdom "signalroom/internal/services/sync/domain"

	"github.com/spf13/cobra"
)

func (a *app) sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List sources, their resources and clients",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			printSources(a.out, catalog.New(a.cfg).Describe(), syncdom.Clients())
			return nil
		},
	}
}
