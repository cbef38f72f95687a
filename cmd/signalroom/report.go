package main

import (
	"fmt"

	"signalroom/internal/adapters/notify"
	reportsvc "signalroom/internal/services/reports/service"

	"github.com/spf13/cobra"
)

func (a *app) reportCmd() *cobra.Command {
	var (
		req     reportsvc.Request
		channel string
	)
	cmd := &cobra.Command{
		Use:   "report <name>",
		Short: "Render a report and optionally send it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := notify.ParseChannel(channel)
			if err != nil {
				return err
			}
			req.Report, req.Channel = args[0], ch
			w, done, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			out, err := w.Reports.Runner().Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, out.Content)
			if err == nil && out.Sent {
				_, err = fmt.Fprintf(a.out, "\nsent via %s\n", out.Channel)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&channel, "channel", "slack", "slack, email or sms")
	f.BoolVar(&req.Send, "send", false, "deliver the rendered report")
	f.StringVar(&req.Date, "date", "", "report date YYYY-MM-DD, default yesterday")
	f.StringVar(&req.Recipient, "to", "", "recipient override")
	return cmd
}
