package main

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"signalroom/internal/adapters/sources/httpx"
	perr "signalroom/internal/platform/errors"
	orchdom "signalroom/internal/services/orchestrator/domain"
	"signalroom/internal/services/orchestrator/durable"

	"github.com/spf13/cobra"
)

// envelope is the worker's JSON response shape
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (a *app) worker() *httpx.Client {
	return httpx.New(httpx.Options{
		Name:    "worker",
		BaseURL: a.cfg.MayString("WORKER_URL", "http://localhost:4000"),
		Timeout: a.cfg.MayDuration("WORKER_CLIENT_TIMEOUT", 35*time.Minute),
	})
}

func (a *app) triggerCmd() *cobra.Command {
	var (
		in   orchdom.SyncInput
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "trigger <source>",
		Short: "Start a sync workflow on the running worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Source = args[0]
			return a.trigger(cmd.Context(), in, wait)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&wait, "wait", false, "wait for the workflow to finish")
	f.BoolVar(&in.NotifyOnSuccess, "notify-success", false, "send a notification when the sync succeeds")
	f.StringSliceVar(&in.Resources, "resources", nil, "resources to sync, default all")
	f.StringVar(&in.ClientID, "client", "", "client id rows are tagged with")
	return cmd
}

func (a *app) trigger(ctx context.Context, in orchdom.SyncInput, wait bool) error {
	var q url.Values
	if wait {
		q = url.Values{"wait": {"true"}}
	}
	req := httpx.Post("/v1/workflows/sync", in)
	req.Query = q
	var env envelope
	if err := a.worker().JSON(ctx, req, &env); err != nil {
		return err
	}
	if !wait {
		var x durable.Execution
		if err := json.Unmarshal(env.Data, &x); err != nil {
			return perr.Wrap(err, perr.ErrorCodeJSON, "worker response")
		}
		return printJSON(a.out, x)
	}
	var out orchdom.SyncOutcome
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "worker response")
	}
	printSync(a.out, out)
	if !out.Succeeded() {
		return perr.Newf(perr.ErrorCodeUnknown, "workflow %s finished %s", out.WorkflowID, out.State)
	}
	return nil
}
