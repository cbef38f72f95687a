// Package service implements the sync and report workflows over the durable engine
package service

import (
	"context"
	"errors"
	"fmt"

	"signalroom/internal/adapters/notify"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
	"signalroom/internal/platform/net/http/bind"
	"signalroom/internal/services/orchestrator/domain"
	"signalroom/internal/services/orchestrator/durable"
	reportsvc "signalroom/internal/services/reports/service"
	syncdom "signalroom/internal/services/sync/domain"
)

// ReportRunner renders and sends one report
type ReportRunner interface {
	Run(ctx context.Context, req reportsvc.Request) (reportsvc.Output, error)
}

// Workflows runs sync and report activities through the engine
type Workflows struct {
	eng     *durable.Engine
	sync    syncdom.RunnerPort
	reports ReportRunner
	send    notify.Sender
	opts    Options
}

// New wires the workflows; reports and send may be nil
func New(eng *durable.Engine, sync syncdom.RunnerPort, reports ReportRunner, send notify.Sender, o Options) *Workflows {
	if eng == nil {
		panic("orchestrator: nil engine")
	}
	if sync == nil {
		panic("orchestrator: nil sync runner")
	}
	if o.Channel == "" {
		o.Channel = notify.Slack
	}
	return &Workflows{eng: eng, sync: sync, reports: reports, send: send, opts: o}
}

// Engine exposes the durable engine for status queries
func (w *Workflows) Engine() *durable.Engine { return w.eng }

// SyncWorkflow runs one source to a final state and notifies per input.
// The error is ErrAlreadyRunning when the identity is held, else the
// workflow's failure
func (w *Workflows) SyncWorkflow(ctx context.Context, in domain.SyncInput) (domain.SyncOutcome, error) {
	out := domain.SyncOutcome{WorkflowID: in.ID(), Source: in.Source}
	if err := w.checkSync(in); err != nil {
		out.State, out.Code, out.Error = durable.FailedTerminal, perr.CodeOf(err).String(), perr.Root(err).Error()
		return out, err
	}
	var notified bool
	x, err := w.eng.Execute(ctx, w.syncOptions(in, &notified), w.syncActivity(in))
	if errors.Is(err, durable.ErrAlreadyRunning) {
		out.Code, out.Error = perr.CodeOf(err).String(), perr.Root(err).Error()
		return out, err
	}
	out = syncOutcome(in, x)
	out.Notified = notified
	return out, err
}

// StartSync starts the sync workflow in the background
func (w *Workflows) StartSync(ctx context.Context, in domain.SyncInput) (durable.Execution, error) {
	if err := w.checkSync(in); err != nil {
		return durable.Execution{}, err
	}
	return w.eng.Start(ctx, w.syncOptions(in, nil), w.syncActivity(in))
}

func (w *Workflows) checkSync(in domain.SyncInput) error {
	if err := bind.Validate(in); err != nil {
		return err
	}
	_, err := syncdom.ParseSource(in.Source)
	return err
}

func (w *Workflows) syncOptions(in domain.SyncInput, notified *bool) durable.Options {
	return durable.Options{
		ID:       in.ID(),
		Workflow: domain.WorkflowSync,
		Policy:   w.opts.Policy,
		Timeout:  w.opts.ActivityTimeout,
		Finally: func(ctx context.Context, x durable.Execution) {
			sent := w.notifySync(ctx, in, x)
			if notified != nil {
				*notified = sent
			}
		},
	}
}

func (w *Workflows) syncActivity(in domain.SyncInput) durable.Activity {
	task := in.Task()
	return func(ctx context.Context, _ int) (any, error) {
		res := w.sync.Run(ctx, task)
		if !res.Success {
			return res, res.Err
		}
		return res, nil
	}
}

func syncOutcome(in domain.SyncInput, x durable.Execution) domain.SyncOutcome {
	out := domain.SyncOutcome{
		WorkflowID: x.ID,
		RunID:      x.RunID,
		Source:     in.Source,
		State:      x.State,
		Attempts:   len(x.Attempts),
		Code:       x.Code,
		Error:      x.Error,
	}
	if res, ok := x.Result.(syncdom.Result); ok {
		out.Result = &res
	}
	return out
}

// notifySync sends the failure or success message the input asks for
func (w *Workflows) notifySync(ctx context.Context, in domain.SyncInput, x durable.Execution) bool {
	var msg string
	switch {
	case x.State == durable.FailedTerminal && in.NotifyFailure():
		msg = fmt.Sprintf("Pipeline failed: %s\nError: %s", in.Source, x.Error)
	case x.State == durable.Succeeded && in.NotifyOnSuccess:
		rows := 0
		if res, ok := x.Result.(syncdom.Result); ok {
			rows = res.Rows
		}
		msg = fmt.Sprintf("Pipeline completed: %s\nLoaded %d rows", in.Source, rows)
	default:
		return false
	}
	return w.Notify(ctx, domain.WorkflowSync, in.Channel, in.Recipient, msg)
}

// Notify sends msg with the notification timeout. Failures are logged and
// counted, never returned
func (w *Workflows) Notify(ctx context.Context, workflow string, ch notify.Channel, recipient, msg string) bool {
	if ch == "" {
		ch = w.opts.Channel
	}
	if recipient == "" {
		recipient = w.opts.Recipient
	}
	log := logger.C(ctx).With().Str("workflow", workflow).Str("channel", string(ch)).Logger()
	if w.send == nil {
		log.Warn().Str("message", msg).Msg("no notifier wired, notification dropped")
		return false
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.NotifyTimeout)
	defer cancel()
	if err := w.send.Send(nctx, ch, msg, recipient); err != nil {
		notifyFailures.WithLabelValues(workflow).Inc()
		log.Error().Err(err).Msg("workflow notification failed")
		return false
	}
	return true
}

// ReportWorkflow renders and optionally sends one report under the engine
func (w *Workflows) ReportWorkflow(ctx context.Context, in domain.ReportInput) (domain.ReportOutcome, error) {
	out := domain.ReportOutcome{WorkflowID: in.ID()}
	if w.reports == nil {
		err := perr.Configf("reports are not configured")
		out.State, out.Code, out.Error = durable.FailedTerminal, perr.CodeOf(err).String(), err.Error()
		return out, err
	}
	if err := bind.Validate(in); err != nil {
		out.State, out.Code, out.Error = durable.FailedTerminal, perr.CodeOf(err).String(), perr.Root(err).Error()
		return out, err
	}
	x, err := w.eng.Execute(ctx, w.reportOptions(in), w.reportActivity(in))
	if errors.Is(err, durable.ErrAlreadyRunning) {
		out.Code, out.Error = perr.CodeOf(err).String(), perr.Root(err).Error()
		return out, err
	}
	out = domain.ReportOutcome{
		WorkflowID: x.ID,
		RunID:      x.RunID,
		State:      x.State,
		Attempts:   len(x.Attempts),
		Code:       x.Code,
		Error:      x.Error,
	}
	if o, ok := x.Result.(reportsvc.Output); ok {
		out.Output = &o
	}
	return out, err
}

// StartReport starts the report workflow in the background
func (w *Workflows) StartReport(ctx context.Context, in domain.ReportInput) (durable.Execution, error) {
	if w.reports == nil {
		return durable.Execution{}, perr.Configf("reports are not configured")
	}
	if err := bind.Validate(in); err != nil {
		return durable.Execution{}, err
	}
	return w.eng.Start(ctx, w.reportOptions(in), w.reportActivity(in))
}

func (w *Workflows) reportOptions(in domain.ReportInput) durable.Options {
	return durable.Options{
		ID:       in.ID(),
		Workflow: domain.WorkflowReport,
		Policy:   w.opts.Policy,
		Timeout:  w.opts.ActivityTimeout,
	}
}

func (w *Workflows) reportActivity(in domain.ReportInput) durable.Activity {
	return func(ctx context.Context, _ int) (any, error) {
		out, err := w.reports.Run(ctx, in.Request)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
