// Package service runs multi-source sweeps and the calendar that fires them
package service

import (
	"context"
	"fmt"

	"signalroom/internal/adapters/notify"
	"signalroom/internal/core/retry"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
	orchdom "signalroom/internal/services/orchestrator/domain"
	"signalroom/internal/services/orchestrator/durable"
	reportsvc "signalroom/internal/services/reports/service"
	"signalroom/internal/services/scheduler/domain"
)

// Workflows is the orchestrator surface the scheduler drives
type Workflows interface {
	SyncWorkflow(ctx context.Context, in orchdom.SyncInput) (orchdom.SyncOutcome, error)
	ReportWorkflow(ctx context.Context, in orchdom.ReportInput) (orchdom.ReportOutcome, error)
	Notify(ctx context.Context, workflow string, ch notify.Channel, recipient, msg string) bool
	Engine() *durable.Engine
}

// SweepInput syncs several sources one after another
type SweepInput struct {
	// ID is the sweep's workflow identity; children use {ID}-{source}
	ID              string   `json:"id"`
	Sources         []string `json:"sources"`
	ClientID        string   `json:"client_id,omitempty"`
	NotifyOnFailure bool     `json:"notify_on_failure"`
}

// SweepOutcome maps each source to its workflow outcome
type SweepOutcome struct {
	ID       string                         `json:"id"`
	Results  map[string]orchdom.SyncOutcome `json:"results"`
	Failed   []string                       `json:"failed,omitempty"`
	Notified bool                           `json:"notified"`
}

// Succeeded reports whether every source succeeded
func (o SweepOutcome) Succeeded() bool { return len(o.Failed) == 0 }

// Sweep runs the sources in caller order under the sweep identity. A
// failing source does not stop the sweep; failures are reported in one
// consolidated notification when asked. ErrAlreadyRunning means an earlier
// sweep with the same identity is still going
func Sweep(ctx context.Context, wf Workflows, in SweepInput) (SweepOutcome, error) {
	if in.ID == "" {
		in.ID = "sweep-manual"
	}
	if len(in.Sources) == 0 {
		return SweepOutcome{ID: in.ID}, perr.WithField(perr.InvalidArgf("sweep needs at least one source"), "sources")
	}
	x, err := wf.Engine().Execute(ctx, durable.Options{
		ID:       in.ID,
		Workflow: orchdom.WorkflowSweep,
		Policy:   retry.Once(),
	}, func(ctx context.Context, _ int) (any, error) {
		return sweep(ctx, wf, in), nil
	})
	if err != nil {
		return SweepOutcome{ID: in.ID}, err
	}
	out, _ := x.Result.(SweepOutcome)
	return out, nil
}

func sweep(ctx context.Context, wf Workflows, in SweepInput) SweepOutcome {
	log := logger.C(ctx).With().Str("sweep", in.ID).Logger()
	out := SweepOutcome{ID: in.ID, Results: make(map[string]orchdom.SyncOutcome, len(in.Sources))}
	quiet := false
	for _, src := range in.Sources {
		res, err := wf.SyncWorkflow(ctx, orchdom.SyncInput{
			Source:          src,
			ClientID:        in.ClientID,
			WorkflowID:      in.ID + "-" + src,
			NotifyOnFailure: &quiet,
		})
		out.Results[src] = res
		if err != nil || !res.Succeeded() {
			out.Failed = append(out.Failed, src)
			log.Warn().Err(err).Str("source", src).Msg("sweep source failed")
			continue
		}
		log.Info().Str("source", src).Int("rows", res.Rows()).Msg("sweep source done")
	}
	if len(out.Failed) > 0 && in.NotifyOnFailure {
		out.Notified = wf.Notify(ctx, orchdom.WorkflowSweep, "", "",
			fmt.Sprintf("Scheduled sync completed with failures: %v", out.Failed))
	}
	log.Info().Int("sources", len(in.Sources)).Strs("failed", out.Failed).Msg("sweep finished")
	return out
}

// Fire runs one schedule to completion
func Fire(ctx context.Context, wf Workflows, s domain.Schedule) error {
	if s.Kind == domain.KindReport {
		_, err := wf.ReportWorkflow(ctx, orchdom.ReportInput{
			Request:    reportsvc.Request{Report: s.Report, Channel: s.Channel, Send: s.Send},
			WorkflowID: s.ID,
		})
		return err
	}
	out, err := Sweep(ctx, wf, SweepInput{ID: s.ID, Sources: s.Sources, ClientID: s.ClientID, NotifyOnFailure: s.NotifyFailure()})
	if err == nil && !out.Succeeded() {
		return perr.Unavailablef("sources failed: %v", out.Failed)
	}
	return err
}
