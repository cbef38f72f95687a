// Package domain defines workflow inputs and outcomes
package domain

import (
	"signalroom/internal/adapters/notify"
	"signalroom/internal/core/cursor"
	"signalroom/internal/services/orchestrator/durable"
	reportsvc "signalroom/internal/services/reports/service"
	syncdom "signalroom/internal/services/sync/domain"
)

// Workflow names
const (
	WorkflowSync   = "sync"
	WorkflowReport = "report"
	WorkflowSweep  = "sweep"
)

// SyncInput starts one sync workflow
type SyncInput struct {
	Source    string         `json:"source" validate:"required"`
	Resources []string       `json:"resources,omitempty"`
	Start     string         `json:"start,omitempty"`
	End       string         `json:"end,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Kwargs    map[string]any `json:"kwargs,omitempty"`
	// NotifyOnFailure defaults to true
	NotifyOnFailure *bool          `json:"notify_on_failure,omitempty"`
	NotifyOnSuccess bool           `json:"notify_on_success,omitempty"`
	Channel         notify.Channel `json:"channel,omitempty" validate:"omitempty,oneof=slack email sms"`
	Recipient       string         `json:"recipient,omitempty"`
	// WorkflowID overrides the identity; default sync-{source}-manual
	WorkflowID string `json:"workflow_id,omitempty"`
}

// ID returns the workflow identity
func (in SyncInput) ID() string {
	if in.WorkflowID != "" {
		return in.WorkflowID
	}
	return "sync-" + in.Source + "-manual"
}

// NotifyFailure resolves the failure notification default
func (in SyncInput) NotifyFailure() bool {
	return in.NotifyOnFailure == nil || *in.NotifyOnFailure
}

// Task converts the input to a sync task input
func (in SyncInput) Task() syncdom.Input {
	out := syncdom.Input{
		Source:    syncdom.SourceName(in.Source),
		Resources: in.Resources,
		Kwargs:    in.Kwargs,
		ClientID:  in.ClientID,
		DryRun:    in.DryRun,
	}
	if in.Start != "" || in.End != "" {
		out.Override = &cursor.Override{Start: in.Start, End: in.End}
	}
	return out
}

// SyncOutcome is the final state of a sync workflow
type SyncOutcome struct {
	WorkflowID string          `json:"workflow_id"`
	RunID      string          `json:"run_id"`
	Source     string          `json:"source"`
	State      durable.State   `json:"state"`
	Attempts   int             `json:"attempts"`
	Result     *syncdom.Result `json:"result,omitempty"`
	Notified   bool            `json:"notified"`
	Code       string          `json:"code,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Succeeded reports a successful workflow
func (o SyncOutcome) Succeeded() bool { return o.State == durable.Succeeded }

// Rows is the number of rows the final attempt loaded
func (o SyncOutcome) Rows() int {
	if o.Result == nil {
		return 0
	}
	return o.Result.Rows
}

// ReportInput starts one report workflow
type ReportInput struct {
	reportsvc.Request
	WorkflowID string `json:"workflow_id,omitempty"`
}

// ID returns the workflow identity; default report-{name}-manual
func (in ReportInput) ID() string {
	if in.WorkflowID != "" {
		return in.WorkflowID
	}
	return "report-" + in.Report + "-manual"
}

// ReportOutcome is the final state of a report workflow
type ReportOutcome struct {
	WorkflowID string            `json:"workflow_id"`
	RunID      string            `json:"run_id"`
	State      durable.State     `json:"state"`
	Attempts   int               `json:"attempts"`
	Output     *reportsvc.Output `json:"output,omitempty"`
	Code       string            `json:"code,omitempty"`
	Error      string            `json:"error,omitempty"`
}
