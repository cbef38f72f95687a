// Package domain defines the types and ports of the sync service
package domain

import (
	"slices"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	perr "signalroom/internal/platform/errors"
)

// SourceName is the closed set of upstreams the worker knows how to sync
type SourceName string

// Known sources
const (
	Everflow     SourceName = "everflow"
	Redtrack     SourceName = "redtrack"
	S3Exports    SourceName = "s3_exports"
	PostHog      SourceName = "posthog"
	Mautic       SourceName = "mautic"
	GoogleSheets SourceName = "google_sheets"
)

// AllSources lists every SourceName in display order
var AllSources = []SourceName{Everflow, Redtrack, S3Exports, PostHog, Mautic, GoogleSheets}

// ParseSource validates s against the closed set
func ParseSource(s string) (SourceName, error) {
	n := SourceName(s)
	if slices.Contains(AllSources, n) {
		return n, nil
	}
	return "", perr.WithField(perr.InvalidArgf("unknown source %q, available: %v", s, AllSources), "source")
}

// Input is one sync request
type Input struct {
	Source SourceName `json:"source"`
	// Resources restricts the run; empty means every resource
	Resources []string `json:"resources,omitempty"`
	// Override replaces the cursor-derived window of every resource
	Override *cursor.Override `json:"override,omitempty"`
	// Kwargs are per-source options layered over the environment
	Kwargs   map[string]any `json:"kwargs,omitempty"`
	ClientID string         `json:"client_id,omitempty"`
	// DryRun fetches and normalizes without writing or advancing cursors
	DryRun bool `json:"dry_run,omitempty"`
}

// ResourceResult is the outcome of one resource within a run
type ResourceResult struct {
	Resource    string              `json:"resource"`
	Disposition sources.Disposition `json:"disposition"`
	Window      cursor.Window       `json:"window"`
	Fetched     int                 `json:"fetched"`
	Loaded      int                 `json:"loaded"`
	Skipped     int                 `json:"skipped"`
	// Watermark is the stored cursor after the run
	Watermark string `json:"watermark,omitempty"`
	Advanced  bool   `json:"advanced,omitempty"`
}

// Result is the outcome of one run. A failed run carries Err and the
// resources completed before the failure
type Result struct {
	RunID     string           `json:"run_id"`
	Source    SourceName       `json:"source"`
	ClientID  string           `json:"client_id"`
	Resources []ResourceResult `json:"resources"`
	Rows      int              `json:"rows"`
	Skipped   int              `json:"skipped"`
	// Current is true when every resource was already up to date
	Current    bool      `json:"current"`
	Success    bool      `json:"success"`
	DryRun     bool      `json:"dry_run,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Err error `json:"-"`
}

// Fail records err as the run's failure
func (r *Result) Fail(err error) {
	r.Success = false
	r.Err = err
	r.Code = perr.CodeOf(err).String()
	r.Message = perr.Root(err).Error()
}

// Plan is the resolved windows of a run, nothing fetched
type Plan struct {
	Source    SourceName     `json:"source"`
	ClientID  string         `json:"client_id"`
	Resources []PlannedWrite `json:"resources"`
}

// PlannedWrite is one resource's resolved window
type PlannedWrite struct {
	Resource    string              `json:"resource"`
	Disposition sources.Disposition `json:"disposition"`
	Key         []string            `json:"key"`
	Cursor      string              `json:"cursor"`
	Window      cursor.Window       `json:"window"`
}

// Batch is one resource's normalized rows handed to a Destination
type Batch struct {
	Source      SourceName
	Resource    string
	ClientID    string
	Disposition sources.Disposition
	Key         []string
	Rows        []normalize.Row
}
