// Package domain defines report definitions and their registry
package domain

import (
	"maps"
	"slices"
	"time"

	"signalroom/internal/adapters/notify"
	perr "signalroom/internal/platform/errors"
)

// Report is one renderable summary
type Report struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Query names an embedded SQL file; empty means the caller supplies data
	Query string `json:"query,omitempty"`
	// Args lists the params bound to $1..$n of Query, in order
	Args []string `json:"args,omitempty"`
	// Templates maps a channel to its template file
	Templates map[notify.Channel]string `json:"templates"`
	// Schedule is a cron spec in UTC, informational
	Schedule string         `json:"schedule,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	// Zero is the data rendered when the query finds nothing
	Zero func(params map[string]any) map[string]any `json:"-"`
}

// Channels lists the channels the report has templates for
func (r Report) Channels() []notify.Channel {
	out := slices.Collect(maps.Keys(r.Templates))
	slices.Sort(out)
	return out
}

// Template returns the template file for channel
func (r Report) Template(ch notify.Channel) (string, error) {
	t, ok := r.Templates[ch]
	if !ok {
		return "", perr.WithField(perr.InvalidArgf("report %q has no %s template", r.Name, ch), "channel")
	}
	return t, nil
}

// Merge layers overrides on the report's default params
func (r Report) Merge(overrides map[string]any) map[string]any {
	out := maps.Clone(r.Params)
	if out == nil {
		out = map[string]any{}
	}
	maps.Copy(out, overrides)
	return out
}

// Registry is a fixed set of reports built at construction
type Registry struct {
	reports map[string]Report
}

// NewRegistry builds a registry; a duplicate name panics
func NewRegistry(rs ...Report) *Registry {
	reg := &Registry{reports: make(map[string]Report, len(rs))}
	for _, r := range rs {
		if _, dup := reg.reports[r.Name]; dup {
			panic("reports: duplicate report " + r.Name)
		}
		reg.reports[r.Name] = r
	}
	return reg
}

// Get returns the named report
func (g *Registry) Get(name string) (Report, error) {
	r, ok := g.reports[name]
	if !ok {
		return Report{}, perr.WithField(perr.NotFoundf("report %q not found, available: %v", name, g.Names()), "report")
	}
	return r, nil
}

// Names lists report names sorted
func (g *Registry) Names() []string {
	return slices.Sorted(maps.Keys(g.reports))
}

// All returns every report sorted by name
func (g *Registry) All() []Report {
	out := make([]Report, 0, len(g.reports))
	for _, n := range g.Names() {
		out = append(out, g.reports[n])
	}
	return out
}

// Default is the shipped report set
func Default() *Registry {
	return NewRegistry(
		Report{
			Name:        "daily_ccw",
			Description: "Daily CCW performance summary with affiliate breakdown",
			Query:       "daily_ccw.sql",
			Args:        []string{"date", "advertiser_id"},
			Templates: map[notify.Channel]string{
				notify.Slack: "daily_ccw.slack.tmpl",
				notify.Email: "daily_ccw.email.html",
				notify.SMS:   "daily_ccw.sms.tmpl",
			},
			Schedule: "0 12 * * *",
			Params:   map[string]any{"advertiser_id": 1},
			Zero:     zeroCCW,
		},
		Report{
			Name:        "alert",
			Description: "Generic alert notification for errors and warnings",
			Templates: map[notify.Channel]string{
				notify.Slack: "alert.slack.tmpl",
				notify.Email: "alert.email.html",
				notify.SMS:   "alert.sms.tmpl",
			},
			Params: map[string]any{
				"level":   "error",
				"title":   "Alert",
				"message": "",
				"details": map[string]any{},
				"source":  "signalroom",
			},
		},
		Report{
			Name:        "test_sync",
			Description: "Sync totals per source and resource, no business figures",
			Query:       "test_sync.sql",
			Args:        []string{"date"},
			Templates:   map[notify.Channel]string{notify.Slack: "test_sync.slack.tmpl"},
			Schedule:    "0 12 * * *",
			Zero: func(p map[string]any) map[string]any {
				return map[string]any{"report_date": p["date"], "total_rows": 0, "sources": []any{}}
			},
		},
	)
}

func zeroCCW(p map[string]any) map[string]any {
	return map[string]any{
		"report_date":          p["date"],
		"total_conversions":    0,
		"total_cost":           0,
		"overall_cpa":          0,
		"internal_conversions": 0,
		"internal_cost":        0,
		"internal_cpa":         0,
		"external_conversions": 0,
		"external_cost":        0,
		"external_cpa":         0,
		"top_affiliates":       []any{},
	}
}

// Alert is the data of the alert report
type Alert struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Level     string         `json:"level" validate:"omitempty,oneof=error warning info"`
	Details   map[string]any `json:"details,omitempty"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// Data renders a as the alert report's params
func (a Alert) Data() map[string]any {
	d := map[string]any{
		"title":     a.Title,
		"message":   a.Message,
		"level":     a.Level,
		"details":   a.Details,
		"source":    a.Source,
		"timestamp": a.Timestamp.UTC().Format(time.RFC3339),
	}
	if a.Level == "" {
		d["level"] = "error"
	}
	if a.Source == "" {
		d["source"] = "signalroom"
	}
	if a.Details == nil {
		d["details"] = map[string]any{}
	}
	return d
}
