package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	orchdom "signalroom/internal/services/orchestrator/domain"
	"signalroom/internal/services/scheduler/domain"
	schedsvc "signalroom/internal/services/scheduler/service"
	"signalroom/internal/services/sync/catalog"
	syncdom "signalroom/internal/services/sync/domain"

	"github.com/jedib0t/go-pretty/v6/table"
)

const stamp = "2006-01-02 15:04 UTC"

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSync(out io.Writer, o orchdom.SyncOutcome) {
	fmt.Fprintf(out, "workflow %s  run %s  %s after %d attempt(s)\n", o.WorkflowID, o.RunID, o.State, o.Attempts)
	if o.Result != nil && len(o.Result.Resources) > 0 {
		t := newTable(out, table.Row{"Resource", "Disposition", "Window", "Fetched", "Loaded", "Skipped", "Watermark"})
		for _, r := range o.Result.Resources {
			span := r.Window.Start + " .. " + r.Window.End
			if r.Window.Current {
				span = "current"
			}
			t.AppendRow(table.Row{r.Resource, r.Disposition, span, r.Fetched, r.Loaded, r.Skipped, r.Watermark})
		}
		t.AppendFooter(table.Row{"", "", "total", "", o.Result.Rows, o.Result.Skipped, ""})
		t.Render()
	}
	if o.Error != "" {
		fmt.Fprintf(out, "error [%s]: %s\n", o.Code, o.Error)
	}
}

func printPlan(out io.Writer, p syncdom.Plan) {
	fmt.Fprintf(out, "plan for %s (client %s)\n", p.Source, p.ClientID)
	t := newTable(out, table.Row{"Resource", "Disposition", "Key", "Cursor", "Start", "End", "Watermark"})
	for _, r := range p.Resources {
		start, end := r.Window.Start, r.Window.End
		if r.Window.Current {
			start, end = "current", ""
		}
		t.AppendRow(table.Row{r.Resource, r.Disposition, strings.Join(r.Key, ","), r.Cursor, start, end, r.Window.Watermark})
	}
	t.Render()
}

func printSchedules(out io.Writer, ss []domain.Schedule, active []schedsvc.Entry) {
	next := map[string]string{}
	for _, e := range active {
		next[e.Schedule.ID] = e.Next.UTC().Format(stamp)
	}
	t := newTable(out, table.Row{"ID", "Kind", "Cron", "Target", "Paused", "Next"})
	for _, s := range ss {
		target := strings.Join(s.Sources, ",")
		if s.Kind == domain.KindReport {
			target = s.Report
		}
		t.AppendRow(table.Row{s.ID, s.Kind, s.Cron, target, s.Paused, next[s.ID]})
	}
	t.Render()
}

func printSources(out io.Writer, ds []catalog.Description, clients []syncdom.Client) {
	t := newTable(out, table.Row{"Source", "Ready", "Resource", "Disposition", "Key", "Cursor"})
	for _, d := range ds {
		if !d.Ready || len(d.Resources) == 0 {
			t.AppendRow(table.Row{d.Source, d.Ready, d.Problem, "", "", ""})
			continue
		}
		for i, r := range d.Resources {
			name := d.Source
			if i > 0 {
				name = ""
			}
			t.AppendRow(table.Row{name, d.Ready, r.Name, r.Disposition, strings.Join(r.Key, ","), r.Cursor})
		}
	}
	t.Render()

	c := newTable(out, table.Row{"Client", "Name"})
	for _, cl := range clients {
		c.AppendRow(table.Row{cl.ID, cl.Name})
	}
	c.Render()
}
