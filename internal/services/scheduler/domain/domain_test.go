package domain

import (
	"errors"
	"strings"
	"testing"

	perr "signalroom/internal/platform/errors"
)

func fieldOf(err error) string {
	var pe *perr.Error
	if errors.As(err, &pe) {
		return pe.Field()
	}
	return ""
}

const sample = `
schedules:
  - id: hourly
    kind: sync
    cron: "15 0-4,12-23 * * *"
    sources: [everflow, redtrack]
  - id: ccw
    kind: report
    cron: "@daily"
    report: daily_ccw
    channel: slack
    send: true
`

func TestParse(t *testing.T) {
	t.Parallel()

	ss, err := ParseBytes([]byte(sample))
	if err != nil || len(ss) != 2 {
		t.Fatalf("parse: %v %v", ss, err)
	}
	if !ss[0].NotifyFailure() || ss[1].Kind != KindReport || !ss[1].Send {
		t.Fatalf("schedules = %+v", ss)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, doc, field string
		code             perr.ErrorCode
	}{
		{"unknown field", "schedules:\n  - id: a\n    kind: sync\n    cron: '@hourly'\n    sources: [everflow]\n    colour: red\n", "", perr.ErrorCodeValidation},
		{"bad cron", "schedules:\n  - id: a\n    kind: sync\n    cron: 'every hour'\n    sources: [everflow]\n", "cron", perr.ErrorCodeValidation},
		{"no sources", "schedules:\n  - id: a\n    kind: sync\n    cron: '@hourly'\n", "sources", perr.ErrorCodeValidation},
		{"no report", "schedules:\n  - id: a\n    kind: report\n    cron: '@hourly'\n", "report", perr.ErrorCodeValidation},
		{"unknown source", "schedules:\n  - id: a\n    kind: sync\n    cron: '@hourly'\n    sources: [facebook]\n", "source", perr.ErrorCodeInvalidArgument},
		{"duplicate", "schedules:\n  - {id: a, kind: sync, cron: '@hourly', sources: [everflow]}\n  - {id: a, kind: sync, cron: '@daily', sources: [redtrack]}\n", "id", perr.ErrorCodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tc.doc))
			if !perr.IsCode(err, tc.code) {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
			if tc.field != "" && fieldOf(err) != tc.field {
				t.Fatalf("field = %q, want %q", fieldOf(err), tc.field)
			}
		})
	}
}

func TestMergeOverridesById(t *testing.T) {
	t.Parallel()

	defs := []Schedule{{ID: "b", Cron: "@hourly"}, {ID: "a", Cron: "@daily"}}
	got := Merge(defs, []Schedule{{ID: "b", Cron: "@weekly"}, {ID: "c", Cron: "@monthly"}})
	if len(got) != 3 || got[0].ID != "a" || got[1].Cron != "@weekly" || got[2].ID != "c" {
		t.Fatalf("merge = %+v", got)
	}
	if defs[0].Cron != "@hourly" {
		t.Fatalf("defaults mutated")
	}
}
