// Package sheets snapshots Google Sheets tabs through the public CSV export
package sheets

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/adapters/sources/httpx"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
)

// Name is the source name
const Name = "google_sheets"

// Metadata columns
const (
	ColSheet = "_sheet"
	ColRowID = "_row_id"
)

// Options configures the source
type Options struct {
	SpreadsheetID string   `mapstructure:"spreadsheet_id" validate:"required"`
	Sheets        []string `mapstructure:"sheets" validate:"min=1,dive,required"`
	BaseURL       string   `mapstructure:"base_url" validate:"required,url"`

	HTTP *http.Client `mapstructure:"-"`
}

// FromConfig reads SHEETS_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SHEETS_")
	return Options{
		SpreadsheetID: c.MayString("SPREADSHEET_ID", ""),
		Sheets:        c.MayCSV("NAMES", nil),
		BaseURL:       c.MayString("BASE_URL", "https://docs.google.com"),
	}
}

// Source reads each configured tab as one replace-mode resource
type Source struct {
	opts   Options
	http   *httpx.Client
	byName map[string]string // resource -> sheet title
}

// New builds the source
func New(opts Options) *Source {
	s := &Source{
		opts:   opts,
		byName: map[string]string{},
		http: httpx.New(httpx.Options{
			Name:    Name,
			BaseURL: opts.BaseURL,
			Header:  http.Header{"Accept": {"text/csv"}},
			HTTP:    opts.HTTP,
		}),
	}
	for _, sh := range opts.Sheets {
		if name := sources.TableName(sh); name != "" {
			if _, dup := s.byName[name]; !dup {
				s.byName[name] = sh
			}
		}
	}
	return s
}

// Name satisfies sources.Source
func (s *Source) Name() string { return Name }

var tab = normalize.Schema{
	Fields: []normalize.Field{
		{Name: ColSheet, Kind: normalize.KindRaw},
		{Name: ColRowID, Kind: normalize.KindInt},
	},
	Keys:        []string{ColSheet, ColRowID},
	Passthrough: true,
}

// Resources satisfies sources.Source
func (s *Source) Resources() []sources.Resource {
	out := make([]sources.Resource, 0, len(s.byName))
	seen := map[string]bool{}
	for _, sh := range s.opts.Sheets {
		name := sources.TableName(sh)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, sources.Resource{
			Name:        name,
			Disposition: sources.Replace,
			Key:         tab.Keys,
			Schema:      tab,
		})
	}
	return out
}

// Fetch satisfies sources.Source. The window is ignored; every fetch is a
// full snapshot of the tab
func (s *Source) Fetch(ctx context.Context, resource string, _ cursor.Window) ([]normalize.RawRow, error) {
	sheet, ok := s.byName[resource]
	if !ok {
		return nil, sources.UnknownResource(Name, resource)
	}
	body, err := s.http.Do(ctx, httpx.Get(
		"/spreadsheets/d/"+url.PathEscape(s.opts.SpreadsheetID)+"/gviz/tq",
		url.Values{"tqx": {"out:csv"}, "sheet": {sheet}},
	))
	if err != nil {
		return nil, err
	}
	records, err := sources.ReadCSV(bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "google_sheets: parse %q", sheet)
	}
	rows := sources.Records(records, ColRowID)
	for _, r := range rows {
		r[ColSheet] = sheet
	}
	logger.C(ctx).Debug().Str("sheet", sheet).Int("rows", len(rows)).Msg("sheet exported")
	return rows, nil
}
