// Package redtrack reads daily spend per traffic source from the Redtrack
// report endpoint, one request per day
package redtrack

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/adapters/sources/httpx"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"golang.org/x/time/rate"
)

// Name is the source name
const Name = "redtrack"

// Options configures the client
type Options struct {
	APIKey   string        `mapstructure:"api_key" validate:"required"`
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	Timezone string        `mapstructure:"timezone" validate:"required,timezone"`
	Group    string        `mapstructure:"group" validate:"required"`
	Pace     time.Duration `mapstructure:"pace" validate:"min=0"`
	End      string        `mapstructure:"end" validate:"omitempty,oneof=yesterday today"`

	HTTP  *http.Client                               `mapstructure:"-"`
	Sleep func(context.Context, time.Duration) error `mapstructure:"-"`
}

// FromConfig reads REDTRACK_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("REDTRACK_")
	return Options{
		APIKey:   c.MayString("API_KEY", ""),
		BaseURL:  c.MayString("BASE_URL", "https://api.redtrack.io"),
		Timezone: c.MayString("TIMEZONE", "America/New_York"),
		Group:    c.MayString("GROUP", "source"),
		Pace:     c.MayDuration("PACE", time.Second),
		End:      c.MayEnum("END", "yesterday", "yesterday", "today"),
	}
}

// Source is the redtrack client
type Source struct {
	opts Options
	http *httpx.Client
}

// New builds the source. Days are paced at one request per Pace
func New(opts Options) *Source {
	var lim *rate.Limiter
	if opts.Pace > 0 {
		lim = rate.NewLimiter(rate.Every(opts.Pace), 1)
	}
	return &Source{
		opts: opts,
		http: httpx.New(httpx.Options{
			Name:    Name,
			BaseURL: opts.BaseURL,
			Header:  http.Header{"X-API-KEY": {opts.APIKey}},
			Limiter: lim,
			HTTP:    opts.HTTP,
			Sleep:   opts.Sleep,
		}),
	}
}

// Name satisfies sources.Source
func (s *Source) Name() string { return Name }

var dailySpend = normalize.Schema{
	Fields: []normalize.Field{
		{Name: "date", Aliases: []string{"Date", "day"}, Kind: normalize.KindDate},
		{Name: "source_id", Aliases: []string{"sourceId", "traffic_source_id", "trafficSourceId"}, Kind: normalize.KindString},
		{Name: "source_name", Aliases: []string{"source", "traffic_source", "trafficSource", "sourceName"}, Kind: normalize.KindString, Default: ""},
		{Name: "source_alias", Aliases: []string{"sourceAlias", "traffic_source_alias"}, Kind: normalize.KindString, Default: ""},
		{Name: "clicks", Aliases: []string{"total_clicks"}, Kind: normalize.KindInt},
		{Name: "conversions", Kind: normalize.KindInt},
		{Name: "cost", Aliases: []string{"spend", "total_cost"}, Kind: normalize.KindFloat},
	},
	Keys: []string{"date", "source_id"},
}

// Resources satisfies sources.Source
func (s *Source) Resources() []sources.Resource {
	return []sources.Resource{{
		Name:        "daily_spend",
		Disposition: sources.Merge,
		Key:         dailySpend.Keys,
		Schema:      dailySpend,
		Cursor: cursor.Policy{
			Kind:  cursor.KindDate,
			Field: "date",
			End:   cursor.ParseEnd(s.opts.End),
		},
	}}
}

// Fetch satisfies sources.Source. Each day of w is requested separately so
// rows carry day granularity; a row without a date takes its request's day
func (s *Source) Fetch(ctx context.Context, resource string, w cursor.Window) ([]normalize.RawRow, error) {
	if resource != "daily_spend" {
		return nil, sources.UnknownResource(Name, resource)
	}
	start, err := time.Parse(time.DateOnly, w.Start)
	if err != nil {
		return nil, perr.InvalidArgf("redtrack: bad window start %q", w.Start)
	}
	end, err := time.Parse(time.DateOnly, w.End)
	if err != nil {
		return nil, perr.InvalidArgf("redtrack: bad window end %q", w.End)
	}

	log := logger.C(ctx)
	var out []normalize.RawRow
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format(time.DateOnly)
		q := url.Values{
			"api_key":   {s.opts.APIKey},
			"date_from": {day},
			"date_to":   {day},
			"timezone":  {s.opts.Timezone},
			"group":     {s.opts.Group},
			"sortby":    {"clicks"},
			"direction": {"desc"},
		}
		var payload any
		if err := s.http.JSON(ctx, httpx.Get("/report", q), &payload); err != nil {
			return nil, err
		}
		rows := httpx.ExtractList(Name, payload)
		for _, r := range rows {
			if _, ok := normalize.Probe(r, "date", "Date", "day"); !ok {
				r["date"] = day
			}
			out = append(out, r)
		}
		log.Debug().Str("day", day).Int("rows", len(rows)).Msg("redtrack day fetched")
	}
	return out, nil
}
