// Package posthog reads events, feature flags and experiments from the
// PostHog project API
package posthog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/adapters/sources/httpx"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	"signalroom/internal/platform/logger"
)

// Name is the source name
const Name = "posthog"

// Options configures the client
type Options struct {
	APIKey    string        `mapstructure:"api_key" validate:"required"`
	ProjectID string        `mapstructure:"project_id" validate:"required"`
	Host      string        `mapstructure:"host" validate:"required,url"`
	PageSize  int           `mapstructure:"page_size" validate:"min=1,max=1000"`
	MaxPages  int           `mapstructure:"max_pages" validate:"min=1"`
	Lookback  time.Duration `mapstructure:"lookback" validate:"min=0"`

	HTTP  *http.Client                               `mapstructure:"-"`
	Sleep func(context.Context, time.Duration) error `mapstructure:"-"`
}

// FromConfig reads POSTHOG_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("POSTHOG_")
	return Options{
		APIKey:    c.MayString("API_KEY", ""),
		ProjectID: c.MayString("PROJECT_ID", ""),
		Host:      c.MayString("HOST", "https://us.posthog.com"),
		PageSize:  c.MayInt("PAGE_SIZE", 100),
		MaxPages:  c.MayInt("MAX_PAGES", 10000),
		Lookback:  c.MayDuration("LOOKBACK", 7*24*time.Hour),
	}
}

// Source is the posthog client
type Source struct {
	opts Options
	http *httpx.Client
}

// New builds the source
func New(opts Options) *Source {
	return &Source{
		opts: opts,
		http: httpx.New(httpx.Options{
			Name:    Name,
			BaseURL: opts.Host,
			Header:  http.Header{"Authorization": {"Bearer " + opts.APIKey}},
			HTTP:    opts.HTTP,
			Sleep:   opts.Sleep,
		}),
	}
}

// Name satisfies sources.Source
func (s *Source) Name() string { return Name }

var (
	events = normalize.Schema{
		Fields: []normalize.Field{
			{Name: "uuid", Aliases: []string{"id"}, Kind: normalize.KindString},
			{Name: "event", Kind: normalize.KindString},
			{Name: "distinct_id", Kind: normalize.KindString},
			{Name: "timestamp", Kind: normalize.KindTimestamp},
			{Name: "properties", Kind: normalize.KindRaw},
			{Name: "elements_chain", Kind: normalize.KindRaw},
		},
		Keys: []string{"uuid"},
	}
	flags = normalize.Schema{
		Fields: []normalize.Field{
			{Name: "id", Kind: normalize.KindRaw},
			{Name: "key", Kind: normalize.KindString},
			{Name: "name", Kind: normalize.KindString, Default: ""},
			{Name: "active", Kind: normalize.KindRaw},
		},
		Keys:        []string{"id"},
		Passthrough: true,
	}
	experiments = normalize.Schema{
		Fields: []normalize.Field{
			{Name: "id", Kind: normalize.KindRaw},
			{Name: "name", Kind: normalize.KindString, Default: ""},
			{Name: "feature_flag_key", Kind: normalize.KindString, Default: ""},
			{Name: "start_date", Kind: normalize.KindRaw},
			{Name: "end_date", Kind: normalize.KindRaw},
		},
		Keys:        []string{"id"},
		Passthrough: true,
	}
)

// Resources satisfies sources.Source
func (s *Source) Resources() []sources.Resource {
	return []sources.Resource{
		{
			Name:        "events",
			Disposition: sources.Append,
			Key:         events.Keys,
			Schema:      events,
			Cursor:      cursor.Policy{Kind: cursor.KindTimestamp, Field: "timestamp", Lookback: s.opts.Lookback},
		},
		{Name: "feature_flags", Disposition: sources.Replace, Key: flags.Keys, Schema: flags},
		{Name: "experiments", Disposition: sources.Merge, Key: experiments.Keys, Schema: experiments},
	}
}

// Fetch satisfies sources.Source
func (s *Source) Fetch(ctx context.Context, resource string, w cursor.Window) ([]normalize.RawRow, error) {
	base := fmt.Sprintf("/api/projects/%s/%s", url.PathEscape(s.opts.ProjectID), resource)
	q := url.Values{"limit": {fmt.Sprint(s.opts.PageSize)}}
	switch resource {
	case "events":
		q.Set("after", w.Start)
		if w.End != "" {
			q.Set("before", w.End)
		}
	case "feature_flags", "experiments":
	default:
		return nil, sources.UnknownResource(Name, resource)
	}
	return s.paged(ctx, resource, httpx.Get(base, q))
}

type page struct {
	Next    string `json:"next"`
	Results []any  `json:"results"`
}

// paged follows next links until an empty page, no link, or MaxPages
func (s *Source) paged(ctx context.Context, resource string, req httpx.Request) ([]normalize.RawRow, error) {
	var out []normalize.RawRow
	for n := 0; n < s.opts.MaxPages; n++ {
		var p page
		if err := s.http.JSON(ctx, req, &p); err != nil {
			return nil, err
		}
		out = append(out, httpx.Objects(p.Results)...)
		if len(p.Results) == 0 || p.Next == "" {
			break
		}
		req = httpx.Get(p.Next, nil)
	}
	logger.C(ctx).Info().Str("resource", resource).Int("rows", len(out)).Msg("posthog fetch complete")
	return out, nil
}
