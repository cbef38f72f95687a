// Package everflow reads affiliate performance from the Everflow network
// reporting entity table
package everflow

import (
	"context"
	"net/http"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/adapters/sources/httpx"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	"signalroom/internal/platform/logger"
)

// Name is the source name
const Name = "everflow"

// InitialDate is the first-run start of daily_stats
const InitialDate = "2025-12-20"

// Options configures the client. Zero values are filled by FromConfig
type Options struct {
	APIKey       string `mapstructure:"api_key" validate:"required"`
	BaseURL      string `mapstructure:"base_url" validate:"required,url"`
	AdvertiserID *int64 `mapstructure:"advertiser_id"`
	TimezoneID   int    `mapstructure:"timezone_id" validate:"min=0"`
	PageSize     int    `mapstructure:"page_size" validate:"min=1,max=10000"`
	InitialDate  string `mapstructure:"initial_date" validate:"required,isodate"`
	End          string `mapstructure:"end" validate:"omitempty,oneof=yesterday today now"`

	HTTP  *http.Client                               `mapstructure:"-"`
	Sleep func(context.Context, time.Duration) error `mapstructure:"-"`
}

// FromConfig reads EVERFLOW_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("EVERFLOW_")
	o := Options{
		APIKey:      c.MayString("API_KEY", ""),
		BaseURL:     c.MayString("BASE_URL", "https://api.eflow.team"),
		TimezoneID:  c.MayInt("TIMEZONE_ID", 80),
		PageSize:    c.MayInt("PAGE_SIZE", 10000),
		InitialDate: c.MayString("INITIAL_DATE", InitialDate),
		End:         c.MayEnum("END", "yesterday", "yesterday", "today", "now"),
	}
	if id := c.MayInt("ADVERTISER_ID", 0); id > 0 {
		v := int64(id)
		o.AdvertiserID = &v
	}
	return o
}

// Source is the everflow client
type Source struct {
	opts Options
	http *httpx.Client
}

// New builds the source; opts must have passed sources.Decode
func New(opts Options) *Source {
	return &Source{
		opts: opts,
		http: httpx.New(httpx.Options{
			Name:    Name,
			BaseURL: opts.BaseURL,
			Header:  http.Header{"X-Eflow-API-Key": {opts.APIKey}},
			HTTP:    opts.HTTP,
			Sleep:   opts.Sleep,
		}),
	}
}

// Name satisfies sources.Source
func (s *Source) Name() string { return Name }

var dailyStats = normalize.Schema{
	Fields: []normalize.Field{
		{Name: "date", Kind: normalize.KindDate},
		{Name: "affiliate_id", Kind: normalize.KindInt},
		{Name: "affiliate_label", Kind: normalize.KindString},
		{Name: "advertiser_id", Kind: normalize.KindInt},
		{Name: "advertiser_label", Kind: normalize.KindString},
		{Name: "clicks", Aliases: []string{"total_click"}, Kind: normalize.KindInt},
		{Name: "conversions", Aliases: []string{"cv"}, Kind: normalize.KindInt},
		{Name: "revenue", Kind: normalize.KindFloat},
		{Name: "payout", Kind: normalize.KindFloat},
		{Name: "profit", Kind: normalize.KindFloat},
	},
	Keys: []string{"date", "affiliate_id", "advertiser_id"},
}

// Resources satisfies sources.Source
func (s *Source) Resources() []sources.Resource {
	return []sources.Resource{{
		Name:        "daily_stats",
		Disposition: sources.Merge,
		Key:         dailyStats.Keys,
		Schema:      dailyStats,
		Cursor: cursor.Policy{
			Kind:    cursor.KindDate,
			Field:   "date",
			Initial: s.opts.InitialDate,
			End:     cursor.ParseEnd(s.opts.End),
		},
	}}
}

type column struct {
	ColumnType string `json:"column_type"`
	ID         any    `json:"id"`
	Label      string `json:"label"`
}

type tableRow struct {
	Columns   []column       `json:"columns"`
	Reporting map[string]any `json:"reporting"`
}

type tableResp struct {
	Table  []tableRow `json:"table"`
	Paging struct {
		Page       int `json:"page"`
		PageSize   int `json:"page_size"`
		TotalCount int `json:"total_count"`
	} `json:"paging"`
}

// Fetch satisfies sources.Source
func (s *Source) Fetch(ctx context.Context, resource string, w cursor.Window) ([]normalize.RawRow, error) {
	if resource != "daily_stats" {
		return nil, sources.UnknownResource(Name, resource)
	}
	log := logger.C(ctx)

	filters := []map[string]any{}
	if s.opts.AdvertiserID != nil {
		filters = append(filters, map[string]any{"advertiser_id": *s.opts.AdvertiserID})
	}

	var out []normalize.RawRow
	seen := 0
	for page := 1; ; page++ {
		body := map[string]any{
			"from":        w.Start,
			"to":          w.End,
			"timezone_id": s.opts.TimezoneID,
			"currency_id": "USD",
			"columns": []map[string]string{
				{"column": "affiliate"},
				{"column": "advertiser"},
				{"column": "date"},
			},
			"query": map[string]any{
				"filters": filters,
				"page":    page,
				"limit":   s.opts.PageSize,
			},
		}
		var resp tableResp
		if err := s.http.JSON(ctx, httpx.Post("/v1/networks/reporting/entity/table", body), &resp); err != nil {
			return nil, err
		}
		seen += len(resp.Table)
		for _, tr := range resp.Table {
			if row, ok := s.flatten(tr); ok {
				out = append(out, row)
			}
		}
		log.Debug().Int("page", page).Int("page_rows", len(resp.Table)).Int("total", resp.Paging.TotalCount).Msg("everflow page")

		if len(resp.Table) < s.opts.PageSize || (resp.Paging.TotalCount > 0 && seen >= resp.Paging.TotalCount) {
			break
		}
	}
	log.Info().Str("start", w.Start).Str("end", w.End).Int("rows", len(out)).Msg("everflow fetch complete")
	return out, nil
}

// flatten turns one entity table row into a flat raw row. Rows outside the
// configured advertiser are dropped even when the server was asked to filter
func (s *Source) flatten(tr tableRow) (normalize.RawRow, bool) {
	row := normalize.RawRow{}
	for _, c := range tr.Columns {
		switch c.ColumnType {
		case "affiliate", "advertiser":
			if c.ID != nil && normalize.String(c.ID) != "" {
				row[c.ColumnType+"_id"] = c.ID
			}
			row[c.ColumnType+"_label"] = c.Label
		case "date":
			if normalize.Int(c.ID) > 0 {
				row["date"] = c.ID
			}
		}
	}
	for k, v := range tr.Reporting {
		switch k {
		case "total_click", "cv", "revenue", "payout", "profit":
			row[k] = v
		}
	}
	if s.opts.AdvertiserID != nil {
		id, ok := row["advertiser_id"]
		if !ok || normalize.Int(id) != *s.opts.AdvertiserID {
			return nil, false
		}
	}
	return row, true
}
