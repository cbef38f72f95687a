// Package mautic reads contacts, emails, campaigns and email stats from a
// self-hosted Mautic instance over the v3 REST API
package mautic

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/adapters/sources/httpx"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
)

// Name is the source name
const Name = "mautic"

// Options configures the client
type Options struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	ClientID     string        `mapstructure:"client_id" validate:"required"`
	ClientSecret string        `mapstructure:"client_secret" validate:"required"`
	PageSize     int           `mapstructure:"page_size" validate:"min=1,max=1000"`
	Lookback     time.Duration `mapstructure:"lookback" validate:"min=0"`

	HTTP  *http.Client                               `mapstructure:"-"`
	Sleep func(context.Context, time.Duration) error `mapstructure:"-"`
	Now   func() time.Time                           `mapstructure:"-"`
}

// FromConfig reads MAUTIC_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("MAUTIC_")
	return Options{
		BaseURL:      c.MayString("BASE_URL", ""),
		ClientID:     c.MayString("CLIENT_ID", ""),
		ClientSecret: c.MayString("CLIENT_SECRET", ""),
		PageSize:     c.MayInt("PAGE_SIZE", 100),
		Lookback:     c.MayDuration("LOOKBACK", 30*24*time.Hour),
	}
}

// Source is the mautic client
type Source struct {
	opts Options
	http *httpx.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// New builds the source
func New(opts Options) *Source {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Source{
		opts: opts,
		now:  now,
		http: httpx.New(httpx.Options{
			Name:    Name,
			BaseURL: opts.BaseURL,
			HTTP:    opts.HTTP,
			Sleep:   opts.Sleep,
		}),
	}
}

// Name satisfies sources.Source
func (s *Source) Name() string { return Name }

var (
	contacts = normalize.Schema{
		Fields: []normalize.Field{
			{Name: "id", Kind: normalize.KindInt},
			{Name: "dateAdded", Kind: normalize.KindTimestamp},
			{Name: "dateModified", Kind: normalize.KindTimestamp},
			{Name: "points", Kind: normalize.KindInt},
			{Name: "fields", Kind: normalize.KindRaw},
			{Name: "tags", Kind: normalize.KindRaw},
		},
		Keys: []string{"id"},
	}
	entity = normalize.Schema{
		Fields:      []normalize.Field{{Name: "id", Kind: normalize.KindInt}, {Name: "name", Kind: normalize.KindString, Default: ""}},
		Keys:        []string{"id"},
		Passthrough: true,
	}
	stats = normalize.Schema{
		Fields: []normalize.Field{
			{Name: "id", Kind: normalize.KindInt},
			{Name: "email_id", Kind: normalize.KindInt},
			{Name: "lead_id", Kind: normalize.KindInt},
			{Name: "date_sent", Kind: normalize.KindTimestamp},
			{Name: "is_read", Kind: normalize.KindInt},
			{Name: "date_read", Kind: normalize.KindRaw},
		},
		Keys:        []string{"id"},
		Passthrough: true,
	}
)

// Resources satisfies sources.Source
func (s *Source) Resources() []sources.Resource {
	return []sources.Resource{
		{
			Name:        "contacts",
			Disposition: sources.Merge,
			Key:         contacts.Keys,
			Schema:      contacts,
			Cursor:      cursor.Policy{Kind: cursor.KindTimestamp, Field: "dateModified", Lookback: s.opts.Lookback},
		},
		{Name: "emails", Disposition: sources.Merge, Key: entity.Keys, Schema: entity},
		{Name: "campaigns", Disposition: sources.Merge, Key: entity.Keys, Schema: entity},
		{Name: "email_stats", Disposition: sources.Append, Key: stats.Keys, Schema: stats},
	}
}

// Fetch satisfies sources.Source
func (s *Source) Fetch(ctx context.Context, resource string, w cursor.Window) ([]normalize.RawRow, error) {
	switch resource {
	case "contacts":
		q := url.Values{"orderBy": {"dateModified"}, "orderByDir": {"asc"}}
		if w.Start != "" {
			q.Set("search", "dateModified:>="+searchTime(w.Start))
		}
		return s.paginate(ctx, "contacts", "contacts", q)
	case "emails", "campaigns":
		return s.paginate(ctx, resource, resource, nil)
	case "email_stats":
		return s.paginate(ctx, "stats/email_stats", "stats", nil)
	default:
		return nil, sources.UnknownResource(Name, resource)
	}
}

// paginate walks start/limit pages of endpoint until total is reached or a
// page comes back empty. Entities arrive under key as an id-keyed object or a list
func (s *Source) paginate(ctx context.Context, endpoint, key string, q url.Values) ([]normalize.RawRow, error) {
	tok, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = url.Values{}
	}
	auth := http.Header{"Authorization": {"Bearer " + tok}}

	var out []normalize.RawRow
	for start := 0; ; start += s.opts.PageSize {
		q.Set("start", fmt.Sprint(start))
		q.Set("limit", fmt.Sprint(s.opts.PageSize))
		req := httpx.Get("/api/"+endpoint, q)
		req.Header = auth

		var payload map[string]any
		if err := s.http.JSON(ctx, req, &payload); err != nil {
			return nil, err
		}
		items := entities(payload[key])
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
		if total := normalize.Int(payload["total"]); int64(start+s.opts.PageSize) >= total {
			break
		}
	}
	logger.C(ctx).Info().Str("endpoint", endpoint).Int("rows", len(out)).Msg("mautic fetch complete")
	return out, nil
}

// entities accepts both the id-keyed object form and the list form
func entities(v any) []normalize.RawRow {
	switch x := v.(type) {
	case []any:
		return httpx.Objects(x)
	case map[string]any:
		out := make([]normalize.RawRow, 0, len(x))
		for _, id := range sortedKeys(x) {
			if m, ok := x[id].(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached client_credentials token, refreshing it a
// minute before expiry
func (s *Source) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	var tr tokenResp
	err := s.http.JSON(ctx, httpx.Request{
		Method: http.MethodPost,
		Path:   "/oauth/v2/token",
		Form: url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {s.opts.ClientID},
			"client_secret": {s.opts.ClientSecret},
		},
	}, &tr)
	if err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", perr.Newf(perr.ErrorCodeUnauthorized, "mautic: token response without access_token")
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.token = tr.AccessToken
	s.expires = s.now().Add(ttl - time.Minute)
	return s.token, nil
}

// searchTime renders a watermark in the form Mautic's search filter accepts
func searchTime(v string) string {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC().Format(time.DateTime)
	}
	return strings.TrimSpace(v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}
