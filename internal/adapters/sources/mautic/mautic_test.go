package mautic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
)

type fake struct {
	tokens atomic.Int32
	srv    *httptest.Server
}

func newFake(t *testing.T) *fake {
	t.Helper()
	f := &fake{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v2/token" {
			_ = r.ParseForm()
			if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_secret") != "shh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			f.tokens.Add(1)
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/contacts":
			if q.Get("search") != "dateModified:>=2026-01-01 00:00:00" {
				t.Errorf("search=%q", q.Get("search"))
			}
			if q.Get("start") == "0" {
				_, _ = w.Write([]byte(`{"total":3,"contacts":{"10":{"id":10,"dateModified":"2026-01-02T00:00:00+00:00","fields":{"all":{}}},"2":{"id":2,"dateModified":"2026-01-03T00:00:00+00:00"}}}`))
				return
			}
			_, _ = w.Write([]byte(`{"total":3,"contacts":[{"id":11,"dateModified":"2026-01-01T05:00:00+00:00"}]}`))
		case "/api/emails":
			_, _ = w.Write([]byte(`{"total":1,"emails":[{"id":5,"name":"Welcome","sentCount":3}]}`))
		case "/api/stats/email_stats":
			_, _ = w.Write([]byte(`{"total":"1","stats":[{"id":"77","email_id":"5","lead_id":"2","date_sent":"2026-01-02 10:00:00","is_read":"1"}]}`))
		case "/api/campaigns":
			_, _ = w.Write([]byte(`{"total":0,"campaigns":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func testSource(f *fake) *Source {
	o := FromConfig(config.New().Prefix("MAUTIC_TEST_"))
	o.BaseURL, o.ClientID, o.ClientSecret, o.PageSize = f.srv.URL, "cid", "shh", 2
	return New(o)
}

func TestContactsPaginateAndCacheToken(t *testing.T) {
	t.Parallel()

	f := newFake(t)
	src := testSource(f)
	ctx := context.Background()

	raws, err := src.Fetch(ctx, "contacts", cursor.Window{Start: "2026-01-01T00:00:00.000000Z"})
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 3 {
		t.Fatalf("raws=%d", len(raws))
	}
	// object form is ordered by numeric id
	if normalize.Int(raws[0]["id"]) != 2 || normalize.Int(raws[1]["id"]) != 10 {
		t.Fatalf("order: %v %v", raws[0]["id"], raws[1]["id"])
	}

	res, _ := sources.Find(src, "contacts")
	out := res.Schema.Batch(raws, normalize.NewStamp("713", nil))
	if got := normalize.Max(out.Rows, res.Cursor.Field); got != "2026-01-03T00:00:00.000000Z" {
		t.Fatalf("max dateModified=%q", got)
	}

	if _, err := src.Fetch(ctx, "emails", cursor.Window{}); err != nil {
		t.Fatal(err)
	}
	if f.tokens.Load() != 1 {
		t.Fatalf("token fetched %d times", f.tokens.Load())
	}
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	t.Parallel()

	f := newFake(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := FromConfig(config.New().Prefix("MAUTIC_TEST_"))
	o.BaseURL, o.ClientID, o.ClientSecret = f.srv.URL, "cid", "shh"
	o.Now = func() time.Time { return now }
	src := New(o)

	ctx := context.Background()
	_, _ = src.Fetch(ctx, "campaigns", cursor.Window{})
	now = now.Add(30 * time.Minute)
	_, _ = src.Fetch(ctx, "campaigns", cursor.Window{})
	now = now.Add(time.Hour)
	_, _ = src.Fetch(ctx, "campaigns", cursor.Window{})
	if f.tokens.Load() != 2 {
		t.Fatalf("tokens=%d", f.tokens.Load())
	}
}

func TestEmailStats(t *testing.T) {
	t.Parallel()

	src := testSource(newFake(t))
	raws, err := src.Fetch(context.Background(), "email_stats", cursor.Window{})
	if err != nil || len(raws) != 1 {
		t.Fatalf("raws=%d err=%v", len(raws), err)
	}
	res, _ := sources.Find(src, "email_stats")
	row, err := res.Schema.Apply(raws[0])
	if err != nil {
		t.Fatal(err)
	}
	if res.Disposition != sources.Append || row["id"] != int64(77) || row["is_read"] != int64(1) || row["date_sent"] != "2026-01-02T10:00:00.000000Z" {
		t.Fatalf("row=%+v", row)
	}
}

func TestBadCredentialsAreTerminal(t *testing.T) {
	t.Parallel()

	f := newFake(t)
	o := FromConfig(config.New().Prefix("MAUTIC_TEST_"))
	o.BaseURL, o.ClientID, o.ClientSecret = f.srv.URL, "cid", "wrong"
	_, err := New(o).Fetch(context.Background(), "contacts", cursor.Window{})
	if !perr.IsCode(err, perr.ErrorCodeUnauthorized) || perr.Retryable(err) {
		t.Fatalf("err=%v", err)
	}
}
