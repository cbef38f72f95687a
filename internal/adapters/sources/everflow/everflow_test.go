package everflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
)

// 2025-12-20 and 2025-12-21 at 00:00 UTC
const (
	dec20 = 1766188800
	dec21 = 1766275200
)

func entityRow(date int64, aff, adv int, revenue float64) string {
	return fmt.Sprintf(`{"columns":[
		{"column_type":"affiliate","id":"%d","label":" Aff  %d "},
		{"column_type":"advertiser","id":"%d","label":"Adv"},
		{"column_type":"date","id":"%d","label":""}],
		"reporting":{"total_click":10,"cv":2,"revenue":%v,"payout":1.5,"profit":3,"imp":99}}`, aff, aff, adv, date, revenue)
}

func server(t *testing.T, pages [][]string, total int, bodies *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/networks/reporting/entity/table" || r.Header.Get("X-Eflow-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		*bodies = append(*bodies, body)
		page := int(body["query"].(map[string]any)["page"].(float64))
		rows := "[]"
		if page <= len(pages) {
			rows = "["
			for i, p := range pages[page-1] {
				if i > 0 {
					rows += ","
				}
				rows += p
			}
			rows += "]"
		}
		_, _ = fmt.Fprintf(w, `{"table":%s,"paging":{"page":%d,"total_count":%d}}`, rows, page, total)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOpts(url string) Options {
	o := FromConfig(config.New().Prefix("EVERFLOW_TEST_"))
	o.APIKey, o.BaseURL = "secret", url
	return o
}

func TestFetchFlattensAndNormalizes(t *testing.T) {
	t.Parallel()

	var bodies []map[string]any
	srv := server(t, [][]string{{
		entityRow(dec20, 7, 1, 100),
		entityRow(dec21, 7, 1, 50),
		entityRow(dec21, 7, 1, 75),
	}}, 3, &bodies)

	src := New(testOpts(srv.URL))
	w := cursor.Window{Start: "2025-12-20", End: "2025-12-21"}
	raws, err := src.Fetch(context.Background(), "daily_stats", w)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(raws) != 3 || len(bodies) != 1 {
		t.Fatalf("rows=%d calls=%d", len(raws), len(bodies))
	}
	if bodies[0]["from"] != "2025-12-20" || bodies[0]["to"] != "2025-12-21" || bodies[0]["timezone_id"] != 80.0 {
		t.Fatalf("body=%v", bodies[0])
	}

	res, _ := sources.Find(src, "daily_stats")
	row, err := res.Schema.Apply(raws[0])
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if row["date"] != "2025-12-20" || row["affiliate_id"] != int64(7) || row["advertiser_id"] != int64(1) {
		t.Fatalf("keys: %+v", row)
	}
	if row["affiliate_label"] != "Aff 7" || row["clicks"] != int64(10) || row["conversions"] != int64(2) || row["revenue"] != 100.0 {
		t.Fatalf("values: %+v", row)
	}
	if _, ok := row["imp"]; ok {
		t.Fatalf("unlisted reporting metric leaked")
	}
}

func TestFetchPaginatesUntilTotal(t *testing.T) {
	t.Parallel()

	var bodies []map[string]any
	srv := server(t, [][]string{
		{entityRow(dec20, 1, 1, 1), entityRow(dec20, 2, 1, 1)},
		{entityRow(dec20, 3, 1, 1), entityRow(dec20, 4, 1, 1)},
		{entityRow(dec20, 5, 1, 1)},
	}, 5, &bodies)

	o := testOpts(srv.URL)
	o.PageSize = 2
	raws, err := New(o).Fetch(context.Background(), "daily_stats", cursor.Window{Start: "2025-12-20", End: "2025-12-20"})
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 5 || len(bodies) != 3 {
		t.Fatalf("rows=%d calls=%d", len(raws), len(bodies))
	}
}

func TestAdvertiserFilterReappliedClientSide(t *testing.T) {
	t.Parallel()

	var bodies []map[string]any
	srv := server(t, [][]string{{
		entityRow(dec20, 1, 1, 1),
		entityRow(dec20, 2, 2, 1),
	}}, 2, &bodies)

	o := testOpts(srv.URL)
	adv := int64(1)
	o.AdvertiserID = &adv
	raws, err := New(o).Fetch(context.Background(), "daily_stats", cursor.Window{Start: "2025-12-20", End: "2025-12-20"})
	if err != nil {
		t.Fatal(err)
	}
	if len(raws) != 1 {
		t.Fatalf("rows=%d", len(raws))
	}
	filters := bodies[0]["query"].(map[string]any)["filters"].([]any)
	if len(filters) != 1 {
		t.Fatalf("server filter not sent: %v", filters)
	}
}

func TestUpstreamErrorsPropagate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(testOpts(srv.URL)).Fetch(context.Background(), "daily_stats", cursor.Window{Start: "2025-12-20", End: "2025-12-20"})
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if _, err := New(testOpts(srv.URL)).Fetch(context.Background(), "nope", cursor.Window{}); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("unknown resource err=%v", err)
	}
}

func TestFailedLaterPageReturnsNoRows(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if page := body["query"].(map[string]any)["page"].(float64); page > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = fmt.Fprintf(w, `{"table":[%s,%s],"paging":{"page":1,"total_count":4}}`,
			entityRow(dec20, 1, 1, 1), entityRow(dec20, 2, 1, 1))
	}))
	defer srv.Close()

	o := testOpts(srv.URL)
	o.PageSize = 2
	raws, err := New(o).Fetch(context.Background(), "daily_stats", cursor.Window{Start: "2025-12-20", End: "2025-12-21"})
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if raws != nil || calls.Load() != 2 {
		t.Fatalf("rows=%d calls=%d", len(raws), calls.Load())
	}
}

func TestOptionsDecode(t *testing.T) {
	t.Parallel()

	o := testOpts("https://api.eflow.team")
	o.APIKey = ""
	if err := sources.Decode(Name, nil, &o); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("missing key must be a config error: %v", err)
	}

	o = testOpts("https://api.eflow.team")
	if err := sources.Decode(Name, map[string]any{"advertiser_id": "2", "page_size": 500}, &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.AdvertiserID == nil || *o.AdvertiserID != 2 || o.PageSize != 500 {
		t.Fatalf("opts=%+v", o)
	}
	if err := sources.Decode(Name, map[string]any{"bogus": 1}, &o); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("unknown kwarg must fail: %v", err)
	}
}
