package module

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signalroom/internal/modkit"
	"signalroom/internal/platform/config"
	phttp "signalroom/internal/platform/net/http"
	syncdom "signalroom/internal/services/sync/domain"

	"github.com/rs/zerolog"
)

type okSync struct{}

func (okSync) Run(_ context.Context, in syncdom.Input) syncdom.Result {
	return syncdom.Result{Source: in.Source, Rows: 2, Success: true}
}

func (okSync) Plan(context.Context, syncdom.Input) (syncdom.Plan, error) { return syncdom.Plan{}, nil }

func serve(t *testing.T) (*phttp.Server, *Module) {
	t.Helper()
	m := New(modkit.Deps{Cfg: config.New().Prefix("ORCHTEST_"), Log: zerolog.Nop()}, okSync{}, nil, nil)
	s := phttp.NewServer(config.New().Prefix("ORCHTEST_WORKER_"))
	m.MountRoutes(s.Router())
	return s, m
}

func call(t *testing.T, s *phttp.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var env struct {
		Code string         `json:"code"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	if env.Data == nil {
		env.Data = map[string]any{"code": env.Code}
	}
	return rec.Code, env.Data
}

func TestSyncRoutes(t *testing.T) {
	t.Parallel()
	s, m := serve(t)

	code, data := call(t, s, stdhttp.MethodPost, "/v1/workflows/sync?wait=true", `{"source":"everflow","notify_on_success":true}`)
	if code != stdhttp.StatusOK || data["state"] != "SUCCEEDED" || data["workflow_id"] != "sync-everflow-manual" {
		t.Fatalf("wait: %d %v", code, data)
	}

	code, data = call(t, s, stdhttp.MethodPost, "/v1/workflows/sync", `{"source":"redtrack"}`)
	if code != stdhttp.StatusAccepted || data["state"] != "PENDING" {
		t.Fatalf("async: %d %v", code, data)
	}
	if _, err := m.Workflows().Engine().Wait(context.Background(), "sync-redtrack-manual"); err != nil {
		t.Fatalf("wait: %v", err)
	}

	code, data = call(t, s, stdhttp.MethodGet, "/v1/workflows/sync-redtrack-manual", "")
	if code != stdhttp.StatusOK || data["state"] != "SUCCEEDED" {
		t.Fatalf("status: %d %v", code, data)
	}

	code, data = call(t, s, stdhttp.MethodGet, "/v1/workflows/nope", "")
	if code != stdhttp.StatusNotFound || data["code"] != "not_found" {
		t.Fatalf("unknown: %d %v", code, data)
	}

	code, _ = call(t, s, stdhttp.MethodPost, "/v1/workflows/sync", `{"source":"facebook"}`)
	if code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("unknown source: %d", code)
	}

	code, data = call(t, s, stdhttp.MethodPost, "/v1/workflows/report?wait=true", `{"report":"daily_ccw"}`)
	if code != stdhttp.StatusInternalServerError || data["code"] != "config" {
		t.Fatalf("report without runner: %d %v", code, data)
	}
}
