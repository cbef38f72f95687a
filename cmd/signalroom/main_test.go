package main

import (
	"bytes"
	"context"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/testkit"
	"signalroom/internal/services/api"
)

// testApp shares one in-memory worker across the commands of a test
func testApp(t *testing.T, prefix string) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	cfg := config.New().Prefix(prefix)
	w, err := api.Build(api.Options{Config: cfg})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	a := &app{cfg: cfg, out: out}
	a.open = func(context.Context) (*api.Worker, func(), error) { return w, func() {}, nil }
	return a, out
}

func run(a *app, args ...string) error {
	root := newRoot(a)
	root.SetArgs(append(args, "--env-file", filepath.Join(os.TempDir(), "signalroom-missing.env")))
	return root.ExecuteContext(context.Background())
}

func TestSourcesListsCatalogAndClients(t *testing.T) {
	t.Parallel()
	a, out := testApp(t, "CLITEST_SOURCES_")
	if err := run(a, "sources"); err != nil {
		t.Fatalf("sources: %v", err)
	}
	for _, want := range []string{"everflow", "google_sheets", "713", "ClayTargetInstruction"} {
		testkit.MustContain(t, out.String(), want)
	}
}

func TestSyncFailures(t *testing.T) {
	t.Parallel()
	a, out := testApp(t, "CLITEST_SYNC_")

	if err := run(a, "sync", "facebook"); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("unknown source: %v", err)
	}
	if err := run(a, "sync"); err == nil {
		t.Fatalf("missing arg accepted")
	}
	// no credentials under the test prefix
	if err := run(a, "sync", "everflow", "--start", "2025-12-01", "--end", "2025-12-02"); err == nil {
		t.Fatalf("unconfigured sync succeeded")
	}
	testkit.MustContain(t, out.String(), "sync-everflow-manual")
	testkit.MustContain(t, out.String(), "FAILED_TERMINAL")
}

func TestSchedulesApplyListDelete(t *testing.T) {
	t.Parallel()
	a, out := testApp(t, "CLITEST_SCHED_")

	file := filepath.Join(t.TempDir(), "schedules.yaml")
	doc := "schedules:\n  - id: posthog-daily\n    kind: sync\n    cron: '0 6 * * *'\n    sources: [posthog]\n"
	if err := os.WriteFile(file, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run(a, "schedules", "apply", file); err != nil {
		t.Fatalf("apply: %v", err)
	}
	out.Reset()
	if err := run(a, "schedules", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"posthog-daily", "scheduled-sync-hourly", "scheduled-sync-s3", "daily_ccw"} {
		testkit.MustContain(t, out.String(), want)
	}
	if err := run(a, "schedules", "delete", "posthog-daily"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := run(a, "schedules", "delete", "posthog-daily"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("delete twice: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(bad, []byte("schedules:\n  - id: x\n    kind: sync\n    cron: nope\n    sources: [posthog]\n"), 0o600)
	if err := run(a, "schedules", "apply", bad); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("bad file: %v", err)
	}
}

func TestReportRendersWithoutSending(t *testing.T) {
	t.Parallel()
	a, out := testApp(t, "CLITEST_REPORT_")

	if err := run(a, "report", "alert", "--channel", "sms"); err != nil {
		t.Fatalf("report: %v", err)
	}
	testkit.MustContain(t, out.String(), "[ERROR] Alert:")

	if err := run(a, "report", "alert", "--channel", "fax"); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("bad channel: %v", err)
	}
	if err := run(a, "report", "weekly"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("unknown report: %v", err)
	}
	// daily_ccw reads postgres, which is not connected here
	if err := run(a, "report", "daily_ccw"); !perr.IsCode(err, perr.ErrorCodeConfig) {
		t.Fatalf("no pg: %v", err)
	}
}

func TestTriggerPostsToWorker(t *testing.T) {
	var gotQuery, gotBody string
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		b := new(bytes.Buffer)
		_, _ = b.ReadFrom(r.Body)
		gotQuery, gotBody = r.URL.RawQuery, b.String()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("wait") == "true" {
			_, _ = w.Write([]byte(`{"status_code":200,"data":{"workflow_id":"sync-redtrack-manual","run_id":"r1","state":"FAILED_TERMINAL","attempts":1,"code":"config","error":"missing key"}}`))
			return
		}
		w.WriteHeader(stdhttp.StatusAccepted)
		_, _ = w.Write([]byte(`{"status_code":202,"data":{"workflow_id":"sync-redtrack-manual","run_id":"r2","state":"PENDING"}}`))
	}))
	defer srv.Close()
	t.Setenv("CLITEST_TRIGGER_WORKER_URL", srv.URL)
	a, out := testApp(t, "CLITEST_TRIGGER_")

	if err := run(a, "trigger", "redtrack", "--notify-success"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	testkit.MustContain(t, gotBody, `"source":"redtrack"`)
	testkit.MustContain(t, gotBody, `"notify_on_success":true`)
	testkit.MustContain(t, out.String(), `"state": "PENDING"`)

	if err := run(a, "trigger", "redtrack", "--wait"); err == nil {
		t.Fatalf("failed workflow reported success")
	}
	if gotQuery != "wait=true" {
		t.Fatalf("query = %q", gotQuery)
	}
	testkit.MustContain(t, out.String(), "error [config]: missing key")
}
