package config

import (
	"errors"
	"testing"
	"time"

	kit "signalroom/internal/platform/testkit"
)

func TestPrefixAndKey(t *testing.T) {
	pg := New().Prefix("SERVICE_").Prefix("PGSQL_")
	if got := pg.key("HOST"); got != "SERVICE_PGSQL_HOST" {
		t.Fatalf("key() = %q", got)
	}
}

func TestNeedAndMissing(t *testing.T) {
	c := New().Prefix("EVERFLOW_")
	t.Setenv("EVERFLOW_API_KEY", "k")
	t.Setenv("EVERFLOW_ADVERTISER_ID", "   ")

	if err := c.Need("API_KEY"); err != nil {
		t.Fatalf("Need(API_KEY) = %v", err)
	}

	err := c.Need("API_KEY", "ADVERTISER_ID", "BASE_URL")
	var me *MissingError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MissingError, got %T", err)
	}
	if len(me.Keys) != 2 || me.Keys[0] != "EVERFLOW_ADVERTISER_ID" || me.Keys[1] != "EVERFLOW_BASE_URL" {
		t.Fatalf("missing keys = %v", me.Keys)
	}
	kit.MustContain(t, err.Error(), "EVERFLOW_BASE_URL")
}

func TestMustHelpers(t *testing.T) {
	c := New().Prefix("WORKER_")
	t.Setenv("WORKER_NAME", "  signalroom ")
	t.Setenv("WORKER_CONCURRENCY", " 4 ")
	t.Setenv("WORKER_ENABLED", "true")
	t.Setenv("WORKER_TIMEOUT", "30m")
	t.Setenv("WORKER_UPSTREAM", "https://substrate.local:7233")
	t.Setenv("WORKER_PORT", "4000")

	if got := c.MustString("NAME"); got != "signalroom" {
		t.Fatalf("MustString = %q", got)
	}
	if got := c.MustInt("CONCURRENCY"); got != 4 {
		t.Fatalf("MustInt = %d", got)
	}
	if !c.MustBool("ENABLED") {
		t.Fatalf("MustBool false")
	}
	if got := c.MustDuration("TIMEOUT"); got != 30*time.Minute {
		t.Fatalf("MustDuration = %v", got)
	}
	if u := c.MustURL("UPSTREAM"); u.Host != "substrate.local:7233" {
		t.Fatalf("MustURL host = %q", u.Host)
	}
	if got := c.MustPort("PORT"); got != ":4000" {
		t.Fatalf("MustPort = %q", got)
	}
}

func TestMustHelpersPanic(t *testing.T) {
	c := New().Prefix("BADCFG_")
	t.Setenv("BADCFG_INT", "x")
	t.Setenv("BADCFG_BOOL", "maybe")
	t.Setenv("BADCFG_DUR", "soon")
	t.Setenv("BADCFG_URL", "/relative")
	t.Setenv("BADCFG_PORT", "70000")
	t.Setenv("BADCFG_WS", "   ")

	kit.MustPanic(t, func() { _ = c.MustString("MISSING") })
	kit.MustPanic(t, func() { _ = c.MustInt("INT") })
	kit.MustPanic(t, func() { _ = c.MustBool("BOOL") })
	kit.MustPanic(t, func() { _ = c.MustDuration("DUR") })
	kit.MustPanic(t, func() { _ = c.MustURL("URL") })
	kit.MustPanic(t, func() { _ = c.MustPort("PORT") })
	kit.MustPanic(t, func() { c.Require("WS") })
}

func TestMayHelpers(t *testing.T) {
	c := New().Prefix("SYNC_")
	t.Setenv("SYNC_CLIENT_ID", " cti ")
	t.Setenv("SYNC_PAGE_SIZE", "500")
	t.Setenv("SYNC_BAD_INT", "5x")
	t.Setenv("SYNC_RATE", "1.5")
	t.Setenv("SYNC_DRY", "true")
	t.Setenv("SYNC_WAIT", "2s")

	if got := c.MayString("CLIENT_ID", "713"); got != "cti" {
		t.Fatalf("MayString = %q", got)
	}
	if got := c.MayString("MISSING", "713"); got != "713" {
		t.Fatalf("MayString default = %q", got)
	}
	if got := c.MayInt("PAGE_SIZE", 100); got != 500 {
		t.Fatalf("MayInt = %d", got)
	}
	if got := c.MayInt("BAD_INT", 100); got != 100 {
		t.Fatalf("MayInt bad = %d", got)
	}
	if got := c.MayFloat64("RATE", 1); got != 1.5 {
		t.Fatalf("MayFloat64 = %v", got)
	}
	if !c.MayBool("DRY", false) {
		t.Fatalf("MayBool false")
	}
	if got := c.MayDuration("WAIT", time.Second); got != 2*time.Second {
		t.Fatalf("MayDuration = %v", got)
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("S3_")
	t.Setenv("S3_PREFIXES", " exports/ccw, ,exports/cti-daily ,, ")
	got := c.MayCSV("PREFIXES", nil)
	if len(got) != 2 || got[0] != "exports/ccw" || got[1] != "exports/cti-daily" {
		t.Fatalf("MayCSV = %#v", got)
	}

	t.Setenv("S3_BLANK", " , , ")
	if got := c.MayCSV("BLANK", []string{"fallback"}); len(got) != 1 || got[0] != "fallback" {
		t.Fatalf("MayCSV blank = %#v", got)
	}
}

func TestMayEnum(t *testing.T) {
	c := New().Prefix("DEST_")
	if got := c.MayEnum("DRIVER", "pg", "pg", "clickhouse", "memory"); got != "pg" {
		t.Fatalf("MayEnum default = %q", got)
	}
	t.Setenv("DEST_DRIVER", "ClickHouse")
	if got := c.MayEnum("DRIVER", "pg", "pg", "clickhouse", "memory"); got != "clickhouse" {
		t.Fatalf("MayEnum = %q", got)
	}
	t.Setenv("DEST_DRIVER", "mysql")
	kit.MustPanic(t, func() { _ = c.MayEnum("DRIVER", "pg", "pg", "clickhouse") })
}
