package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store"
	"signalroom/internal/platform/testkit"
	"signalroom/internal/services/scheduler/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	sqls     []string
	args     [][]any
	affected int64
	txs      int
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (store.CommandTag, error) {
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(f.affected, 10)), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (store.Rows, error) {
	return nil, errors.New("not used")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) store.Row { return nil }

func (f *fakeTx) Tx(_ context.Context, fn func(q store.RowQuerier) error) error {
	f.txs++
	return fn(f)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	ds := Defaults()
	if len(ds) != 3 {
		t.Fatalf("defaults = %+v", ds)
	}
	byID := map[string]domain.Schedule{}
	for _, s := range ds {
		byID[s.ID] = s
	}
	if h := byID["scheduled-sync-hourly"]; h.Cron != "15 0-4,12-23 * * *" || len(h.Sources) != 2 {
		t.Fatalf("hourly = %+v", h)
	}
	if r := byID["scheduled-report-daily-ccw"]; r.Kind != domain.KindReport || r.Report != "daily_ccw" {
		t.Fatalf("report = %+v", r)
	}
}

func TestPGApplyIsOneTransaction(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	p := NewPG(ftx)
	err := p.Apply(context.Background(),
		domain.Schedule{ID: "a", Kind: domain.KindSync, Cron: "@hourly", Sources: []string{"everflow"}},
		domain.Schedule{ID: "b", Kind: domain.KindReport, Cron: "@daily", Report: "daily_ccw", Paused: true},
	)
	if err != nil || ftx.txs != 1 || len(ftx.sqls) != 2 {
		t.Fatalf("apply: %v txs=%d sqls=%d", err, ftx.txs, len(ftx.sqls))
	}
	testkit.MustContain(t, ftx.sqls[0], "ON CONFLICT (id) DO UPDATE")
	testkit.MustContain(t, ftx.args[0][1].(string), `"sources":["everflow"]`)
	if ftx.args[1][2] != true {
		t.Fatalf("paused arg = %v", ftx.args[1][2])
	}

	bad := &fakeTx{}
	err = NewPG(bad).Apply(context.Background(), domain.Schedule{ID: "x", Kind: domain.KindSync, Cron: "nope", Sources: []string{"everflow"}})
	if !perr.IsCode(err, perr.ErrorCodeValidation) || len(bad.sqls) != 0 {
		t.Fatalf("invalid apply: %v %v", err, bad.sqls)
	}
}

func TestPGDeleteAndSchema(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	if err := NewPG(ftx).Delete(context.Background(), "gone"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("delete missing: %v", err)
	}
	ftx.affected = 1
	if err := NewPG(ftx).Delete(context.Background(), "there"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := NewPG(ftx).EnsureSchema(context.Background()); err != nil || !strings.Contains(ftx.sqls[2], "sync_schedules") {
		t.Fatalf("schema: %v %q", err, ftx.sqls)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	if err := m.Apply(ctx,
		domain.Schedule{ID: "z", Kind: domain.KindSync, Cron: "@hourly", Sources: []string{"posthog"}},
		domain.Schedule{ID: "a", Kind: domain.KindSync, Cron: "@daily", Sources: []string{"mautic"}},
	); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ := m.List(ctx)
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("list = %+v", got)
	}
	if err := m.Apply(ctx, domain.Schedule{ID: "q", Kind: domain.KindSync, Cron: "@daily", Sources: []string{"tiktok"}}); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("bad source: %v", err)
	}
	if err := m.Delete(ctx, "z"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.Delete(ctx, "z"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}
