package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store"
	"signalroom/internal/platform/testkit"
	"signalroom/internal/services/sync/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	sql  string
	args []any
}

// fakeTx records statements; Tx runs fn inline
type fakeTx struct {
	mu       sync.Mutex
	calls    []execCall
	affected int64
	failOn   string
	txs      int
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (store.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return nil, &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	}
	return pgconn.NewCommandTag("INSERT 0 " + strconv.FormatInt(f.affected, 10)), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (store.Rows, error) {
	return nil, errors.New("not used")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) store.Row { return nil }

func (f *fakeTx) Tx(ctx context.Context, fn func(q store.RowQuerier) error) error {
	f.mu.Lock()
	f.txs++
	f.mu.Unlock()
	return fn(f)
}

func batch(d sources.Disposition, rows ...normalize.Row) domain.Batch {
	return domain.Batch{
		Source:      domain.Everflow,
		Resource:    "daily_stats",
		ClientID:    "713",
		Disposition: d,
		Key:         []string{"date", "affiliate_id"},
		Rows:        rows,
	}
}

func row(date string, aff int64, rev float64) normalize.Row {
	return normalize.Row{"date": date, "affiliate_id": aff, "revenue": rev}
}

func TestEncodeCollapsesKeys(t *testing.T) {
	t.Parallel()

	rows := []normalize.Row{row("2025-12-20", 7, 100), row("2025-12-21", 7, 50), row("2025-12-21", 7, 75)}

	merged, err := encode(batch(sources.Merge, rows...))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(merged.keys) != 2 || !strings.Contains(merged.docs[1], `"revenue":75`) {
		t.Fatalf("merge keeps last copy: %+v", merged)
	}

	appended, _ := encode(batch(sources.Append, rows...))
	if len(appended.keys) != 2 || !strings.Contains(appended.docs[1], `"revenue":50`) {
		t.Fatalf("append keeps first copy: %+v", appended)
	}
}

func TestPGWriteMergeUsesUpsertInsideTimeout(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{affected: 2}
	p := NewPG(ftx, 30*time.Second)
	n, err := p.Write(context.Background(), batch(sources.Merge,
		row("2025-12-20", 7, 100), row("2025-12-21", 7, 50), row("2025-12-21", 7, 75)))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 3 {
		t.Fatalf("loaded = %d, want every row handed in", n)
	}
	if len(ftx.calls) != 2 {
		t.Fatalf("calls = %+v", ftx.calls)
	}
	if ftx.calls[0].sql != "SET LOCAL statement_timeout = 30000" {
		t.Fatalf("first statement = %q", ftx.calls[0].sql)
	}
	testkit.MustContain(t, ftx.calls[1].sql, "DO UPDATE SET data = EXCLUDED.data")
	if keys := ftx.calls[1].args[3].([]string); len(keys) != 2 || keys[0] != "2025-12-20|7" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestPGWriteReplaceClearsFirst(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{affected: 1}
	p := NewPG(ftx, 0)
	if _, err := p.Write(context.Background(), batch(sources.Replace, row("2025-12-20", 1, 1))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ftx.txs != 1 || len(ftx.calls) != 2 {
		t.Fatalf("txs=%d calls=%+v", ftx.txs, ftx.calls)
	}
	testkit.MustContain(t, ftx.calls[0].sql, "DELETE FROM sync_rows")
	testkit.MustContain(t, ftx.calls[1].sql, "DO NOTHING")
}

func TestPGWriteAppendReportsInserted(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{affected: 1}
	n, err := NewPG(ftx, 0).Write(context.Background(), batch(sources.Append, row("a", 1, 1), row("b", 1, 1)))
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestPGWriteMapsPostgresErrors(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{failOn: "INSERT"}
	_, err := NewPG(ftx, 0).Write(context.Background(), batch(sources.Merge, row("a", 1, 1)))
	if err == nil || !perr.Retryable(err) {
		t.Fatalf("err = %v, want retryable db error", err)
	}
}

func TestPGCursorPutIsGuarded(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	c := NewPG(ftx, 0).Cursors()
	if err := c.Put(context.Background(), cursor.Key{Source: "everflow", Resource: "daily_stats"}, cursor.KindDate, "2025-12-21"); err != nil {
		t.Fatalf("put: %v", err)
	}
	testkit.MustContain(t, ftx.calls[0].sql, "WHERE sync_cursors.value < EXCLUDED.value")
	if ftx.calls[0].args[2] != "date" {
		t.Fatalf("kind arg = %v", ftx.calls[0].args[2])
	}
}

func TestMemoryDispositions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemory()
	n, _ := m.Write(ctx, batch(sources.Merge, row("d", 1, 1), row("d", 1, 2)))
	if n != 2 || len(m.Rows(domain.Everflow, "daily_stats")) != 1 {
		t.Fatalf("merge n=%d rows=%v", n, m.Rows(domain.Everflow, "daily_stats"))
	}
	if got := m.Rows(domain.Everflow, "daily_stats")["d|1"]["revenue"]; got != float64(2) {
		t.Fatalf("merge kept %v, want last write", got)
	}

	n, _ = m.Write(ctx, batch(sources.Append, row("d", 1, 9), row("e", 1, 1)))
	if n != 1 || m.Rows(domain.Everflow, "daily_stats")["d|1"]["revenue"] != float64(2) {
		t.Fatalf("append n=%d", n)
	}

	_, _ = m.Write(ctx, batch(sources.Replace, row("z", 1, 1)))
	if rows := m.Rows(domain.Everflow, "daily_stats"); len(rows) != 1 {
		t.Fatalf("replace left %v", rows)
	}
	if len(m.Calls()) != 3 {
		t.Fatalf("calls = %d", len(m.Calls()))
	}
}

func TestStatementsSplitsEmbeddedDDL(t *testing.T) {
	t.Parallel()

	pg, err := statements("pg")
	if err != nil || len(pg) != 3 {
		t.Fatalf("pg statements = %d err=%v", len(pg), err)
	}
	testkit.MustContain(t, pg[0], "CREATE TABLE IF NOT EXISTS sync_rows")
	ch, err := statements("ch")
	if err != nil || len(ch) != 2 {
		t.Fatalf("ch statements = %d err=%v", len(ch), err)
	}
	testkit.MustContain(t, ch[0], "ReplacingMergeTree")
}
