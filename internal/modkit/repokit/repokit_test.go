package repokit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"signalroom/internal/platform/testkit"
)

type fakeTx struct {
	execs []string
	txs   int
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (CommandTag, error) {
	f.execs = append(f.execs, sql)
	return nil, nil
}
func (f *fakeTx) Query(context.Context, string, ...any) (Rows, error) { return nil, nil }
func (f *fakeTx) QueryRow(context.Context, string, ...any) Row        { return nil }
func (f *fakeTx) Tx(_ context.Context, fn func(Queryer) error) error {
	f.txs++
	return fn(f)
}

func TestBeginHooksRunInsideTxBeforeFn(t *testing.T) {
	t.Parallel()

	inner := &fakeTx{}
	tx := WithBeginHooks(inner, StatementTimeout(1500*time.Millisecond))
	err := WithTx(context.Background(), tx, func(q Queryer) error {
		_, err := q.Exec(context.Background(), "DELETE FROM t")
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if inner.txs != 1 || len(inner.execs) != 2 {
		t.Fatalf("txs=%d execs=%v", inner.txs, inner.execs)
	}
	if inner.execs[0] != "SET LOCAL statement_timeout = 1500" || inner.execs[1] != "DELETE FROM t" {
		t.Fatalf("order: %v", inner.execs)
	}
}

func TestBeginHookErrorSkipsFn(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	called := false
	tx := WithBeginHooks(&fakeTx{}, func(context.Context, Queryer) error { return boom })
	err := tx.Tx(context.Background(), func(Queryer) error { called = true; return nil })
	if !errors.Is(err, boom) || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestMustBind(t *testing.T) {
	t.Parallel()

	b := BindFunc[int](func(Queryer) int { return 7 })
	if got := MustBind[int](b, &fakeTx{}); got != 7 {
		t.Fatalf("got %d", got)
	}
	testkit.MustPanic(t, func() { _ = MustBind[int](b, nil) })
}

type guardFunc func(context.Context) error

func (g guardFunc) Guard(ctx context.Context) error { return g(ctx) }

func TestMustGuard(t *testing.T) {
	t.Parallel()

	var sawDeadline bool
	MustGuard(context.Background(), guardFunc(func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	}))
	if !sawDeadline {
		t.Fatalf("expected default deadline")
	}

	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(error).Error(), "dependency guard failed") {
			t.Fatalf("recover=%v", r)
		}
	}()
	MustGuard(context.Background(), guardFunc(func(context.Context) error { return errors.New("down") }))
}
