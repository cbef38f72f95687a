package store

import (
	"context"
	"errors"
	"time"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// txAttempts bounds in-place retries of a transaction that hit contention
const txAttempts = 3

// pgAdapter wraps pg.PG as a TxRunner and reports every statement to the tracer
type pgAdapter struct {
	p *pg.PG
}

func newPGAdapter(p *pg.PG) *pgAdapter { return &pgAdapter{p: p} }

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil || a.p == nil {
		return errors.New("pg: nil adapter")
	}
	return a.p.Pool.Ping(ctx)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

func (a *pgAdapter) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return tracedExec(ctx, a.tracing(), a.p.Pool, sql, args)
}

func (a *pgAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return tracedQuery(ctx, a.tracing(), a.p.Pool, sql, args)
}

func (a *pgAdapter) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return tracedQueryRow(ctx, a.tracing(), a.p.Pool, sql, args)
}

// Tx runs fn in a transaction, retrying the whole unit when postgres reports
// serialization failures or deadlocks. fn must be safe to re-run
func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = a.txOnce(ctx, fn)
		if err == nil || !perr.IsTransientDB(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (a *pgAdapter) txOnce(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txQuerier{tx: tx, t: a.tracing()}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (a *pgAdapter) tracing() tracing {
	if a == nil || a.p == nil {
		return tracing{slowMs: -1}
	}
	return tracing{tracer: a.p.Tracer, slowMs: a.p.SlowMs}
}

// pgxQuerier is the subset of pgxpool.Pool and pgx.Tx the adapters call
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type tracing struct {
	tracer pg.QueryTracer
	slowMs int
}

func (t tracing) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if t.tracer == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	t.tracer.OnQuery(ctx, pg.QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsedUS,
		Err:       err,
		Slow:      t.slowMs >= 0 && elapsedUS >= int64(t.slowMs)*1000,
	})
}

func tracedExec(ctx context.Context, t tracing, q pgxQuerier, sql string, args []any) (CommandTag, error) {
	start := time.Now()
	ct, err := q.Exec(ctx, sql, args...)
	t.emit(ctx, sql, args, start, err)
	return tag{ct}, err
}

func tracedQuery(ctx context.Context, t tracing, q pgxQuerier, sql string, args []any) (Rows, error) {
	start := time.Now()
	rs, err := q.Query(ctx, sql, args...)
	t.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows{r: rs}, nil
}

func tracedQueryRow(ctx context.Context, t tracing, q pgxQuerier, sql string, args []any) Row {
	start := time.Now()
	r := q.QueryRow(ctx, sql, args...)
	return row{r: r, after: func(scanErr error) { t.emit(ctx, sql, args, start, scanErr) }}
}

// txQuerier satisfies RowQuerier inside a transaction
type txQuerier struct {
	tx pgx.Tx
	t  tracing
}

func (q txQuerier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return tracedExec(ctx, q.t, q.tx, sql, args)
}

func (q txQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return tracedQuery(ctx, q.t, q.tx, sql, args)
}

func (q txQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return tracedQueryRow(ctx, q.t, q.tx, sql, args)
}

type row struct {
	r     pgx.Row
	after func(error)
}

func (x row) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type rows struct{ r pgx.Rows }

func (x rows) Next() bool            { return x.r.Next() }
func (x rows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x rows) Err() error            { return x.r.Err() }
func (x rows) Close()                { x.r.Close() }
func (x rows) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}

type tag struct{ t pgconn.CommandTag }

func (t tag) String() string      { return t.t.String() }
func (t tag) RowsAffected() int64 { return t.t.RowsAffected() }
