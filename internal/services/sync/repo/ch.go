package repo

import (
	"context"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store"
	"signalroom/internal/services/sync/domain"
)

// CH writes batches to a ReplacingMergeTree keyed by (source, resource,
// row_key); the newest loaded_at wins at merge time
type CH struct {
	ch  store.Clickhouse
	now func() time.Time
}

// NewCH wraps a ClickHouse seam
func NewCH(ch store.Clickhouse) *CH { return &CH{ch: ch, now: time.Now} }

// EnsureSchema applies the embedded DDL
func (c *CH) EnsureSchema(ctx context.Context) error {
	err := apply(ctx, "ch", func(ctx context.Context, sql string) error { return c.ch.Exec(ctx, sql) })
	return perr.WrapIf(err, perr.ErrorCodeDB, "sync schema")
}

const chInsert = "sync_rows (source, resource, row_key, client_id, data, loaded_at)"

// Write satisfies domain.Destination. Append filters keys already present;
// replace drops the resource with a synchronous mutation first
func (c *CH) Write(ctx context.Context, b domain.Batch) (int, error) {
	e, err := encode(b)
	if err != nil {
		return 0, err
	}
	switch b.Disposition {
	case sources.Replace:
		if err := c.ch.Exec(ctx,
			`ALTER TABLE sync_rows DELETE WHERE source = ? AND resource = ? SETTINGS mutations_sync = 1`,
			string(b.Source), b.Resource); err != nil {
			return 0, perr.Wrapf(err, perr.ErrorCodeDB, "clear %s.%s", b.Source, b.Resource)
		}
	case sources.Append:
		if e, err = c.unseen(ctx, b, e); err != nil {
			return 0, err
		}
	}
	if len(e.keys) == 0 {
		return 0, nil
	}

	at := c.now().UTC()
	rows := make([][]any, len(e.keys))
	for i := range e.keys {
		rows[i] = []any{string(b.Source), b.Resource, e.keys[i], b.ClientID, e.docs[i], at}
	}
	if err := c.ch.Insert(ctx, chInsert, rows); err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeDB, "write %s.%s", b.Source, b.Resource)
	}
	if b.Disposition == sources.Append {
		return len(e.keys), nil
	}
	return len(b.Rows), nil
}

func (c *CH) unseen(ctx context.Context, b domain.Batch, e encoded) (encoded, error) {
	existing, err := store.Many(ctx, chQuerier{c.ch}, func(r store.Row) (string, error) {
		var k string
		return k, r.Scan(&k)
	}, `SELECT row_key FROM sync_rows WHERE source = ? AND resource = ? AND row_key IN (?)`,
		string(b.Source), b.Resource, e.keys)
	if err != nil {
		return encoded{}, perr.Wrapf(err, perr.ErrorCodeDB, "existing keys %s.%s", b.Source, b.Resource)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		seen[k] = struct{}{}
	}
	var out encoded
	for i, k := range e.keys {
		if _, ok := seen[k]; !ok {
			out.keys = append(out.keys, k)
			out.docs = append(out.docs, e.docs[i])
		}
	}
	return out, nil
}

// Cursors returns the sync_cursors store
func (c *CH) Cursors() *CHCursors { return &CHCursors{ch: c.ch, now: c.now} }

// CHCursors keeps every advance as a row and reads the max, so a lower Put
// can never win
type CHCursors struct {
	ch  store.Clickhouse
	now func() time.Time
}

// Get satisfies cursor.Store
func (c *CHCursors) Get(ctx context.Context, k cursor.Key) (string, bool, error) {
	rs, err := c.ch.Query(ctx,
		`SELECT max(value), count() FROM sync_cursors WHERE source = ? AND resource = ?`, k.Source, k.Resource)
	if err != nil {
		return "", false, perr.Wrapf(err, perr.ErrorCodeDB, "read cursor %s", k)
	}
	defer rs.Close()
	var (
		v string
		n uint64
	)
	if rs.Next() {
		if err := rs.Scan(&v, &n); err != nil {
			return "", false, perr.Wrapf(err, perr.ErrorCodeDB, "scan cursor %s", k)
		}
	}
	return v, n > 0, rs.Err()
}

// Put satisfies cursor.Store
func (c *CHCursors) Put(ctx context.Context, k cursor.Key, kind cursor.Kind, value string) error {
	err := c.ch.Insert(ctx, "sync_cursors (source, resource, kind, value, updated_at)",
		[][]any{{k.Source, k.Resource, kind.String(), value, c.now().UTC()}})
	return perr.WrapIf(err, perr.ErrorCodeDB, "advance cursor")
}

// chQuerier lets the store helpers read from ClickHouse
type chQuerier struct{ ch store.Clickhouse }

func (q chQuerier) Exec(ctx context.Context, sql string, args ...any) (store.CommandTag, error) {
	return nil, q.ch.Exec(ctx, sql, args...)
}

func (q chQuerier) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	return q.ch.Query(ctx, sql, args...)
}

func (q chQuerier) QueryRow(ctx context.Context, sql string, args ...any) store.Row {
	rs, err := q.ch.Query(ctx, sql, args...)
	return firstRow{rs: rs, err: err}
}

type firstRow struct {
	rs  store.Rows
	err error
}

func (r firstRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rs.Close()
	if !r.rs.Next() {
		if err := r.rs.Err(); err != nil {
			return err
		}
		return perr.ErrNotFound
	}
	return r.rs.Scan(dest...)
}
