// Package repo holds the sync destinations and cursor stores
package repo

import (
	"context"
	"errors"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/modkit/repokit"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store"
	"signalroom/internal/services/sync/domain"

	"github.com/jackc/pgx/v5"
)

// PG writes batches to sync_rows and watermarks to sync_cursors
type PG struct {
	tx repokit.TxRunner
}

// NewPG wraps tx; every write transaction is bounded by statementTimeout
// when it is positive
func NewPG(tx repokit.TxRunner, statementTimeout time.Duration) *PG {
	if statementTimeout > 0 {
		tx = repokit.WithBeginHooks(tx, repokit.StatementTimeout(statementTimeout))
	}
	return &PG{tx: tx}
}

// EnsureSchema applies the embedded DDL in one transaction
func (p *PG) EnsureSchema(ctx context.Context) error {
	err := p.tx.Tx(ctx, func(q repokit.Queryer) error {
		return apply(ctx, "pg", func(ctx context.Context, sql string) error {
			_, err := q.Exec(ctx, sql)
			return err
		})
	})
	return perr.WrapIf(err, perr.ErrorCodeDB, "sync schema")
}

type rowsRepo struct{ q repokit.Queryer }

var rowsBinder = repokit.BindFunc[rowsRepo](func(q repokit.Queryer) rowsRepo { return rowsRepo{q: q} })

const (
	upsertRows = `
		INSERT INTO sync_rows (source, resource, row_key, client_id, data, loaded_at)
		SELECT $1, $2, t.k, $3, t.d::jsonb, now()
		FROM unnest($4::text[], $5::text[]) AS t(k, d)
		ON CONFLICT (source, resource, row_key)
		DO UPDATE SET data = EXCLUDED.data, client_id = EXCLUDED.client_id, loaded_at = EXCLUDED.loaded_at`

	insertRows = `
		INSERT INTO sync_rows (source, resource, row_key, client_id, data, loaded_at)
		SELECT $1, $2, t.k, $3, t.d::jsonb, now()
		FROM unnest($4::text[], $5::text[]) AS t(k, d)
		ON CONFLICT (source, resource, row_key) DO NOTHING`

	clearRows = `DELETE FROM sync_rows WHERE source = $1 AND resource = $2`
)

func (r rowsRepo) write(ctx context.Context, sql string, b domain.Batch, e encoded) (int64, error) {
	tag, err := r.q.Exec(ctx, sql, string(b.Source), b.Resource, b.ClientID, e.keys, e.docs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r rowsRepo) clear(ctx context.Context, b domain.Batch) error {
	_, err := r.q.Exec(ctx, clearRows, string(b.Source), b.Resource)
	return err
}

// Write satisfies domain.Destination. A batch is one transaction; replace
// deletes the resource's rows first
func (p *PG) Write(ctx context.Context, b domain.Batch) (int, error) {
	e, err := encode(b)
	if err != nil {
		return 0, err
	}
	var n int
	err = p.tx.Tx(ctx, func(q repokit.Queryer) error {
		r := repokit.MustBind[rowsRepo](rowsBinder, q)
		switch b.Disposition {
		case sources.Replace:
			if err := r.clear(ctx, b); err != nil {
				return err
			}
			if len(e.keys) == 0 {
				return nil
			}
			_, err := r.write(ctx, insertRows, b, e)
			n = len(b.Rows)
			return err
		case sources.Append:
			if len(e.keys) == 0 {
				return nil
			}
			affected, err := r.write(ctx, insertRows, b, e)
			n = int(affected)
			return err
		default:
			if len(e.keys) == 0 {
				return nil
			}
			_, err := r.write(ctx, upsertRows, b, e)
			n = len(b.Rows)
			return err
		}
	})
	if err != nil {
		return 0, perr.FromPostgresf(err, "write %s.%s", b.Source, b.Resource)
	}
	return n, nil
}

// Cursors returns the sync_cursors store
func (p *PG) Cursors() *PGCursors { return &PGCursors{q: p.tx} }

// PGCursors is a cursor.Store over sync_cursors
type PGCursors struct{ q repokit.Queryer }

// Get satisfies cursor.Store
func (c *PGCursors) Get(ctx context.Context, k cursor.Key) (string, bool, error) {
	v, err := store.Scalar[string](ctx, c.q,
		`SELECT value FROM sync_cursors WHERE source = $1 AND resource = $2`, k.Source, k.Resource)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, perr.FromPostgresf(err, "read cursor %s", k)
	}
	return v, true, nil
}

// Put satisfies cursor.Store. The guard keeps the stored value from moving
// backwards; values of one kind order lexically
func (c *PGCursors) Put(ctx context.Context, k cursor.Key, kind cursor.Kind, value string) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO sync_cursors (source, resource, kind, value, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (source, resource)
		DO UPDATE SET value = EXCLUDED.value, kind = EXCLUDED.kind, updated_at = EXCLUDED.updated_at
		WHERE sync_cursors.value < EXCLUDED.value`,
		k.Source, k.Resource, kind.String(), value)
	return perr.WrapIf(err, perr.ErrorCodeDB, "advance cursor")
}
