// Package repo loads report data from the sync tables
package repo

import (
	"context"
	"embed"
	"errors"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/store"
)

//go:embed queries/*.sql
var queries embed.FS

// Query returns the embedded SQL named name
func Query(name string) (string, error) {
	b, err := queries.ReadFile("queries/" + name)
	if err != nil {
		return "", perr.WithField(perr.NotFoundf("report query %q: %v", name, err), "query")
	}
	return string(b), nil
}

// PG reads report rows from postgres
type PG struct {
	q store.RowQuerier
}

// NewPG wraps q
func NewPG(q store.RowQuerier) *PG { return &PG{q: q} }

// Row runs the named query and returns its single row; ok is false when
// the query found nothing for the args
func (p *PG) Row(ctx context.Context, name string, args ...any) (map[string]any, bool, error) {
	sql, err := Query(name)
	if err != nil {
		return nil, false, err
	}
	m, err := store.Map(ctx, p.q, sql, args...)
	switch {
	case errors.Is(err, perr.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, perr.FromPostgresf(err, "report query %s", name)
	}
	return m, true, nil
}
