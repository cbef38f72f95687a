package store

import (
	"context"
	"fmt"
	"time"

	perr "signalroom/internal/platform/errors"
)

// Scalar queries the first column of the first row into T
func Scalar[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	var v T
	if err := q.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Many maps every row into T with scan
func Many[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) ([]T, error) {
	rs, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []T
	for rs.Next() {
		item, err := scan(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rs.Err()
}

// Map returns exactly one row as column -> value; no rows is perr.ErrNotFound
func Map(ctx context.Context, q RowQuerier, sql string, args ...any) (map[string]any, error) {
	all, err := Maps(ctx, q, sql, args...)
	if err != nil {
		return nil, err
	}
	switch len(all) {
	case 0:
		return nil, perr.ErrNotFound
	case 1:
		return all[0], nil
	default:
		return nil, fmt.Errorf("expected 1 row, got %d", len(all))
	}
}

// Maps returns every row as column -> value
func Maps(ctx context.Context, q RowQuerier, sql string, args ...any) ([]map[string]any, error) {
	rs, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []map[string]any
	for rs.Next() {
		m, err := scanMap(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rs.Err()
}

func scanMap(rs Rows) (map[string]any, error) {
	cols := rs.Columns()
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rs.Scan(ptrs...); err != nil {
		return nil, err
	}
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		if t, ok := vals[i].(*time.Time); ok && t != nil {
			m[c] = *t
			continue
		}
		m[c] = vals[i]
	}
	return m, nil
}
