package repo

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/pg/*.sql migrations/ch/*.sql
var migrations embed.FS

// statements returns the embedded DDL of dialect ("pg" or "ch") in file order,
// one entry per statement
func statements(dialect string) ([]string, error) {
	dir := path.Join("migrations", dialect)
	files, err := fs.Glob(migrations, dir+"/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []string
	for _, f := range files {
		b, err := migrations.ReadFile(f)
		if err != nil {
			return nil, err
		}
		for _, stmt := range strings.Split(string(b), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				out = append(out, stmt)
			}
		}
	}
	return out, nil
}

// execer is the slice of PG and CH both offer for DDL
type execer func(ctx context.Context, sql string) error

func apply(ctx context.Context, dialect string, exec execer) error {
	stmts, err := statements(dialect)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
