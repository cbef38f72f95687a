//go:build integration_pg

package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/platform/config"
	"signalroom/internal/platform/store"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "postgres",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections"),
			).WithDeadline(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, port.Port())
}

func TestPGDestination_Integration(t *testing.T) {
	dsn := startPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := store.FromConfig(config.New(), "signalroom-test")
	cfg.PG.Enabled, cfg.PG.URL = true, dsn
	st, err := store.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close(ctx) }()

	p := NewPG(st.PG, 30*time.Second)
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema is not idempotent: %v", err)
	}

	b := batch(sources.Merge, row("2025-12-20", 7, 100), row("2025-12-21", 7, 50), row("2025-12-21", 7, 75))
	for i := 0; i < 2; i++ {
		if _, err := p.Write(ctx, b); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	count, err := store.Scalar[int64](ctx, st.PG, `SELECT count(*) FROM sync_rows WHERE source = 'everflow'`)
	if err != nil || count != 2 {
		t.Fatalf("rows = %d err=%v", count, err)
	}
	rev, err := store.Scalar[float64](ctx, st.PG,
		`SELECT (data->>'revenue')::float8 FROM sync_rows WHERE row_key = '2025-12-21|7'`)
	if err != nil || rev != 75 {
		t.Fatalf("revenue = %v err=%v", rev, err)
	}

	cs := p.Cursors()
	k := cursor.Key{Source: "everflow", Resource: "daily_stats"}
	if _, ok, _ := cs.Get(ctx, k); ok {
		t.Fatalf("fresh cursor should be absent")
	}
	_ = cs.Put(ctx, k, cursor.KindDate, "2025-12-21")
	_ = cs.Put(ctx, k, cursor.KindDate, "2025-12-19")
	if v, ok, err := cs.Get(ctx, k); err != nil || !ok || v != "2025-12-21" {
		t.Fatalf("cursor = %q %v %v", v, ok, err)
	}
}
