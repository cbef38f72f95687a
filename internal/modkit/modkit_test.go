package modkit

import (
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"signalroom/internal/platform/config"
	phttp "signalroom/internal/platform/net/http"
	"signalroom/internal/platform/store"
)

type echoMod struct {
	name  string
	built Built
}

func (m echoMod) Name() string { return m.name }
func (m echoMod) Ports() any   { return m.name }
func (m echoMod) MountRoutes(r phttp.Router) {
	m.built.Scoped(r, func(sub phttp.Router) {
		sub.Get("/ping", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { _, _ = w.Write([]byte(m.name)) })
	})
}

func TestMountScopesPrefixAndMiddleware(t *testing.T) {
	t.Parallel()

	tagged := func(next stdhttp.Handler) stdhttp.Handler {
		return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			w.Header().Set("X-Mod", "a")
			next.ServeHTTP(w, r)
		})
	}
	s := phttp.NewServer(config.New().Prefix("TEST_MODKIT_"))
	names := Mount(s.Router(),
		echoMod{name: "a", built: Build(WithPrefix("/a"), WithMiddlewares(tagged))},
		echoMod{name: "root", built: Build()},
	)
	if len(names) != 2 || names[0] != "a" || names[1] != "root" {
		t.Fatalf("names=%v", names)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/a/ping", nil))
	if rec.Body.String() != "a" || rec.Header().Get("X-Mod") != "a" {
		t.Fatalf("prefixed: body=%q hdr=%q", rec.Body.String(), rec.Header().Get("X-Mod"))
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/ping", nil))
	if rec.Body.String() != "root" || rec.Header().Get("X-Mod") != "" {
		t.Fatalf("root: body=%q hdr=%q", rec.Body.String(), rec.Header().Get("X-Mod"))
	}
}

func TestPortsAs(t *testing.T) {
	t.Parallel()
	if p, ok := PortsAs[string](echoMod{name: "x"}); !ok || p != "x" {
		t.Fatalf("PortsAs string = %q %v", p, ok)
	}
	if _, ok := PortsAs[int](echoMod{name: "x"}); ok {
		t.Fatalf("PortsAs int should miss")
	}
}

func TestFromStoreNilIsSafe(t *testing.T) {
	t.Parallel()
	d := FromStore(nil, config.New())
	if d.PG != nil || d.CH != nil || d.Redis != nil {
		t.Fatalf("expected empty stores: %+v", d)
	}
	d = FromStore(&store.Store{}, config.New())
	if d.PG != nil {
		t.Fatalf("PG should stay nil")
	}
}
