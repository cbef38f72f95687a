package durable

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"signalroom/internal/core/retry"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/testkit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	legal := [][2]State{
		{Pending, Running},
		{Running, Succeeded},
		{Running, FailedRetryable},
		{Running, FailedTerminal},
		{FailedRetryable, Running},
		{FailedRetryable, FailedTerminal},
	}
	for _, p := range legal {
		if _, err := p[0].Transition(p[1]); err != nil {
			t.Fatalf("%s -> %s: %v", p[0], p[1], err)
		}
	}
	illegal := [][2]State{
		{Pending, Succeeded},
		{Succeeded, Running},
		{FailedTerminal, Running},
		{FailedRetryable, Succeeded},
	}
	for _, p := range illegal {
		if _, err := p[0].Transition(p[1]); !perr.IsCode(err, perr.ErrorCodeConflict) {
			t.Fatalf("%s -> %s allowed", p[0], p[1])
		}
	}
	if !Succeeded.Final() || !FailedTerminal.Final() || Running.Final() {
		t.Fatalf("final states")
	}
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLocalLocker()
	now := time.Date(2025, 12, 22, 12, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	a, err := l.Acquire(ctx, "sync-everflow-manual", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "sync-everflow-manual", time.Minute); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "sync-redtrack-manual", time.Minute); err != nil {
		t.Fatalf("other id: %v", err)
	}

	now = now.Add(2 * time.Minute)
	b, err := l.Acquire(ctx, "sync-everflow-manual", time.Minute)
	if err != nil {
		t.Fatalf("expired hold not reclaimed: %v", err)
	}
	if err := a.Refresh(ctx, time.Minute); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("stale refresh: %v", err)
	}
	_ = a.Release(ctx)
	if !l.Held("sync-everflow-manual") {
		t.Fatalf("stale release freed the new holder")
	}
	_ = b.Release(ctx)
	if l.Held("sync-everflow-manual") {
		t.Fatalf("release did not free")
	}
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	l := NewRedisLocker(c, "")

	a, err := l.Acquire(ctx, "scheduled-sync-hourly", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !mr.Exists("signalroom:workflow:scheduled-sync-hourly") {
		t.Fatalf("key not set")
	}
	if ttl := mr.TTL("signalroom:workflow:scheduled-sync-hourly"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	if _, err := l.Acquire(ctx, "scheduled-sync-hourly", time.Minute); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second acquire: %v", err)
	}
	if err := a.Refresh(ctx, 3*time.Minute); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if ttl := mr.TTL("signalroom:workflow:scheduled-sync-hourly"); ttl != 3*time.Minute {
		t.Fatalf("refreshed ttl = %v", ttl)
	}

	mr.FastForward(4 * time.Minute)
	b, err := l.Acquire(ctx, "scheduled-sync-hourly", time.Minute)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if err := a.Refresh(ctx, time.Minute); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("stale refresh: %v", err)
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if holder, _ := l.Holder(ctx, "scheduled-sync-hourly"); holder == "" {
		t.Fatalf("stale release freed the new holder")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if holder, _ := l.Holder(ctx, "scheduled-sync-hourly"); holder != "" {
		t.Fatalf("held after release by %s", holder)
	}
}

func newEngine(lock Locker) (*Engine, *testkit.Sleeps) {
	s := &testkit.Sleeps{}
	return New(lock, WithSleep(s.Sleep)), s
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	e, sleeps := newEngine(nil)
	x, err := e.Execute(context.Background(), Options{ID: "sync-everflow-manual", Workflow: "sync", Policy: retry.Default()},
		func(_ context.Context, attempt int) (any, error) {
			if attempt < 3 {
				return nil, perr.Unavailablef("everflow 502")
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if x.State != Succeeded || x.Result != 42 || len(x.Attempts) != 3 {
		t.Fatalf("execution = %+v", x)
	}
	if got := sleeps.Waits(); !slices.Equal(got, []time.Duration{time.Second, 2 * time.Second}) {
		t.Fatalf("waits = %v", got)
	}
	if x.Attempts[0].Code != "unavailable" || x.Attempts[0].Backoff != time.Second {
		t.Fatalf("attempt 1 = %+v", x.Attempts[0])
	}
	if got, ok := e.Registry().Get("sync-everflow-manual"); !ok || got.RunID != x.RunID {
		t.Fatalf("registry lookup = %+v %v", got, ok)
	}
}

func TestExecuteTerminalCases(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		act      Activity
		attempts int
		code     perr.ErrorCode
		waits    int
	}{
		{
			name:     "config is terminal",
			act:      func(context.Context, int) (any, error) { return nil, perr.Configf("EVERFLOW_API_KEY not set") },
			attempts: 1, code: perr.ErrorCodeConfig,
		},
		{
			name:     "exhausted",
			act:      func(context.Context, int) (any, error) { return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "429") },
			attempts: 5, code: perr.ErrorCodeTooManyRequests, waits: 4,
		},
		{
			name:     "panic",
			act:      func(context.Context, int) (any, error) { panic("nil map") },
			attempts: 1, code: perr.ErrorCodePanic,
		},
	}
	for _, c := range cases {
		e, sleeps := newEngine(nil)
		x, err := e.Execute(context.Background(), Options{ID: "w", Policy: retry.Default()}, c.act)
		if !perr.IsCode(err, c.code) {
			t.Fatalf("%s: err = %v", c.name, err)
		}
		if x.State != FailedTerminal || len(x.Attempts) != c.attempts || x.Code != c.code.String() || x.Error == "" {
			t.Fatalf("%s: execution = %+v", c.name, x)
		}
		if len(sleeps.Waits()) != c.waits {
			t.Fatalf("%s: waits = %v", c.name, sleeps.Waits())
		}
		if !errors.Is(x.Err(), err) {
			t.Fatalf("%s: execution error not kept", c.name)
		}
	}
}

func TestCancellationIsTerminal(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	x, err := e.Execute(ctx, Options{ID: "w", Policy: retry.Default()}, func(ctx context.Context, _ int) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || x.State != FailedTerminal || len(x.Attempts) != 1 {
		t.Fatalf("x = %+v err = %v", x, err)
	}
}

func TestAttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	e, sleeps := newEngine(nil)
	var calls atomic.Int32
	x, err := e.Execute(context.Background(), Options{ID: "w", Policy: retry.Default(), Timeout: 20 * time.Millisecond},
		func(ctx context.Context, attempt int) (any, error) {
			calls.Add(1)
			if attempt == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return "ok", nil
		})
	if err != nil || x.State != Succeeded || calls.Load() != 2 || len(sleeps.Waits()) != 1 {
		t.Fatalf("x = %+v err = %v calls = %d", x, err, calls.Load())
	}
}

func TestIdentityHeldRefusesSecondStart(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	e, _ := newEngine(NewRedisLocker(c, "test:"))

	release := make(chan struct{})
	started := make(chan struct{})
	ctx := context.Background()
	opts := Options{ID: "sync-everflow-manual", Workflow: "sync", Policy: retry.Once()}

	first, err := e.Start(ctx, opts, func(context.Context, int) (any, error) {
		close(started)
		<-release
		return "done", nil
	})
	if err != nil || first.State != Pending {
		t.Fatalf("start: %+v %v", first, err)
	}
	<-started

	if _, err := e.Execute(ctx, opts, func(context.Context, int) (any, error) { return nil, nil }); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start: %v", err)
	}
	if !perr.IsCode(func() error { _, err := e.Start(ctx, opts, nil); return err }(), perr.ErrorCodeConflict) {
		t.Fatalf("conflict code expected")
	}
	if cur, _ := e.Registry().Get(opts.ID); cur.State != Running {
		t.Fatalf("state while running = %s", cur.State)
	}

	close(release)
	x, err := e.Wait(ctx, opts.ID)
	if err != nil || x.State != Succeeded || x.Result != "done" {
		t.Fatalf("wait: %+v %v", x, err)
	}
	e.Drain()
	if mr.Exists("test:sync-everflow-manual") {
		t.Fatalf("lock not released")
	}
	if _, err := e.Execute(ctx, opts, func(context.Context, int) (any, error) { return 1, nil }); err != nil {
		t.Fatalf("rerun after release: %v", err)
	}
}

func TestExecuteValidatesAndWaitUnknown(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(nil)
	if _, err := e.Execute(context.Background(), Options{}, nil); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("missing id: %v", err)
	}
	if _, err := e.Wait(context.Background(), "nope"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("wait unknown: %v", err)
	}
}

func TestRegistryEvictsFinishedOnly(t *testing.T) {
	t.Parallel()

	r := NewRegistry(2)
	mk := func(id string, s State) *Execution {
		x := &Execution{ID: id, RunID: "run-" + id, State: s, done: make(chan struct{})}
		if s.Final() {
			close(x.done)
		}
		return x
	}
	r.put(mk("a", Running))
	r.put(mk("b", Succeeded))
	r.put(mk("c", FailedTerminal))
	if _, ok := r.Get("b"); ok {
		t.Fatalf("oldest finished not evicted")
	}
	if _, ok := r.Get("a"); !ok {
		t.Fatalf("running execution evicted")
	}
	if got := r.List(); len(got) != 2 || got[0].ID != "c" {
		t.Fatalf("list = %+v", got)
	}
}

func TestRegistryKeepsRunsInsideFinally(t *testing.T) {
	t.Parallel()

	r := NewRegistry(1)
	hooked := &Execution{ID: "a", RunID: "run-a", State: Succeeded, done: make(chan struct{})}
	r.put(hooked)
	r.put(&Execution{ID: "b", RunID: "run-b", State: Running, done: make(chan struct{})})
	if _, ok := r.Get("a"); !ok {
		t.Fatalf("run evicted before its waiters were released")
	}

	r.update("run-a", func(x *Execution) { close(x.done) })
	r.put(&Execution{ID: "c", RunID: "run-c", State: Running, done: make(chan struct{})})
	if _, ok := r.Get("a"); ok {
		t.Fatalf("settled run not evicted")
	}
	testkit.MustNotPanic(t, func() {
		if got := r.update("run-a", func(x *Execution) { x.State = FailedTerminal }); got.RunID != "run-a" {
			t.Fatalf("update of evicted run = %+v", got)
		}
	})
}

func TestPolicyNonRetryableSetDrivesEngine(t *testing.T) {
	t.Parallel()

	p := retry.Default()
	p.NonRetryable = []perr.ErrorCode{perr.ErrorCodeTooManyRequests}
	e, sleeps := newEngine(nil)
	x, err := e.Execute(context.Background(), Options{ID: "w", Policy: p}, func(context.Context, int) (any, error) {
		return nil, perr.Newf(perr.ErrorCodeTooManyRequests, "429")
	})
	if !perr.IsCode(err, perr.ErrorCodeTooManyRequests) || x.State != FailedTerminal || len(x.Attempts) != 1 {
		t.Fatalf("x = %+v err = %v", x, err)
	}
	if len(sleeps.Waits()) != 0 {
		t.Fatalf("waits = %v", sleeps.Waits())
	}

	e, _ = newEngine(nil)
	x, err = e.Execute(context.Background(), Options{ID: "w", Policy: p}, func(_ context.Context, n int) (any, error) {
		if n == 1 {
			return nil, perr.Configf("token expired")
		}
		return "ok", nil
	})
	if err != nil || x.State != Succeeded || len(x.Attempts) != 2 {
		t.Fatalf("config outside the set should retry: x = %+v err = %v", x, err)
	}
}

func TestFinallySeesFinalStateBeforeWaiters(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(nil)
	var seen atomic.Value
	opts := Options{ID: "w", Policy: retry.Once(), Finally: func(_ context.Context, x Execution) {
		seen.Store(x.State)
		panic("hook bug")
	}}
	x, err := e.Execute(context.Background(), opts, func(context.Context, int) (any, error) {
		return "partial", perr.Configf("missing key")
	})
	if err == nil || x.State != FailedTerminal || x.Result != "partial" {
		t.Fatalf("x = %+v err = %v", x, err)
	}
	if seen.Load() != FailedTerminal {
		t.Fatalf("finally saw %v", seen.Load())
	}
}
