package durable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signalroom/internal/core/retry"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"github.com/google/uuid"
)

// Activity is the unit of work; attempt is 1-based
type Activity func(ctx context.Context, attempt int) (any, error)

// Options describe one execution
type Options struct {
	// ID is the workflow identity; at most one live execution holds it
	ID       string
	Workflow string
	Policy   retry.Policy
	// Timeout bounds each attempt; zero inherits the caller's deadline
	Timeout time.Duration
	// LockTTL bounds the identity hold between refreshes; zero derives it
	// from Timeout
	LockTTL time.Duration
	// Finally observes the final execution before waiters are released
	Finally func(ctx context.Context, x Execution)
}

func (o Options) lockTTL() time.Duration {
	switch {
	case o.LockTTL > 0:
		return o.LockTTL
	case o.Timeout > 0:
		return o.Timeout + time.Minute
	default:
		return 10 * time.Minute
	}
}

// Engine executes activities under a workflow identity
type Engine struct {
	lock  Locker
	reg   *Registry
	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	wg sync.WaitGroup
}

// Option configures an Engine
type Option func(*Engine)

// WithSleep replaces the backoff sleep
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithClock sets the clock for timestamps
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRegistry shares an execution registry
func WithRegistry(r *Registry) Option { return func(e *Engine) { e.reg = r } }

// New builds an engine; a nil locker means in-process identities
func New(lock Locker, opts ...Option) *Engine {
	if lock == nil {
		lock = NewLocalLocker()
	}
	e := &Engine{lock: lock, reg: NewRegistry(0), sleep: retry.Sleep, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry exposes tracked executions
func (e *Engine) Registry() *Registry { return e.reg }

// Execute runs act to a final state and returns the execution. The error
// is the last attempt's error when the execution failed, ErrAlreadyRunning
// when the identity is held
func (e *Engine) Execute(ctx context.Context, o Options, act Activity) (Execution, error) {
	lk, runID, err := e.begin(ctx, o)
	if err != nil {
		return Execution{}, err
	}
	return e.run(ctx, o, act, lk, runID)
}

// Start claims the identity then runs act in the background, detached from
// ctx cancellation. The returned execution is PENDING
func (e *Engine) Start(ctx context.Context, o Options, act Activity) (Execution, error) {
	lk, runID, err := e.begin(ctx, o)
	if err != nil {
		return Execution{}, err
	}
	snap, _ := e.reg.Get(runID)
	bg := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = e.run(bg, o, act, lk, runID)
	}()
	return snap, nil
}

// Wait blocks until the execution of id (workflow or run id) is final
func (e *Engine) Wait(ctx context.Context, id string) (Execution, error) {
	done, runID, ok := e.reg.doneChan(id)
	if !ok {
		return Execution{}, perr.WithField(perr.NotFoundf("workflow %q not found", id), "id")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return Execution{}, ctx.Err()
	}
	x, _ := e.reg.Get(runID)
	return x, x.err
}

// Drain waits for background executions started by Start
func (e *Engine) Drain() { e.wg.Wait() }

func (e *Engine) begin(ctx context.Context, o Options) (Lock, string, error) {
	if o.ID == "" {
		return nil, "", perr.WithField(perr.InvalidArgf("workflow id is required"), "id")
	}
	if o.Workflow == "" {
		o.Workflow = "workflow"
	}
	lk, err := e.lock.Acquire(ctx, o.ID, o.lockTTL())
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			skippedTotal.WithLabelValues(o.Workflow).Inc()
			return nil, "", perr.WithOp(perr.Wrapf(err, perr.ErrorCodeConflict, "workflow %s already running", o.ID), o.ID)
		}
		return nil, "", err
	}
	x := &Execution{
		ID:       o.ID,
		RunID:    uuid.NewString(),
		Workflow: o.Workflow,
		State:    Pending,
		Created:  e.now().UTC(),
		done:     make(chan struct{}),
	}
	e.reg.put(x)
	return lk, x.RunID, nil
}

// move applies a transition the engine itself decided; an illegal one is a bug
func (x *Execution) move(next State) {
	s, err := x.State.Transition(next)
	if err != nil {
		panic(err)
	}
	x.State = s
}

func (e *Engine) run(ctx context.Context, o Options, act Activity, lk Lock, runID string) (Execution, error) {
	if o.Workflow == "" {
		o.Workflow = "workflow"
	}
	ctx = logger.WithRun(ctx, o.ID, runID)
	log := logger.C(ctx).With().Str("workflow", o.Workflow).Logger()

	running.WithLabelValues(o.Workflow).Inc()
	stop := e.keepAlive(ctx, lk, o.lockTTL())
	defer func() {
		stop()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lk.Release(rctx); err != nil {
			log.Warn().Err(err).Msg("release workflow lock")
		}
		running.WithLabelValues(o.Workflow).Dec()
	}()

	attempts := o.Policy.MaxAttempts()
	for n := 1; ; n++ {
		e.reg.update(runID, func(x *Execution) {
			x.move(Running)
			x.Attempts = append(x.Attempts, Attempt{N: n, Started: e.now().UTC()})
		})

		val, err := e.attempt(ctx, o.Timeout, act, n)
		if err == nil {
			attemptsTotal.WithLabelValues(o.Workflow, "succeeded").Inc()
			return e.finish(ctx, o, runID, func(x *Execution) {
				x.Attempts[len(x.Attempts)-1].Finished = e.now().UTC()
				x.move(Succeeded)
				x.Result = val
			}, nil)
		}

		terminal, why := false, ""
		switch {
		case ctx.Err() != nil:
			terminal, why = true, "cancelled"
		case !o.Policy.Retryable(err):
			terminal, why = true, "non-retryable"
		case n >= attempts:
			terminal, why = true, "attempts exhausted"
		}
		var wait time.Duration
		if !terminal {
			wait = o.Policy.Backoff(n)
		}
		code := perr.CodeOf(err).String()
		attemptsTotal.WithLabelValues(o.Workflow, code).Inc()

		snap := e.reg.update(runID, func(x *Execution) {
			a := &x.Attempts[len(x.Attempts)-1]
			a.Finished, a.Code, a.Error, a.Backoff = e.now().UTC(), code, perr.Root(err).Error(), wait
			if val != nil {
				x.Result = val
			}
			if terminal {
				x.move(FailedTerminal)
			} else {
				x.move(FailedRetryable)
			}
		})

		if terminal {
			log.Error().Err(err).Int("attempt", n).Str("reason", why).Msg("workflow failed")
			return e.finish(ctx, o, runID, func(x *Execution) { x.fail(err) }, err)
		}
		log.Warn().Err(err).Int("attempt", n).Dur("backoff", wait).Str("state", string(snap.State)).Msg("attempt failed, retrying")

		if serr := e.sleep(ctx, wait); serr != nil {
			log.Error().Err(serr).Int("attempt", n).Msg("workflow cancelled during backoff")
			return e.finish(ctx, o, runID, func(x *Execution) {
				x.move(FailedTerminal)
				x.fail(err)
			}, err)
		}
	}
}

func (x *Execution) fail(err error) {
	x.err = err
	x.Code = perr.CodeOf(err).String()
	x.Error = perr.Root(err).Error()
}

func (e *Engine) finish(ctx context.Context, o Options, runID string, fn func(*Execution), err error) (Execution, error) {
	snap := e.reg.update(runID, func(x *Execution) {
		fn(x)
		x.Finished = e.now().UTC()
	})
	executionsTotal.WithLabelValues(o.Workflow, string(snap.State)).Inc()
	snap.err = err
	if o.Finally != nil {
		e.finally(ctx, o.Finally, snap)
	}
	e.reg.update(runID, func(x *Execution) { close(x.done) })
	return snap, err
}

func (e *Engine) finally(ctx context.Context, fn func(context.Context, Execution), x Execution) {
	defer func() {
		if r := recover(); r != nil {
			logger.C(ctx).Error().Interface("panic", r).Msg("workflow finally hook panicked")
		}
	}()
	fn(context.WithoutCancel(ctx), x)
}

// attempt runs act once under the attempt timeout with panics recovered
func (e *Engine) attempt(ctx context.Context, timeout time.Duration, act Activity, n int) (val any, err error) {
	actx, cancel := withChildTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, perr.PanicErrf("activity panic: %v", r)
		}
	}()
	val, err = act(actx, n)
	if err == nil && actx.Err() != nil && ctx.Err() == nil {
		return nil, perr.Wrap(actx.Err(), perr.ErrorCodeUnavailable, fmt.Sprintf("attempt %d timed out", n))
	}
	return val, err
}

// keepAlive refreshes the identity every third of ttl until stopped
func (e *Engine) keepAlive(ctx context.Context, lk Lock, ttl time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(max(ttl/3, time.Second))
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := lk.Refresh(ctx, ttl); err != nil && ctx.Err() == nil {
					logger.C(ctx).Warn().Err(err).Msg("refresh workflow lock")
				}
			}
		}
	}()
	return func() { cancel(); <-done }
}

// withChildTimeout takes the tighter of d and the parent's remaining budget;
// zero d inherits the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if dl, ok := parent.Deadline(); ok && time.Until(dl) < d {
		return context.WithDeadline(parent, dl)
	}
	return context.WithTimeout(parent, d)
}
