package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"signalroom/internal/platform/logger"
	"signalroom/internal/services/orchestrator/durable"
	"signalroom/internal/services/scheduler/domain"

	"github.com/robfig/cron/v3"
)

// Entry is a registered schedule and its fire times
type Entry struct {
	Schedule domain.Schedule `json:"schedule"`
	Next     time.Time       `json:"next,omitzero"`
	Prev     time.Time       `json:"prev,omitzero"`
}

type registered struct {
	id   cron.EntryID
	spec domain.Schedule
}

// Scheduler keeps cron entries in step with the default and stored schedules
type Scheduler struct {
	wf       Workflows
	store    domain.Store
	defaults []domain.Schedule
	cron     *cron.Cron
	fire     func(context.Context, domain.Schedule) error

	mu      sync.Mutex
	entries map[string]registered
	ctx     context.Context
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithFire replaces the job body
func WithFire(fn func(context.Context, domain.Schedule) error) Option {
	return func(s *Scheduler) { s.fire = fn }
}

// New builds a scheduler in UTC; store may be nil for defaults only
func New(wf Workflows, store domain.Store, defaults []domain.Schedule, opts ...Option) *Scheduler {
	cl := cronLogger{}
	s := &Scheduler{
		wf:       wf,
		store:    store,
		defaults: defaults,
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithParser(domain.Parser), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		entries:  map[string]registered{},
		ctx:      context.Background(),
	}
	s.fire = func(ctx context.Context, sc domain.Schedule) error { return Fire(ctx, s.wf, sc) }
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reload registers added or changed schedules and drops removed or paused
// ones. It returns the number of active entries
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	var stored []domain.Schedule
	if s.store != nil {
		var err error
		if stored, err = s.store.List(ctx); err != nil {
			return 0, err
		}
	}
	want := map[string]domain.Schedule{}
	for _, sc := range domain.Merge(s.defaults, stored) {
		if sc.Paused {
			continue
		}
		if err := sc.Validate(); err != nil {
			logger.C(ctx).Error().Err(err).Str("schedule", sc.ID).Msg("invalid schedule skipped")
			continue
		}
		want[sc.ID] = sc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	log := logger.C(ctx)
	for id, r := range s.entries {
		if sc, ok := want[id]; ok && reflect.DeepEqual(sc, r.spec) {
			continue
		}
		s.cron.Remove(r.id)
		delete(s.entries, id)
		log.Info().Str("schedule", id).Msg("schedule removed")
	}
	for id, sc := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		eid, err := s.cron.AddJob(sc.Cron, s.job(sc))
		if err != nil {
			log.Error().Err(err).Str("schedule", id).Msg("schedule not registered")
			continue
		}
		s.entries[id] = registered{id: eid, spec: sc}
		log.Info().Str("schedule", id).Str("cron", sc.Cron).Msg("schedule registered")
	}
	return len(s.entries), nil
}

// job fires sc; a fire whose identity is still running is skipped
func (s *Scheduler) job(sc domain.Schedule) cron.Job {
	return cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		log := logger.C(ctx).With().Str("schedule", sc.ID).Logger()
		started := time.Now()
		err := s.fire(ctx, sc)
		switch {
		case errors.Is(err, durable.ErrAlreadyRunning):
			log.Warn().Msg("previous run still active, fire skipped")
		case err != nil:
			log.Error().Err(err).Dur("took", time.Since(started)).Msg("scheduled run failed")
		default:
			log.Info().Dur("took", time.Since(started)).Msg("scheduled run done")
		}
	})
}

// Entries lists registered schedules with their next fire time. Before
// Start the next time is computed from now
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, r := range s.entries {
		e := s.cron.Entry(r.id)
		next := e.Next
		if next.IsZero() && e.Schedule != nil {
			next = e.Schedule.Next(time.Now().UTC())
		}
		out = append(out, Entry{Schedule: r.spec, Next: next, Prev: e.Prev})
	}
	sortEntries(out)
	return out
}

// Run loads the schedules, starts the calendar and reloads every interval
// until ctx ends; running jobs are awaited on the way out
func (s *Scheduler) Run(ctx context.Context, every time.Duration) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	if _, err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	log := logger.Named("scheduler")
	log.Info().Int("entries", len(s.Entries())).Msg("scheduler started")

	var tick <-chan time.Time
	if every > 0 {
		t := time.NewTicker(every)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			log.Info().Msg("scheduler stopped")
			return nil
		case <-tick:
			if _, err := s.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("schedule reload failed")
			}
		}
	}
}

// Next returns the next UTC fire time of spec after t
func Next(spec string, t time.Time) (time.Time, error) {
	sch, err := domain.Parser.Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sch.Next(t.UTC()), nil
}
