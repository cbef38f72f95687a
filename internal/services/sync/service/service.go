// Package service runs one source sync: window, fetch, normalize, write, advance
package service

import (
	"context"
	"runtime/debug"
	"slices"
	"time"

	"signalroom/internal/adapters/sources"
	"signalroom/internal/core/cursor"
	"signalroom/internal/core/normalize"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
	dom "signalroom/internal/services/sync/domain"

	"github.com/google/uuid"
)

// Option configures a Service
type Option func(*Service)

// WithClock overrides time.Now for stamps and cursor ends
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets the zone whose midnight closes a day
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// Service implements domain.RunnerPort
type Service struct {
	catalog dom.Catalog
	dest    dom.Destination
	tracker *cursor.Tracker
	now     func() time.Time
	loc     *time.Location
}

// New builds the sync service
func New(cat dom.Catalog, dest dom.Destination, cursors dom.CursorStore, opts ...Option) *Service {
	s := &Service{catalog: cat, dest: dest, now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(s)
	}
	s.tracker = cursor.New(cursors, cursor.WithClock(s.now), cursor.WithLocation(s.loc))
	return s
}

// Run syncs in.Source resource by resource. It never panics and never
// returns an error: failures land in Result.Err with a structured code.
// A resource's cursor advances only after its write fully succeeded
func (s *Service) Run(ctx context.Context, in dom.Input) (res dom.Result) {
	res = dom.Result{
		RunID:     uuid.NewString(),
		Source:    in.Source,
		DryRun:    in.DryRun,
		StartedAt: s.now().UTC(),
		Success:   true,
	}
	ctx = logger.WithSource(logger.WithRun(ctx, "", res.RunID), string(in.Source))
	log := logger.C(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("stack", string(debug.Stack())).Msgf("sync panicked: %v", rec)
			res.Fail(perr.PanicErrf("sync %s panicked: %v", in.Source, rec))
		}
		res.FinishedAt = s.now().UTC()
		runsTotal.WithLabelValues(string(in.Source), outcome(res.Success, res.Current, res.DryRun)).Inc()
		runSeconds.WithLabelValues(string(in.Source)).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

		ev := log.Info()
		if !res.Success {
			ev = log.Error().Err(res.Err).Str("code", res.Code)
		}
		ev.Int("rows", res.Rows).
			Int("skipped", res.Skipped).
			Bool("current", res.Current).
			Dur("took", res.FinishedAt.Sub(res.StartedAt)).
			Msg("sync finished")
	}()

	client, src, selected, err := s.resolve(in)
	if err != nil {
		res.Fail(err)
		return res
	}
	res.ClientID = client.ID
	log.Info().Strs("resources", names(selected)).Str("client", client.ID).Bool("dry_run", in.DryRun).Msg("sync starting")

	stamp := normalize.NewStamp(client.ID, s.now)
	current := len(selected) > 0
	for _, r := range selected {
		rr, err := s.resource(ctx, src, r, in, client.ID, stamp)
		res.Resources = append(res.Resources, rr)
		res.Rows += rr.Loaded
		res.Skipped += rr.Skipped
		current = current && rr.Window.Current
		if err != nil {
			res.Fail(err)
			return res
		}
	}
	res.Current = current
	return res
}

// Plan resolves every selected resource's window without fetching
func (s *Service) Plan(ctx context.Context, in dom.Input) (dom.Plan, error) {
	client, _, selected, err := s.resolve(in)
	if err != nil {
		return dom.Plan{}, err
	}
	p := dom.Plan{Source: in.Source, ClientID: client.ID}
	for _, r := range selected {
		w, err := s.tracker.Window(ctx, cursor.Key{Source: string(in.Source), Resource: r.Name}, r.Cursor, in.Override)
		if err != nil {
			return dom.Plan{}, err
		}
		p.Resources = append(p.Resources, dom.PlannedWrite{
			Resource:    r.Name,
			Disposition: r.Disposition,
			Key:         r.Key,
			Cursor:      r.Cursor.Kind.String(),
			Window:      w,
		})
	}
	return p, nil
}

func (s *Service) resolve(in dom.Input) (dom.Client, sources.Source, []sources.Resource, error) {
	if _, err := dom.ParseSource(string(in.Source)); err != nil {
		return dom.Client{}, nil, nil, err
	}
	client, err := dom.LookupClient(in.ClientID)
	if err != nil {
		return dom.Client{}, nil, nil, err
	}
	if in.Override != nil && in.Override.End != "" && in.Override.Start == "" {
		return dom.Client{}, nil, nil, perr.WithField(perr.InvalidArgf("window end without start"), "start")
	}
	src, err := s.catalog.Open(in.Source, in.Kwargs)
	if err != nil {
		return dom.Client{}, nil, nil, err
	}
	all := src.Resources()
	if len(in.Resources) == 0 {
		return client, src, all, nil
	}
	selected := make([]sources.Resource, 0, len(in.Resources))
	for _, name := range in.Resources {
		r, ok := sources.Find(src, name)
		if !ok {
			return dom.Client{}, nil, nil, perr.WithField(sources.UnknownResource(string(in.Source), name), "resources")
		}
		if !slices.ContainsFunc(selected, func(x sources.Resource) bool { return x.Name == r.Name }) {
			selected = append(selected, r)
		}
	}
	return client, src, selected, nil
}

func (s *Service) resource(
	ctx context.Context,
	src sources.Source,
	r sources.Resource,
	in dom.Input,
	clientID string,
	stamp normalize.Stamp,
) (dom.ResourceResult, error) {
	key := cursor.Key{Source: string(in.Source), Resource: r.Name}
	rr := dom.ResourceResult{Resource: r.Name, Disposition: r.Disposition}
	log := logger.C(ctx).With().Str("resource", r.Name).Logger()

	w, err := s.tracker.Window(ctx, key, r.Cursor, in.Override)
	if err != nil {
		return rr, err
	}
	rr.Window, rr.Watermark = w, w.Watermark
	if w.Current {
		return rr, nil
	}

	raws, err := src.Fetch(ctx, r.Name, w)
	if err != nil {
		return rr, perr.WithOp(err, "fetch "+key.String())
	}
	rr.Fetched = len(raws)

	out := r.Schema.Batch(raws, stamp)
	rr.Skipped = out.Skipped
	rowsSkipped.WithLabelValues(key.Source, key.Resource).Add(float64(out.Skipped))
	if out.Skipped > 0 {
		log.Warn().Int("skipped", out.Skipped).Strs("key", r.Key).Msg("rows missing key fields")
	}

	if in.DryRun {
		log.Info().Int("fetched", rr.Fetched).Int("rows", len(out.Rows)).Msg("dry run, nothing written")
		return rr, nil
	}
	if len(out.Rows) > 0 || r.Disposition == sources.Replace {
		n, err := s.dest.Write(ctx, dom.Batch{
			Source:      in.Source,
			Resource:    r.Name,
			ClientID:    clientID,
			Disposition: r.Disposition,
			Key:         r.Key,
			Rows:        out.Rows,
		})
		if err != nil {
			code := perr.CodeOf(err)
			if code == perr.ErrorCodeUnknown {
				code = perr.ErrorCodeDB
			}
			return rr, perr.Wrapf(err, code, "write %s", key)
		}
		rr.Loaded = n
		rowsLoaded.WithLabelValues(key.Source, key.Resource).Add(float64(n))
	}

	if r.Cursor.Kind != cursor.KindNone {
		observed := normalize.Max(out.Rows, r.Cursor.Field)
		moved, err := s.tracker.Advance(ctx, key, r.Cursor.Kind, observed)
		if err != nil {
			return rr, err
		}
		rr.Advanced = moved
		if moved {
			rr.Watermark = observed
		}
	}
	log.Info().
		Str("disposition", string(r.Disposition)).
		Str("start", w.Start).
		Str("end", w.End).
		Int("fetched", rr.Fetched).
		Int("loaded", rr.Loaded).
		Int("skipped", rr.Skipped).
		Str("watermark", rr.Watermark).
		Msg("resource synced")
	return rr, nil
}

func names(rs []sources.Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}
