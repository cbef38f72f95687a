// Package cursor resolves fetch windows from persisted watermarks and advances
// them monotonically after successful writes
package cursor

import (
	"context"
	"strings"
	"time"

	"signalroom/internal/core/normalize"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
)

// Kind is the value space of a watermark
type Kind uint8

const (
	// KindNone marks resources that are fully re-read every run
	KindNone Kind = iota
	// KindDate is a closed calendar day, YYYY-MM-DD
	KindDate
	// KindTimestamp is an instant in normalize.TimestampLayout
	KindTimestamp
	// KindFileDate is the date parsed from an object key, YYYY-MM-DD
	KindFileDate
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindFileDate:
		return "file_date"
	default:
		return "none"
	}
}

// End selects the upper bound of a window
type End uint8

const (
	// EndDefault is yesterday for day kinds and now for timestamps
	EndDefault End = iota
	// EndYesterday excludes the still-open current day
	EndYesterday
	// EndToday includes the current day
	EndToday
	// EndNow is the current instant
	EndNow
)

// ParseEnd maps a config value to End; unknown values keep the default
func ParseEnd(s string) End {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yesterday":
		return EndYesterday
	case "today":
		return EndToday
	case "now":
		return EndNow
	default:
		return EndDefault
	}
}

// Policy describes how one resource's window is derived
type Policy struct {
	Kind Kind
	// Field is the normalized column whose max advances the watermark
	Field string
	// Initial is the first-run start; when empty Lookback from now is used
	Initial  string
	Lookback time.Duration
	End      End
}

// Key identifies one watermark
type Key struct {
	Source   string
	Resource string
}

func (k Key) String() string { return k.Source + "." + k.Resource }

// Window is the resolved fetch range for one run
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
	// Watermark is the persisted value the window was derived from, if any
	Watermark string `json:"watermark,omitempty"`
	// Current reports start > end: the resource is already up to date
	Current    bool `json:"current"`
	Overridden bool `json:"overridden,omitempty"`
}

// Override is a caller-supplied window that bypasses the watermark
type Override struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Store persists watermarks. Put must never lower a stored value
type Store interface {
	Get(ctx context.Context, k Key) (value string, ok bool, err error)
	Put(ctx context.Context, k Key, kind Kind, value string) error
}

// Tracker reads and advances watermarks through a Store
type Tracker struct {
	store Store
	now   func() time.Time
	loc   *time.Location
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithLocation sets the zone that decides where a day ends (default UTC)
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// New builds a Tracker over store
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Window resolves the fetch range for k. A nil override uses the watermark
// (or the policy's initial value); start > end yields Current
func (t *Tracker) Window(ctx context.Context, k Key, p Policy, o *Override) (Window, error) {
	end := t.end(p)

	if o != nil && o.Start != "" {
		w := Window{Start: o.Start, End: o.End, Overridden: true}
		if w.End == "" {
			w.End = end
		}
		w.Current = Compare(p.Kind, w.Start, w.End) > 0
		return w, nil
	}

	if p.Kind == KindNone {
		return Window{}, nil
	}

	mark, ok, err := t.store.Get(ctx, k)
	if err != nil {
		return Window{}, perr.Wrapf(err, perr.CodeOf(err), "read cursor %s", k)
	}

	w := Window{End: end}
	switch {
	case !ok || mark == "":
		w.Start = t.initial(p)
	case p.Kind == KindDate:
		w.Watermark = mark
		w.Start = nextDay(mark)
	default:
		w.Watermark = mark
		w.Start = mark
	}
	w.Current = Compare(p.Kind, w.Start, w.End) > 0
	if w.Current {
		logger.C(ctx).Info().
			Str("cursor", k.String()).
			Str("start", w.Start).
			Str("end", w.End).
			Msg("already current")
	}
	return w, nil
}

// Advance stores max(current, observed). It reports whether the watermark moved.
// Empty observations and regressions are ignored
func (t *Tracker) Advance(ctx context.Context, k Key, kind Kind, observed string) (bool, error) {
	if kind == KindNone || observed == "" {
		return false, nil
	}
	cur, ok, err := t.store.Get(ctx, k)
	if err != nil {
		return false, perr.Wrapf(err, perr.CodeOf(err), "read cursor %s", k)
	}
	if ok && Compare(kind, observed, cur) <= 0 {
		return false, nil
	}
	if err := t.store.Put(ctx, k, kind, observed); err != nil {
		return false, perr.Wrapf(err, perr.CodeOf(err), "advance cursor %s", k)
	}
	logger.C(ctx).Debug().
		Str("cursor", k.String()).
		Str("from", cur).
		Str("to", observed).
		Msg("cursor advanced")
	return true, nil
}

func (t *Tracker) end(p Policy) string {
	now := t.now().In(t.loc)
	e := p.End
	if e == EndDefault {
		e = EndYesterday
		if p.Kind == KindTimestamp {
			e = EndNow
		}
	}
	switch e {
	case EndNow:
		if p.Kind == KindTimestamp {
			return now.UTC().Format(normalize.TimestampLayout)
		}
		return now.Format(time.DateOnly)
	case EndToday:
		return now.Format(time.DateOnly)
	default:
		return now.AddDate(0, 0, -1).Format(time.DateOnly)
	}
}

func (t *Tracker) initial(p Policy) string {
	if p.Initial != "" {
		return p.Initial
	}
	from := t.now().In(t.loc).Add(-p.Lookback)
	if p.Kind == KindTimestamp {
		return from.UTC().Format(normalize.TimestampLayout)
	}
	// a zero lookback on a closed day cursor starts at yesterday
	if p.Lookback == 0 && p.Kind == KindDate {
		from = from.AddDate(0, 0, -1)
	}
	return from.Format(time.DateOnly)
}

func nextDay(s string) string {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return d.AddDate(0, 0, 1).Format(time.DateOnly)
}

// Compare orders two watermark values of kind. Parseable values compare as
// time, anything else falls back to lexical order
func Compare(kind Kind, a, b string) int {
	ta, errA := parse(kind, a)
	tb, errB := parse(kind, b)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

func parse(kind Kind, s string) (time.Time, error) {
	if kind == KindTimestamp {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.DateTime, s); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.DateOnly, s)
}
