// Package service runs reports: load data, render for a channel, optionally send
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"signalroom/internal/adapters/notify"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
	"signalroom/internal/platform/net/http/bind"
	"signalroom/internal/services/reports/domain"
	"signalroom/internal/services/reports/render"
)

// Loader returns the single data row of a named query; ok is false when
// nothing matched
type Loader interface {
	Row(ctx context.Context, query string, args ...any) (map[string]any, bool, error)
}

// Notifier delivers rendered reports
type Notifier interface {
	Send(ctx context.Context, channel notify.Channel, message, recipient string) error
	Email(ctx context.Context, to, subject, html string) error
}

// Request asks for one report rendering
type Request struct {
	Report    string         `json:"report" validate:"required"`
	Channel   notify.Channel `json:"channel,omitempty" validate:"omitempty,oneof=slack email sms"`
	Date      string         `json:"date,omitempty" validate:"isodate"`
	Params    map[string]any `json:"params,omitempty"`
	Send      bool           `json:"send"`
	Recipient string         `json:"recipient,omitempty"`
}

// Output is a rendered report
type Output struct {
	Report    string         `json:"report"`
	Channel   notify.Channel `json:"channel"`
	Date      string         `json:"date,omitempty"`
	Content   string         `json:"content"`
	NoData    bool           `json:"no_data"`
	Sent      bool           `json:"sent"`
	Recipient string         `json:"recipient,omitempty"`
}

// Runner renders registered reports
type Runner struct {
	reg    *domain.Registry
	render *render.Renderer
	load   Loader
	send   Notifier
	opts   Options
	now    func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithClock fixes the clock used for the default date
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New builds a runner; load and send may be nil when no report needs them
func New(reg *domain.Registry, rd *render.Renderer, load Loader, send Notifier, o Options, opts ...Option) *Runner {
	if o.DayZone == nil {
		o.DayZone = time.UTC
	}
	r := &Runner{reg: reg, render: rd, load: load, send: send, opts: o, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry exposes the report set
func (r *Runner) Registry() *domain.Registry { return r.reg }

// Run loads, renders and, when asked, sends one report
func (r *Runner) Run(ctx context.Context, req Request) (Output, error) {
	if err := bind.Validate(req); err != nil {
		return Output{}, err
	}
	rep, err := r.reg.Get(req.Report)
	if err != nil {
		return Output{}, err
	}
	ch := req.Channel
	if ch == "" {
		ch = notify.Slack
	}
	if _, err := rep.Template(ch); err != nil {
		return Output{}, err
	}

	params := rep.Merge(req.Params)
	if req.Date != "" {
		params["date"] = req.Date
	}
	if d, _ := params["date"].(string); d == "" {
		params["date"] = r.now().In(r.opts.DayZone).AddDate(0, 0, -1).Format(time.DateOnly)
	}

	out := Output{Report: rep.Name, Channel: ch}
	if rep.Query != "" {
		out.Date, _ = params["date"].(string)
	}
	data, noData, err := r.data(ctx, rep, params)
	if err != nil {
		return out, err
	}
	out.NoData = noData

	out.Content, err = r.render.Render(rep, ch, data)
	if err != nil {
		return out, err
	}

	log := logger.C(ctx).With().Str("report", rep.Name).Str("channel", string(ch)).Logger()
	if !req.Send {
		log.Debug().Int("length", len(out.Content)).Msg("report rendered")
		return out, nil
	}
	if r.send == nil {
		return out, perr.Configf("report delivery is not configured")
	}
	out.Recipient, err = r.deliver(ctx, ch, out.Content, req.Recipient)
	if err != nil {
		return out, err
	}
	out.Sent = true
	log.Info().Str("recipient", out.Recipient).Bool("no_data", out.NoData).Msg("report sent")
	return out, nil
}

// Alert renders and optionally sends the alert report
func (r *Runner) Alert(ctx context.Context, a domain.Alert, ch notify.Channel, send bool) (Output, error) {
	if a.Timestamp.IsZero() {
		a.Timestamp = r.now()
	}
	return r.Run(ctx, Request{Report: "alert", Channel: ch, Params: a.Data(), Send: send})
}

func (r *Runner) data(ctx context.Context, rep domain.Report, params map[string]any) (map[string]any, bool, error) {
	if rep.Query == "" {
		return params, false, nil
	}
	if r.load == nil {
		return nil, false, perr.Configf("report %q needs a postgres connection", rep.Name)
	}
	args := make([]any, len(rep.Args))
	for i, name := range rep.Args {
		v, ok := params[name]
		if !ok || v == nil {
			return nil, false, perr.WithField(perr.InvalidArgf("report %q needs param %q", rep.Name, name), name)
		}
		args[i] = fmt.Sprint(v)
	}

	row, ok, err := r.load.Row(ctx, rep.Query, args...)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		logger.C(ctx).Info().Str("report", rep.Name).Any("params", params).Msg("no report data, rendering zeros")
		zero := map[string]any{}
		if rep.Zero != nil {
			zero = rep.Zero(params)
		}
		return withParams(zero, params), true, nil
	}
	for k, v := range row {
		row[k] = decodeJSON(v)
	}
	return withParams(row, params), false, nil
}

// withParams adds params the data does not already carry
func withParams(data, params map[string]any) map[string]any {
	out := maps.Clone(params)
	maps.Copy(out, data)
	return out
}

// decodeJSON expands JSON text columns (arrays and objects) into values
func decodeJSON(v any) any {
	var raw []byte
	switch s := v.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		return v
	}
	t := strings.TrimSpace(string(raw))
	if t == "" || (t[0] != '[' && t[0] != '{') {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(t), &out); err != nil {
		return v
	}
	return out
}

func (r *Runner) deliver(ctx context.Context, ch notify.Channel, content, to string) (string, error) {
	switch ch {
	case notify.Email:
		if to == "" {
			to = r.opts.EmailTo
		}
		if to == "" {
			return "", perr.WithField(perr.Configf("no email recipient, set REPORT_EMAIL_TO"), "recipient")
		}
		return to, r.send.Email(ctx, to, r.opts.Subject, content)
	case notify.SMS:
		if to == "" {
			to = r.opts.SMSTo
		}
		if to == "" {
			return "", perr.WithField(perr.Configf("no sms recipient, set REPORT_SMS_TO"), "recipient")
		}
		return to, r.send.Send(ctx, ch, content, to)
	default:
		return to, r.send.Send(ctx, ch, content, to)
	}
}
