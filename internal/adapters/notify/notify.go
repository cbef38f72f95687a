// Package notify delivers operator messages over slack, email and sms.
// A channel without credentials logs a warning and drops the message
package notify

import (
	"context"
	"errors"
	"strings"

	"signalroom/internal/platform/config"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"
	"signalroom/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Channel names a transport
type Channel string

// Channels
const (
	Slack Channel = "slack"
	Email Channel = "email"
	SMS   Channel = "sms"
)

// ParseChannel validates s; "" is Slack
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return Slack, nil
	case Slack, Email, SMS:
		return c, nil
	}
	return "", perr.WithField(perr.InvalidArgf("unknown notification channel %q", s), "channel")
}

// Sender is the transport surface callers depend on
type Sender interface {
	Send(ctx context.Context, channel Channel, message, recipient string) error
}

// Options groups the per-channel settings
type Options struct {
	Slack  SlackOptions
	Resend ResendOptions
	Twilio TwilioOptions
}

// FromConfig reads SLACK_*, RESEND_* and TWILIO_*
func FromConfig(cfg config.Conf) Options {
	s, r, t := cfg.Prefix("SLACK_"), cfg.Prefix("RESEND_"), cfg.Prefix("TWILIO_")
	return Options{
		Slack: SlackOptions{
			Token:   s.MayString("BOT_TOKEN", ""),
			Channel: s.MayString("CHANNEL_ID", ""),
			APIURL:  s.MayString("API_URL", ""),
		},
		Resend: ResendOptions{
			APIKey:  r.MayString("API_KEY", ""),
			From:    r.MayString("FROM_EMAIL", "SignalRoom <alerts@signalroom.local>"),
			Subject: r.MayString("SUBJECT", "SignalRoom Alert"),
			BaseURL: r.MayString("BASE_URL", ""),
		},
		Twilio: TwilioOptions{
			AccountSID: t.MayString("ACCOUNT_SID", ""),
			AuthToken:  t.MayString("AUTH_TOKEN", ""),
			From:       t.MayString("FROM_NUMBER", ""),
		},
	}
}

var sent = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "notify",
	Name:      "messages_total",
	Help:      "Notification attempts by channel and outcome.",
}, []string{"channel", "outcome"})

// Dispatcher routes messages to the configured transports
type Dispatcher struct {
	slack *slackSender
	email *emailSender
	sms   *smsSender
	log   logger.Logger
}

// New builds a Dispatcher; transports without credentials stay nil
func New(o Options) *Dispatcher {
	return &Dispatcher{
		slack: newSlack(o.Slack),
		email: newEmail(o.Resend),
		sms:   newSMS(o.Twilio),
		log:   *logger.Named("notify"),
	}
}

// Send satisfies Sender. Email and sms need a recipient; slack uses the
// configured channel when recipient is empty
func (d *Dispatcher) Send(ctx context.Context, channel Channel, message, recipient string) error {
	return d.observe(channel, d.send(ctx, channel, message, recipient))
}

// Email sends html with an explicit subject
func (d *Dispatcher) Email(ctx context.Context, to, subject, html string) error {
	return d.observe(Email, d.sendEmail(ctx, to, subject, html))
}

// errSkipped marks a message dropped for lack of credentials
var errSkipped = perr.Configf("notification channel not configured")

func (d *Dispatcher) observe(c Channel, err error) error {
	outcome := "sent"
	switch {
	case errors.Is(err, errSkipped):
		err, outcome = nil, "skipped"
	case err != nil:
		outcome = "failed"
		d.log.Error().Err(err).Str("channel", string(c)).Msg("notification failed")
	}
	sent.WithLabelValues(string(c), outcome).Inc()
	return err
}

func (d *Dispatcher) send(ctx context.Context, channel Channel, message, recipient string) error {
	switch channel {
	case Slack, "":
		if d.slack == nil {
			return d.skip(Slack)
		}
		return d.slack.send(ctx, recipient, message)
	case Email:
		subject := ""
		if d.email != nil {
			subject = d.email.subject
		}
		return d.sendEmail(ctx, recipient, subject, message)
	case SMS:
		if strings.TrimSpace(recipient) == "" {
			return perr.WithField(perr.InvalidArgf("sms recipient required"), "recipient")
		}
		if d.sms == nil {
			return d.skip(SMS)
		}
		return d.sms.send(ctx, recipient, message)
	}
	return perr.WithField(perr.InvalidArgf("unknown notification channel %q", channel), "channel")
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, html string) error {
	if strings.TrimSpace(to) == "" {
		return perr.WithField(perr.InvalidArgf("email recipient required"), "recipient")
	}
	if d.email == nil {
		return d.skip(Email)
	}
	return d.email.send(ctx, to, subject, html)
}

func (d *Dispatcher) skip(c Channel) error {
	d.log.Warn().Str("channel", string(c)).Msg("notification channel not configured, message dropped")
	return errSkipped
}
