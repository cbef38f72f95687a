package notify

import (
	"context"
	"net/url"
	"strings"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"github.com/resend/resend-go/v2"
)

// ResendOptions configures the email transport
type ResendOptions struct {
	APIKey  string
	From    string
	Subject string
	// BaseURL overrides https://api.resend.com/
	BaseURL string
}

type emailSender struct {
	client  *resend.Client
	from    string
	subject string
}

func newEmail(o ResendOptions) *emailSender {
	if o.APIKey == "" {
		return nil
	}
	c := resend.NewClient(o.APIKey)
	if o.BaseURL != "" {
		if u, err := url.Parse(strings.TrimRight(o.BaseURL, "/") + "/"); err == nil {
			c.BaseURL = u
		}
	}
	subject := o.Subject
	if subject == "" {
		subject = "SignalRoom Alert"
	}
	return &emailSender{client: c, from: o.From, subject: subject}
}

func (e *emailSender) send(ctx context.Context, to, subject, html string) error {
	if subject == "" {
		subject = e.subject
	}
	res, err := e.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    e.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "resend email")
	}
	logger.C(ctx).Info().Str("to", to).Str("id", res.Id).Msg("email sent")
	return nil
}
