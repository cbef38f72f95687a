package notify

import (
	"context"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOptions configures the sms transport
type TwilioOptions struct {
	AccountSID string
	AuthToken  string
	From       string
}

// messageCreator is the slice of the twilio API the sender calls
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type smsSender struct {
	api  messageCreator
	from string
}

func newSMS(o TwilioOptions) *smsSender {
	if o.AuthToken == "" || o.AccountSID == "" {
		return nil
	}
	c := twilio.NewRestClientWithParams(twilio.ClientParams{Username: o.AccountSID, Password: o.AuthToken})
	return &smsSender{api: c.Api, from: o.From}
}

// send honors ctx around the blocking SDK call
func (s *smsSender) send(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	type result struct {
		msg *openapi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := s.api.CreateMessage(params)
		done <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return perr.Wrap(ctx.Err(), perr.ErrorCodeUnavailable, "twilio sms")
	case r := <-done:
		if r.err != nil {
			return perr.Wrap(r.err, perr.ErrorCodeUnavailable, "twilio sms")
		}
		sid := ""
		if r.msg != nil && r.msg.Sid != nil {
			sid = *r.msg.Sid
		}
		logger.C(ctx).Info().Str("to", to).Str("sid", sid).Msg("sms sent")
		return nil
	}
}
