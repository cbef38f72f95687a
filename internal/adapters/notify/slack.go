package notify

import (
	"context"
	"strings"

	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"github.com/slack-go/slack"
)

// SlackOptions configures chat.postMessage
type SlackOptions struct {
	Token   string
	Channel string
	// APIURL overrides https://slack.com/api/
	APIURL string
}

type slackSender struct {
	api     *slack.Client
	channel string
}

func newSlack(o SlackOptions) *slackSender {
	if o.Token == "" {
		return nil
	}
	var opts []slack.Option
	if o.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(o.APIURL, "/")+"/"))
	}
	return &slackSender{api: slack.New(o.Token, opts...), channel: o.Channel}
}

func (s *slackSender) send(ctx context.Context, channel, text string) error {
	if channel == "" {
		channel = s.channel
	}
	if channel == "" {
		return perr.WithField(perr.Configf("slack channel not set"), "SLACK_CHANNEL_ID")
	}
	ch, ts, err := s.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "slack post")
	}
	logger.C(ctx).Info().Str("channel", ch).Str("ts", ts).Msg("slack sent")
	return nil
}
