package service

import (
	"time"

	"signalroom/internal/adapters/notify"
	"signalroom/internal/core/retry"
	"signalroom/internal/platform/config"
)

// Options holds workflow settings
type Options struct {
	Policy          retry.Policy
	ActivityTimeout time.Duration
	NotifyTimeout   time.Duration
	// Channel carries workflow notifications unless an input names one
	Channel   notify.Channel
	Recipient string
}

// DefaultOptions are a 30m activity, 30s notifications over slack
func DefaultOptions() Options {
	return Options{
		Policy:          retry.Default(),
		ActivityTimeout: 30 * time.Minute,
		NotifyTimeout:   30 * time.Second,
		Channel:         notify.Slack,
	}
}

// FromConfig reads RETRY_* and WORKER_*
func FromConfig(cfg config.Conf) Options {
	d := DefaultOptions()
	c := cfg.Prefix("WORKER_")
	ch, err := notify.ParseChannel(c.MayString("NOTIFY_CHANNEL", string(d.Channel)))
	if err != nil {
		ch = d.Channel
	}
	return Options{
		Policy:          retry.FromConfig(cfg),
		ActivityTimeout: c.MayDuration("ACTIVITY_TIMEOUT", d.ActivityTimeout),
		NotifyTimeout:   c.MayDuration("NOTIFY_TIMEOUT", d.NotifyTimeout),
		Channel:         ch,
		Recipient:       c.MayString("NOTIFY_RECIPIENT", ""),
	}
}
