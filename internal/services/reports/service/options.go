package service

import (
	"time"

	"signalroom/internal/platform/config"
)

// Options holds configuration settings for report runs
type Options struct {
	// EmailTo and SMSTo are the default recipients when a request names none
	EmailTo string
	SMSTo   string
	Subject string
	// DayZone decides which day "yesterday" is
	DayZone *time.Location
}

// FromConfig reads REPORT_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("REPORT_")
	loc, err := time.LoadLocation(c.MayString("DAY_ZONE", "UTC"))
	if err != nil {
		loc = time.UTC
	}
	return Options{
		EmailTo: c.MayString("EMAIL_TO", ""),
		SMSTo:   c.MayString("SMS_TO", ""),
		Subject: c.MayString("SUBJECT", "SignalRoom Report"),
		DayZone: loc,
	}
}
