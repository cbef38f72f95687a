package module

import (
	"time"

	"signalroom/internal/platform/config"
)

// Destination names
const (
	DestPostgres   = "postgres"
	DestClickhouse = "clickhouse"
	DestMemory     = "memory"
)

// Options holds configuration settings for the sync module
type Options struct {
	// Destination picks the write target; "" means postgres when available,
	// else clickhouse, else memory
	Destination      string
	StatementTimeout time.Duration
	// DayZone decides where "yesterday" ends for date cursors
	DayZone *time.Location
	// EnsureSchema applies the embedded DDL on start
	EnsureSchema bool
}

// FromConfig reads SYNC_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SYNC_")
	loc, err := time.LoadLocation(c.MayString("DAY_ZONE", "UTC"))
	if err != nil {
		loc = time.UTC
	}
	return Options{
		Destination:      c.MayEnum("DESTINATION", "", DestPostgres, DestClickhouse, DestMemory),
		StatementTimeout: c.MayDuration("STATEMENT_TIMEOUT", 5*time.Minute),
		DayZone:          loc,
		EnsureSchema:     c.MayBool("ENSURE_SCHEMA", true),
	}
}
