package store

import (
	"time"

	"signalroom/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG  PGConfig
	CH  CHConfig
	RDS RedisConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	ConnectRetries int
	PingTimeout    time.Duration
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled bool
	URL     string
	Role    string
}

// RedisConfig configures redis connectivity
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// FromConfig reads SERVICE_PGSQL_*, SERVICE_CLICKHOUSE_* and SERVICE_REDIS_*.
// A backend is enabled when its URL (or address) is set
func FromConfig(cfg config.Conf, appName string) Config {
	svc := cfg.Prefix("SERVICE_")
	pg := svc.Prefix("PGSQL_")
	chc := svc.Prefix("CLICKHOUSE_")
	rds := svc.Prefix("REDIS_")

	c := Config{AppName: appName}

	c.PG.URL = pg.MayString("URL", "")
	c.PG.Enabled = c.PG.URL != ""
	c.PG.MaxConns = int32(pg.MayInt("MAX_CONNS", 8))
	c.PG.LogSQL = pg.MayBool("LOG_SQL", false)
	c.PG.SlowQueryMs = pg.MayInt("SLOW_MS", 500)
	c.PG.ConnectRetries = pg.MayInt("CONNECT_RETRIES", 6)
	c.PG.PingTimeout = pg.MayDuration("PING_TIMEOUT", 5*time.Second)

	c.CH.URL = chc.MayString("URL", "")
	c.CH.Enabled = c.CH.URL != ""
	c.CH.Role = appName

	c.RDS.Addr = rds.MayString("ADDR", "")
	c.RDS.Enabled = c.RDS.Addr != ""
	c.RDS.Password = rds.MayString("PASSWORD", "")
	c.RDS.DB = rds.MayInt("DB", 0)

	return c
}
