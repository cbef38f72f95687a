// Package modkit wires shared dependencies into service modules
package modkit

import (
	"signalroom/internal/modkit/repokit"
	"signalroom/internal/platform/config"
	"signalroom/internal/platform/logger"
	"signalroom/internal/platform/store"

	"github.com/redis/go-redis/v9"
)

// Deps holds core dependencies passed to modules. Any store may be nil;
// modules fall back to their in-memory implementations when one is
type Deps struct {
	Log   logger.Logger
	Cfg   config.Conf
	PG    repokit.TxRunner
	CH    store.Clickhouse
	Redis redis.UniversalClient
}

// FromStore lifts an opened store into Deps
func FromStore(st *store.Store, cfg config.Conf) Deps {
	d := Deps{Cfg: cfg, Log: *logger.Get()}
	if st == nil {
		return d
	}
	d.PG, d.CH, d.Redis = st.PG, st.CH, st.Redis
	return d
}
