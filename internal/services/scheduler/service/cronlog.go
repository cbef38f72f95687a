package service

import (
	"slices"
	"strings"

	"signalroom/internal/platform/logger"
)

// cronLogger routes cron's own logging to zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	logger.Named("cron").Debug().Fields(kv).Msg(msg)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	logger.Named("cron").Error().Err(err).Fields(kv).Msg(msg)
}

func sortEntries(es []Entry) {
	slices.SortFunc(es, func(a, b Entry) int { return strings.Compare(a.Schedule.ID, b.Schedule.ID) })
}
