package service

import (
	"signalroom/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsLoaded = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sync",
		Name:      "rows_loaded_total",
		Help:      "Rows accepted by the destination.",
	}, []string{"source", "resource"})

	rowsSkipped = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sync",
		Name:      "rows_skipped_total",
		Help:      "Rows rejected by key validation.",
	}, []string{"source", "resource"})

	runsTotal = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync runs by outcome.",
	}, []string{"source", "outcome"})

	runSeconds = metrics.Factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of sync runs.",
		Buckets:   []float64{.5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"source"})
)

func outcome(success, current, dry bool) string {
	switch {
	case !success:
		return "failed"
	case dry:
		return "dry_run"
	case current:
		return "current"
	default:
		return "succeeded"
	}
}
