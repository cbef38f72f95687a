package service

import (
	"signalroom/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var notifyFailures = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Subsystem: "workflow",
	Name:      "notify_failures_total",
	Help:      "Workflow notifications that could not be delivered",
}, []string{"workflow"})
