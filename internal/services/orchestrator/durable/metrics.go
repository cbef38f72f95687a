package durable

import (
	"signalroom/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	executionsTotal = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "durable",
		Name:      "executions_total",
		Help:      "Finished workflow executions by final state",
	}, []string{"workflow", "state"})

	attemptsTotal = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "durable",
		Name:      "attempts_total",
		Help:      "Activity attempts by outcome",
	}, []string{"workflow", "outcome"})

	skippedTotal = metrics.Factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "durable",
		Name:      "already_running_total",
		Help:      "Starts refused because the workflow identity was held",
	}, []string{"workflow"})

	running = metrics.Factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "durable",
		Name:      "running",
		Help:      "Executions currently holding their identity",
	}, []string{"workflow"})
)
