// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace   = "hkcountdown"
	subsystem   = "timer"
	labelAction = "action"
)

var (
	Registry = prometheus.NewRegistry()

	Commands = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "commands_total",
		Help:      "Number of countdown commands received over HTTP.",
	}, []string{labelAction})

	Completions = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "completions_total",
		Help:      "Number of countdowns that reached zero.",
	})

	Laps = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "laps_total",
		Help:      "Number of recorded laps.",
	})

	RunDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "run_elapsed_seconds",
		Help:      "Total elapsed seconds reported on completion.",
		Buckets:   prometheus.ExponentialBucketsRange(1, 30*24*3600, 20),
	})
)

// RegisterRemaining exposes the live remaining time through fn.
func RegisterRemaining(fn func() float64) error {
	return Registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "remaining_seconds",
		Help:      "Seconds left on the current countdown.",
	}, fn))
}
