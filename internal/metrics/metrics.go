// Package metrics holds the prometheus collectors of the engine. They are
// registered on the default registry served by http/health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dbe"

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Framed requests read, by request kind.",
	}, []string{"kind"})

	Results = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_results_total",
		Help:      "Completed handler invocations, by command and response status.",
	}, []string{"command", "status"})

	Cancels = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancel_requests_total",
		Help:      "Cancel requests, by outcome.",
	}, []string{"outcome"})

	SessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Engines currently serving a byte stream.",
	})

	WorkersLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workerpool",
		Name:      "live",
		Help:      "Live worker goroutines.",
	})

	WorkQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workerpool",
		Name:      "queued",
		Help:      "Work items waiting for a worker.",
	})

	WorkPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workerpool",
		Name:      "panics_total",
		Help:      "Work items that panicked.",
	})

	ResponseAllocs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "respool",
		Name:      "allocations_total",
		Help:      "Responses allocated because the free list was empty, by size class.",
	}, []string{"class"})
)

func init() {
	prometheus.MustRegister(Requests, Results, Cancels, SessionsLive, WorkersLive, WorkQueued, WorkPanics, ResponseAllocs)
}
