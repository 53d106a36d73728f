package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llamabot_poll_cycles_total",
			Help: "Total poll cycles started",
		},
	)

	ThreadsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llamabot_threads_scanned_total",
			Help: "Total threads evaluated",
		},
	)

	RepliesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llamabot_replies_published_total",
			Help: "Total replies posted to the forum",
		},
	)

	ThreadErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamabot_thread_errors_total",
			Help: "Per-thread failures",
		},
		[]string{"kind"}, // "list", "fetch", "generation", "publish", "lock"
	)

	ThreadsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llamabot_threads_skipped_total",
			Help: "Threads skipped because another responder held the reply lock",
		},
		[]string{"reason"}, // "locked"
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llamabot_generation_duration_seconds",
			Help:    "Time spent generating a reply",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)
