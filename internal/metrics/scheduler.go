package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsEmitted tracks every item the scheduler hands to its Emitter, by
	// kind (real vs cover) — the cover-floor property is this metric over
	// ItemsEmitted{kind=cover} / total, evaluated over the configured window.
	ItemsEmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "items_emitted_total",
			Help:      "Total number of items emitted by the global scheduler",
		},
		[]string{"kind"}, // real, cover
	)

	// QueueDepthBySession is the current backlog for one session's queued,
	// not-yet-emitted items.
	QueueDepthBySession = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth_by_session",
			Help:      "Current number of queued, unemitted items for a session",
		},
		[]string{"session_id"},
	)

	// RateDeviation tracks how far each tick landed from its ideal interval.
	RateDeviation = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "rate_deviation_ms",
			Help:      "Deviation of the scheduler tick interval from its configured rate, in milliseconds",
			Buckets:   prometheus.LinearBuckets(-50, 10, 11), // -50ms to +50ms
		},
	)
)
