package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated tracks sessions entering the manager's registry.
	SessionsCreated = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		},
	)

	// SessionsActive is the current number of live, non-closed sessions.
	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of active sessions",
		},
	)

	// SessionsClosed tracks session teardown, by reason.
	SessionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Total number of sessions closed by reason",
		},
		[]string{"reason"}, // normal, idle_timeout, auth_failure, protocol_error
	)

	// SessionsRekeyed tracks in-band rekey events, by trigger.
	SessionsRekeyed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rekeyed_total",
			Help:      "Total number of session rekey events by trigger",
		},
		[]string{"trigger"}, // currently always "policy"
	)

	// ReplayRejections tracks messages dropped by the replay window.
	ReplayRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "replay_rejections_total",
			Help:      "Total number of messages rejected as replays",
		},
	)
)
