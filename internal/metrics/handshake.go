package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandshakesInitiated tracks handshakes started, by role.
	HandshakesInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "initiated_total",
			Help:      "Total number of handshakes initiated",
		},
		[]string{"role"}, // initiator, responder
	)

	// HandshakePhaseCompleted tracks each phase transition reached, by mode.
	HandshakePhaseCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "phase_completed_total",
			Help:      "Total number of handshake phases completed",
		},
		[]string{"phase", "mode"}, // mode_negotiation, h1, h2, h3; a, b
	)

	// HandshakesEstablished tracks handshakes that reached Established.
	HandshakesEstablished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "established_total",
			Help:      "Total number of handshakes that established a session",
		},
		[]string{"mode"},
	)

	// HandshakesFailed tracks handshake failures by error kind.
	HandshakesFailed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "failed_total",
			Help:      "Total number of failed handshakes by error kind",
		},
		[]string{"kind"}, // mirrors b4aeerr.Kind.String()
	)

	// HandshakeDuration tracks wall-clock time from Initiate/Accept to
	// Established or Failed.
	HandshakeDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Handshake duration in seconds, from first frame to Established or Failed",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
	)
)
