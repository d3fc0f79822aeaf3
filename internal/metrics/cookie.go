package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CookiesIssued tracks cookie challenges issued to first-time clients.
	CookiesIssued = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cookie",
			Name:      "issued_total",
			Help:      "Total number of cookie challenges issued",
		},
	)

	// CookiesAccepted tracks cookies that passed verification.
	CookiesAccepted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cookie",
			Name:      "accepted_total",
			Help:      "Total number of cookies accepted",
		},
	)

	// CookiesRejected tracks cookies rejected by reason: stale (past
	// timeout), forged (MAC mismatch), or replayed (Bloom filter hit).
	CookiesRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cookie",
			Name:      "rejected_total",
			Help:      "Total number of cookies rejected by reason",
		},
		[]string{"reason"}, // stale, forged, replayed
	)

	// CookieRotations tracks server-secret rotation events.
	CookieRotations = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cookie",
			Name:      "rotations_total",
			Help:      "Total number of cookie authority secret rotations",
		},
	)
)
