package metrics

import (
	"time"

	"github.com/b4ae-project/b4ae/session"
)

// CookieAdapter implements cookie.Metrics against the package's Prometheus
// counters. It has no state of its own; every method is a direct counter
// increment.
type CookieAdapter struct{}

func (CookieAdapter) CookieIssued()           { CookiesIssued.Inc() }
func (CookieAdapter) CookieAccepted()         { CookiesAccepted.Inc() }
func (CookieAdapter) CookieRejectedStale()    { CookiesRejected.WithLabelValues("stale").Inc() }
func (CookieAdapter) CookieRejectedForged()   { CookiesRejected.WithLabelValues("forged").Inc() }
func (CookieAdapter) CookieRejectedReplayed() { CookiesRejected.WithLabelValues("replayed").Inc() }

// SessionManagerAdapter implements session.Metrics against the package's
// Prometheus counters and the SessionsActive gauge.
type SessionManagerAdapter struct{}

func (SessionManagerAdapter) SessionCreated() {
	SessionsCreated.Inc()
	SessionsActive.Inc()
}

func (SessionManagerAdapter) SessionClosed(reason string) {
	SessionsClosed.WithLabelValues(reason).Inc()
	SessionsActive.Dec()
}

func (SessionManagerAdapter) SessionRekeyed() {
	SessionsRekeyed.WithLabelValues("policy").Inc()
}

// SchedulerAdapter implements scheduler.Metrics against the package's
// Prometheus counters, gauges, and histogram.
type SchedulerAdapter struct{}

func (SchedulerAdapter) ItemEmitted(kind session.ItemKind) {
	ItemsEmitted.WithLabelValues(itemKindLabel(kind)).Inc()
}

func (SchedulerAdapter) QueueDepthBySession(id session.ID, depth int) {
	QueueDepthBySession.WithLabelValues(sessionIDLabel(id)).Set(float64(depth))
}

func (SchedulerAdapter) RateDeviation(deviation time.Duration) {
	RateDeviation.Observe(float64(deviation.Milliseconds()))
}

func itemKindLabel(kind session.ItemKind) string {
	if kind == session.KindCover {
		return "cover"
	}
	return "real"
}

func sessionIDLabel(id session.ID) string {
	const hexDigits = "0123456789abcdef"
	// First 8 bytes as hex is enough to disambiguate sessions in a metrics
	// label without the full 32-byte identifier appearing in dashboards.
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i*2] = hexDigits[id[i]>>4]
		buf[i*2+1] = hexDigits[id[i]&0xf]
	}
	return string(buf)
}
