package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/b4ae-project/b4ae/session"
)

func TestMetricsAreRegistered(t *testing.T) {
	assert.NotNil(t, CookiesIssued)
	assert.NotNil(t, CookiesAccepted)
	assert.NotNil(t, CookiesRejected)
	assert.NotNil(t, CookieRotations)
	assert.NotNil(t, HandshakesInitiated)
	assert.NotNil(t, HandshakePhaseCompleted)
	assert.NotNil(t, HandshakesEstablished)
	assert.NotNil(t, HandshakesFailed)
	assert.NotNil(t, HandshakeDuration)
	assert.NotNil(t, SessionsCreated)
	assert.NotNil(t, SessionsActive)
	assert.NotNil(t, SessionsClosed)
	assert.NotNil(t, SessionsRekeyed)
	assert.NotNil(t, ReplayRejections)
	assert.NotNil(t, ItemsEmitted)
	assert.NotNil(t, QueueDepthBySession)
	assert.NotNil(t, RateDeviation)
}

func TestCookieAdapterIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(CookiesIssued)
	CookieAdapter{}.CookieIssued()
	assert.Equal(t, before+1, testutil.ToFloat64(CookiesIssued))

	CookieAdapter{}.CookieRejectedStale()
	CookieAdapter{}.CookieRejectedForged()
	CookieAdapter{}.CookieRejectedReplayed()
	assert.Equal(t, float64(1), testutil.ToFloat64(CookiesRejected.WithLabelValues("stale")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CookiesRejected.WithLabelValues("forged")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CookiesRejected.WithLabelValues("replayed")))
}

func TestSessionManagerAdapterTracksActiveGauge(t *testing.T) {
	before := testutil.ToFloat64(SessionsActive)
	SessionManagerAdapter{}.SessionCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(SessionsActive))

	SessionManagerAdapter{}.SessionClosed("idle_timeout")
	assert.Equal(t, before, testutil.ToFloat64(SessionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(SessionsClosed.WithLabelValues("idle_timeout")))
}

func TestSchedulerAdapterRecordsItemKind(t *testing.T) {
	SchedulerAdapter{}.ItemEmitted(session.KindCover)
	SchedulerAdapter{}.ItemEmitted(session.KindReal)
	assert.Equal(t, float64(1), testutil.ToFloat64(ItemsEmitted.WithLabelValues("cover")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ItemsEmitted.WithLabelValues("real")))
}

func TestSchedulerAdapterRecordsQueueDepth(t *testing.T) {
	var id session.ID
	id[0] = 0xAB
	SchedulerAdapter{}.QueueDepthBySession(id, 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(QueueDepthBySession.WithLabelValues(sessionIDLabel(id))))
}

func TestSchedulerAdapterRecordsRateDeviation(t *testing.T) {
	before := testutil.CollectAndCount(RateDeviation)
	SchedulerAdapter{}.RateDeviation(5 * time.Millisecond)
	assert.Equal(t, before, testutil.CollectAndCount(RateDeviation))
}

func TestHandler(t *testing.T) {
	assert.NotNil(t, Handler())
}
