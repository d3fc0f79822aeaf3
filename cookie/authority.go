// Package cookie implements B4AE's stateless cookie challenge: the DoS
// absorption layer that keeps an attacker from forcing expensive
// handshake work before proving a round trip to a claimed address.
package cookie

import (
	"sync/atomic"
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/primitive"
)

// Config controls rotation cadence and Bloom filter sizing. All fields are
// fixed at startup and immutable for the process lifetime.
type Config struct {
	RotationPeriod     time.Duration
	Timeout            time.Duration
	ExpectedPerRotation int
	FalsePositiveRate  float64
}

// DefaultConfig returns the recommended defaults: 60 s rotation, 30 s
// cookie timeout, sized for 10,000 connections per rotation at FP ≤ 1e-6.
func DefaultConfig() Config {
	return Config{
		RotationPeriod:      60 * time.Second,
		Timeout:             30 * time.Second,
		ExpectedPerRotation: 10_000,
		FalsePositiveRate:   1e-6,
	}
}

// Metrics receives cookie subsystem counters. Authority calls the interface
// directly rather than a registry-shaped type so the cookie package does
// not need to depend on internal/metrics.
type Metrics interface {
	CookieIssued()
	CookieAccepted()
	CookieRejectedStale()
	CookieRejectedForged()
	CookieRejectedReplayed()
}

type noopMetrics struct{}

func (noopMetrics) CookieIssued()          {}
func (noopMetrics) CookieAccepted()        {}
func (noopMetrics) CookieRejectedStale()   {}
func (noopMetrics) CookieRejectedForged()  {}
func (noopMetrics) CookieRejectedReplayed() {}

// generation is one rotation window's secret and its replay guard. Readers
// observe an entire generation atomically, never a secret and a filter
// from two different rotations.
type generation struct {
	secret []byte
	replay *filter
}

// snapshot is the immutable value swapped atomically on each rotation:
// the current generation plus the previous one, kept around so cookies
// issued just before a rotation still verify despite clock skew.
type snapshot struct {
	current  *generation
	previous *generation
}

// Authority issues and verifies cookies. Verify never blocks on rotation:
// it loads one atomic pointer and operates on the immutable snapshot it
// gets back.
type Authority struct {
	cfg     Config
	ptr     atomic.Pointer[snapshot]
	metrics Metrics
	stop    chan struct{}
	done    chan struct{}
}

// NewAuthority constructs an Authority with an initial generation already
// installed, so Verify is safe to call before Start's rotation loop has
// run even once.
func NewAuthority(cfg Config, metrics Metrics) (*Authority, error) {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	a := &Authority{cfg: cfg, metrics: metrics, stop: make(chan struct{}), done: make(chan struct{})}
	gen, err := newGeneration(cfg)
	if err != nil {
		return nil, err
	}
	a.ptr.Store(&snapshot{current: gen})
	return a, nil
}

func newGeneration(cfg Config) (*generation, error) {
	secret, err := primitive.RandomBytes(32)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "cookie.newGeneration", "failed to draw server secret", err)
	}
	return &generation{secret: secret, replay: newFilter(cfg.ExpectedPerRotation, cfg.FalsePositiveRate)}, nil
}

// Start launches the rotation loop in its own goroutine and returns; the
// loop runs until Stop is called.
func (a *Authority) Start() {
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.cfg.RotationPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				a.rotate()
			}
		}
	}()
}

// Stop halts the rotation loop and waits for it to exit.
func (a *Authority) Stop() {
	close(a.stop)
	<-a.done
}

func (a *Authority) rotate() {
	next, err := newGeneration(a.cfg)
	if err != nil {
		// Entropy failure: keep the existing snapshot rather than install a
		// broken one; the next tick tries again.
		return
	}
	cur := a.ptr.Load()
	a.ptr.Store(&snapshot{current: next, previous: cur.current})
}

func computeCookie(secret, clientRandom, clientAddr []byte, issueTimeUnix uint64) []byte {
	var tb [8]byte
	for i := 0; i < 8; i++ {
		tb[i] = byte(issueTimeUnix >> (56 - 8*i))
	}
	return primitive.MAC(secret, clientRandom, clientAddr, tb[:])
}

// Issue computes a fresh cookie bound to clientRandom and clientAddr under
// the current generation's secret.
func (a *Authority) Issue(clientRandom, clientAddr []byte, now time.Time) (cookie []byte, issueTimeUnix uint64) {
	snap := a.ptr.Load()
	issueTimeUnix = uint64(now.Unix())
	cookie = computeCookie(snap.current.secret, clientRandom, clientAddr, issueTimeUnix)
	a.metrics.CookieIssued()
	return cookie, issueTimeUnix
}

// Verify recomputes the cookie under the current and previous secrets,
// checks staleness, and consults the replay filter. It performs no KEM,
// X25519, or signature operation: the
// entire check is HMAC plus a handful of Bloom-filter bit tests.
func (a *Authority) Verify(clientRandom, clientAddr, cookie []byte, issueTimeUnix uint64, now time.Time) error {
	age := now.Unix() - int64(issueTimeUnix)
	if age < 0 || age > int64(a.cfg.Timeout.Seconds()) {
		a.metrics.CookieRejectedStale()
		return b4aeerr.New(b4aeerr.KindCookieStale, "cookie.Verify", "cookie outside validity window")
	}

	snap := a.ptr.Load()
	gen := matchGeneration(snap, clientRandom, clientAddr, cookie, issueTimeUnix)
	if gen == nil {
		a.metrics.CookieRejectedForged()
		return b4aeerr.New(b4aeerr.KindCookieForged, "cookie.Verify", "cookie does not match any accepted generation")
	}

	if gen.replay.test(clientRandom) {
		a.metrics.CookieRejectedReplayed()
		return b4aeerr.New(b4aeerr.KindCookieReplayed, "cookie.Verify", "client_random already seen")
	}
	gen.replay.add(clientRandom)
	a.metrics.CookieAccepted()
	return nil
}

func matchGeneration(snap *snapshot, clientRandom, clientAddr, cookie []byte, issueTimeUnix uint64) *generation {
	if primitive.ConstantTimeEqual(computeCookie(snap.current.secret, clientRandom, clientAddr, issueTimeUnix), cookie) {
		return snap.current
	}
	if snap.previous != nil && primitive.ConstantTimeEqual(computeCookie(snap.previous.secret, clientRandom, clientAddr, issueTimeUnix), cookie) {
		return snap.previous
	}
	return nil
}
