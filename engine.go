// Package b4ae ties the protocol's independent layers — handshake, session,
// scheduler, cookie challenge, and wire framing — into the public Session
// API surface: Initiate, Accept, Step, Send, Recv, Close. Nothing in this
// package performs cryptography itself; it only sequences calls into the
// packages that do.
package b4ae

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/cookie"
	"github.com/b4ae-project/b4ae/handshake"
	"github.com/b4ae-project/b4ae/scheduler"
	"github.com/b4ae-project/b4ae/session"
	"github.com/b4ae-project/b4ae/transport"
	"github.com/b4ae-project/b4ae/wire"
)

// Engine is the process-wide B4AE runtime shared by every Conn a process
// drives: one session registry, one global traffic scheduler, and one
// cookie authority (used only by connections accepted as a responder).
type Engine struct {
	keys  handshake.IdentityKeyStore
	hsCfg handshake.Config

	sessions  *session.Manager
	cookies   *cookie.Authority
	cookieCfg cookie.Config
	sched     *scheduler.Scheduler

	mu         sync.RWMutex
	transports map[session.ID]transport.Transport

	cleanupInterval time.Duration
}

// NewEngine constructs an Engine. cleanupInterval governs how often the
// session registry sweeps idle/over-age sessions; callers typically derive
// it from config.SessionConfig.IdleTimeout / 4 or similar.
func NewEngine(
	keys handshake.IdentityKeyStore,
	hsCfg handshake.Config,
	cookieCfg cookie.Config,
	schedCfg scheduler.Config,
	cleanupInterval time.Duration,
	sessionMetrics session.Metrics,
	cookieMetrics cookie.Metrics,
	schedMetrics scheduler.Metrics,
) (*Engine, error) {
	sessions := session.NewManager(cleanupInterval, sessionMetrics)

	cookies, err := cookie.NewAuthority(cookieCfg, cookieMetrics)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		keys:            keys,
		hsCfg:           hsCfg,
		sessions:        sessions,
		cookies:         cookies,
		cookieCfg:       cookieCfg,
		transports:      make(map[session.ID]transport.Transport),
		cleanupInterval: cleanupInterval,
	}

	sched, err := scheduler.New(schedCfg, sessions, e, schedMetrics)
	if err != nil {
		return nil, err
	}
	e.sched = sched
	return e, nil
}

// Start launches the engine's three background workers: cookie rotation,
// session cleanup, and scheduler ticking. Stop reverses all three.
func (e *Engine) Start(ctx context.Context) {
	e.cookies.Start()
	e.sessions.Start()
	e.sched.Start(ctx)
}

// Stop halts every background worker and waits for them to exit.
func (e *Engine) Stop() {
	e.sched.Stop()
	e.sessions.Stop()
	e.cookies.Stop()
}

// Emit implements scheduler.Emitter: it looks up the transport registered
// for the item's session and writes an AppData frame to it. A session with
// no registered transport (already Closed locally) is dropped silently,
// matching the scheduler's own tolerance for stale entries.
func (e *Engine) Emit(item scheduler.Item) error {
	e.mu.RLock()
	t, ok := e.transports[item.SessionID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	frame := wire.AppData{
		SessionID:  [32]byte(item.SessionID),
		Counter:    item.Counter,
		Kind:       wire.ItemKind(item.Kind),
		Ciphertext: item.Ciphertext,
	}
	encoded := wire.Frame{Type: wire.TypeAppData, Payload: frame.Encode()}
	return writeFrame(context.Background(), t, encoded)
}

func (e *Engine) registerTransport(id session.ID, t transport.Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transports[id] = t
}

func (e *Engine) unregisterTransport(id session.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.transports, id)
}

// Initiate starts a new connection as the initiator over t and blocks until
// the handshake completes or ctx is canceled.
func (e *Engine) Initiate(ctx context.Context, t transport.Transport, peerIdentityPK []byte) (*Conn, error) {
	cfg := e.hsCfg
	cfg.PeerIdentityPK = peerIdentityPK
	machine := handshake.NewInitiator(e.keys, cfg)
	c := newConn(e, t, machine, session.RoleInitiator)
	if err := c.runInitiator(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Accept waits for an incoming handshake on t and drives it as the
// responder, using the engine's cookie authority for DoS absorption.
func (e *Engine) Accept(ctx context.Context, t transport.Transport, clientAddr []byte) (*Conn, error) {
	machine := handshake.NewResponder(e.keys, e.hsCfg)
	c := newConn(e, t, machine, session.RoleResponder)
	if err := c.runResponder(ctx, clientAddr); err != nil {
		return nil, err
	}
	return c, nil
}

func writeFrame(ctx context.Context, t transport.Transport, f wire.Frame) error {
	var buf bytes.Buffer
	if err := wire.Encode(&buf, f); err != nil {
		return err
	}
	return t.SendBytes(ctx, buf.Bytes())
}

func readFrame(ctx context.Context, t transport.Transport) (wire.Frame, error) {
	raw, err := t.RecvBytes(ctx)
	if err != nil {
		return wire.Frame{}, b4aeerr.Wrap(b4aeerr.KindTransportClosed, "b4ae.readFrame", "transport recv failed", err)
	}
	return wire.Decode(bytes.NewReader(raw))
}
