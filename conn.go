package b4ae

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/handshake"
	"github.com/b4ae-project/b4ae/scheduler"
	"github.com/b4ae-project/b4ae/session"
	"github.com/b4ae-project/b4ae/transport"
	"github.com/b4ae-project/b4ae/wire"
)

// errKind extracts the b4aeerr.Kind from err, or KindUnknown if err was not
// raised by a b4ae package.
func errKind(err error) b4aeerr.Kind {
	var e *b4aeerr.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return b4aeerr.KindUnknown
}

// Conn is one established, bidirectional B4AE connection: a handshake
// that ran to completion, plus the session it produced. Send/Recv/Close
// are safe for one concurrent sender and one concurrent receiver; Conn
// itself is not safe for concurrent Send calls or concurrent Recv calls.
type Conn struct {
	engine    *Engine
	transport transport.Transport
	machine   *handshake.Machine
	role      session.Role

	mu     sync.Mutex
	sess   *session.Session
	closed bool
}

func newConn(e *Engine, t transport.Transport, m *handshake.Machine, role session.Role) *Conn {
	return &Conn{engine: e, transport: t, machine: m, role: role}
}

// ID returns the established session's identifier. Valid only after
// Initiate/Accept has returned successfully.
func (c *Conn) ID() session.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return session.ID{}
	}
	return c.sess.ID()
}

// runInitiator drives the full initiator side of the handshake: ClientHello,
// the cookie round trip, mode negotiation, and H1/H3.
func (c *Conn) runInitiator(ctx context.Context) error {
	hello, err := c.machine.Initiate()
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, c.transport, hello); err != nil {
		return err
	}

	challengeFrame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if challengeFrame.Type != wire.TypeCookieChallenge {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runInitiator", "expected cookie challenge frame")
	}
	challenge, err := wire.DecodeCookieChallenge(challengeFrame.Payload)
	if err != nil {
		return err
	}

	withCookie, err := c.machine.ClientHelloWithCookie(challenge)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, c.transport, withCookie); err != nil {
		return err
	}

	selFrame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if selFrame.Type != wire.TypeModeSelection {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runInitiator", "expected mode selection frame")
	}
	sel, err := wire.DecodeModeSelection(selFrame.Payload)
	if err != nil {
		return err
	}

	h1, err := c.machine.OnModeSelection(sel)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, c.transport, h1); err != nil {
		return err
	}

	h2Frame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if h2Frame.Type != wire.TypeHandshakeResponse {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runInitiator", "expected handshake response frame")
	}
	h2, err := wire.DecodeHandshakeResponse(h2Frame.Payload)
	if err != nil {
		return err
	}

	h3, params, err := c.machine.OnHandshakeResponse(h2)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, c.transport, h3); err != nil {
		return err
	}

	return c.establish(*params)
}

// runResponder drives the full responder side of the handshake: the cookie
// challenge, mode selection, and H1/H2/H3. clientAddr is whatever the
// transport can report about the peer's network address, folded into the
// cookie's HMAC input so a cookie cannot be replayed from a different peer.
func (c *Conn) runResponder(ctx context.Context, clientAddr []byte) error {
	helloFrame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if helloFrame.Type != wire.TypeClientHello {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runResponder", "expected client hello frame")
	}
	hello, err := wire.DecodeClientHello(helloFrame.Payload)
	if err != nil {
		return err
	}

	cookieBytes, issueTime := c.engine.cookies.Issue(hello.ClientRandom[:], clientAddr, time.Now())
	var challenge wire.CookieChallenge
	copy(challenge.Cookie[:], cookieBytes)
	challenge.IssueTimeUnix = issueTime
	challenge.TimeoutSeconds = uint32(c.engine.cookieCfg.Timeout.Seconds())
	if err := writeFrame(ctx, c.transport, wire.Frame{Type: wire.TypeCookieChallenge, Payload: challenge.Encode()}); err != nil {
		return err
	}

	withCookieFrame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if withCookieFrame.Type != wire.TypeClientHelloWithCookie {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runResponder", "expected cookie-bearing client hello frame")
	}
	withCookie, err := wire.DecodeClientHelloWithCookie(withCookieFrame.Payload)
	if err != nil {
		return err
	}
	if err := c.engine.cookies.Verify(withCookie.ClientRandom[:], clientAddr, withCookie.Cookie[:], withCookie.IssueTimeUnix, time.Now()); err != nil {
		return err
	}

	selFrame, err := c.machine.Accept(withCookie)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, c.transport, selFrame); err != nil {
		return err
	}

	h1Frame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if h1Frame.Type != wire.TypeHandshakeInit {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runResponder", "expected handshake init frame")
	}
	h1, err := wire.DecodeHandshakeInit(h1Frame.Payload)
	if err != nil {
		return err
	}

	h2, err := c.machine.OnHandshakeInit(h1)
	if err != nil {
		return err
	}
	if err := writeFrame(ctx, c.transport, h2); err != nil {
		return err
	}

	h3Frame, err := readFrame(ctx, c.transport)
	if err != nil {
		return err
	}
	if h3Frame.Type != wire.TypeHandshakeComplete {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.runResponder", "expected handshake complete frame")
	}
	complete, err := wire.DecodeHandshakeComplete(h3Frame.Payload)
	if err != nil {
		return err
	}
	params, err := c.machine.OnHandshakeComplete(complete)
	if err != nil {
		return err
	}

	return c.establish(*params)
}

func (c *Conn) establish(params session.Params) error {
	sess, err := session.NewSession(params)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.engine.sessions.Register(sess)
	c.engine.registerTransport(sess.ID(), c.transport)
	return nil
}

// Send encrypts plaintext under the session's current send chain and
// enqueues it with the process-wide scheduler; Send itself never blocks on
// network I/O, only on the scheduler's bounded per-session queue.
func (c *Conn) Send(plaintext []byte) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.Send", "handshake has not completed")
	}

	enc, err := sess.Encrypt(plaintext)
	if err != nil {
		return err
	}
	return c.engine.sched.Enqueue(scheduler.Item{
		SessionID:  sess.ID(),
		Counter:    enc.Counter,
		Kind:       enc.Kind,
		Ciphertext: enc.Ciphertext,
	})
}

// Recv blocks until the next real application message arrives, silently
// dropping cover traffic along the way. A Close frame ends it with
// TransportClosed; any other frame type, Rekey included, is not handled and
// ends it with a HandshakeProtocol error.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil, b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.Recv", "handshake has not completed")
	}

	for {
		frame, err := readFrame(ctx, c.transport)
		if err != nil {
			return nil, err
		}
		switch frame.Type {
		case wire.TypeAppData:
			app, err := wire.DecodeAppData(frame.Payload)
			if err != nil {
				return nil, err
			}
			plaintext, ok, err := sess.Decrypt(app.Counter, session.ItemKind(app.Kind), app.Ciphertext)
			if err != nil {
				if b4aeerr.Fatal(errKind(err)) {
					return nil, err
				}
				continue // non-fatal: e.g. a duplicate/out-of-window sequence number
			}
			if !ok {
				continue // cover traffic: authenticated, never surfaced
			}
			return plaintext, nil
		case wire.TypeClose:
			closeMsg, err := wire.DecodeClose(frame.Payload)
			if err != nil {
				return nil, err
			}
			_ = c.closeLocal(closeReasonString(closeMsg.Reason))
			return nil, b4aeerr.New(b4aeerr.KindTransportClosed, "b4ae.Conn.Recv", "peer closed the session")
		default:
			return nil, b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.Recv", "unexpected frame type on established session")
		}
	}
}

func closeReasonString(r wire.CloseReason) string {
	switch r {
	case wire.CloseReasonIdleTimeout:
		return "idle_timeout"
	case wire.CloseReasonAuthFailure:
		return "auth_failure"
	case wire.CloseReasonProtocolError:
		return "protocol_error"
	default:
		return "normal"
	}
}

// Close sends a Close frame, tears down the session in the engine's
// registry, and discards any of the session's items still queued in the
// scheduler. It is safe to call more than once.
func (c *Conn) Close(ctx context.Context, reason wire.CloseReason) error {
	c.mu.Lock()
	sess := c.sess
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if already || sess == nil {
		return nil
	}

	id := sess.ID()
	frame := wire.Close{Reason: reason, SessionID: [32]byte(id)}
	_ = writeFrame(ctx, c.transport, wire.Frame{Type: wire.TypeClose, Payload: frame.Encode()})

	return c.closeLocal(closeReasonString(reason))
}

func (c *Conn) closeLocal(reason string) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	c.engine.sched.DiscardSession(sess.ID())
	c.engine.unregisterTransport(sess.ID())
	c.engine.sessions.Close(sess.ID(), reason)
	return nil
}
