package b4ae

import (
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/wire"
)

// Step feeds one inbound frame to the connection's handshake state machine
// and returns the frame to send in reply, if any. It is an alternative to
// Initiate/Accept's blocking read loop for callers that already run their
// own event loop over a transport (e.g. a server multiplexing many
// in-flight handshakes on one goroutine); Initiate and Accept do not call
// it themselves, since they already know which frame to expect at each
// point and can return the handshake package's own errors directly.
//
// Step returns a nil reply frame once the handshake reaches
// StateEstablished (H3 has no reply) or for any frame that updates local
// state without producing wire output.
func (c *Conn) Step(frame wire.Frame, clientAddr []byte) (*wire.Frame, error) {
	switch frame.Type {
	case wire.TypeClientHello:
		hello, err := wire.DecodeClientHello(frame.Payload)
		if err != nil {
			return nil, err
		}
		cookieBytes, issueTime := c.engine.cookies.Issue(hello.ClientRandom[:], clientAddr, time.Now())
		var challenge wire.CookieChallenge
		copy(challenge.Cookie[:], cookieBytes)
		challenge.IssueTimeUnix = issueTime
		challenge.TimeoutSeconds = uint32(c.engine.cookieCfg.Timeout.Seconds())
		reply := wire.Frame{Type: wire.TypeCookieChallenge, Payload: challenge.Encode()}
		return &reply, nil

	case wire.TypeCookieChallenge:
		challenge, err := wire.DecodeCookieChallenge(frame.Payload)
		if err != nil {
			return nil, err
		}
		reply, err := c.machine.ClientHelloWithCookie(challenge)
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case wire.TypeClientHelloWithCookie:
		hello, err := wire.DecodeClientHelloWithCookie(frame.Payload)
		if err != nil {
			return nil, err
		}
		if err := c.engine.cookies.Verify(hello.ClientRandom[:], clientAddr, hello.Cookie[:], hello.IssueTimeUnix, time.Now()); err != nil {
			return nil, err
		}
		reply, err := c.machine.Accept(hello)
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case wire.TypeModeSelection:
		sel, err := wire.DecodeModeSelection(frame.Payload)
		if err != nil {
			return nil, err
		}
		reply, err := c.machine.OnModeSelection(sel)
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case wire.TypeHandshakeInit:
		h1, err := wire.DecodeHandshakeInit(frame.Payload)
		if err != nil {
			return nil, err
		}
		reply, err := c.machine.OnHandshakeInit(h1)
		if err != nil {
			return nil, err
		}
		return &reply, nil

	case wire.TypeHandshakeResponse:
		h2, err := wire.DecodeHandshakeResponse(frame.Payload)
		if err != nil {
			return nil, err
		}
		reply, params, err := c.machine.OnHandshakeResponse(h2)
		if err != nil {
			return nil, err
		}
		if err := c.establish(*params); err != nil {
			return nil, err
		}
		return &reply, nil

	case wire.TypeHandshakeComplete:
		complete, err := wire.DecodeHandshakeComplete(frame.Payload)
		if err != nil {
			return nil, err
		}
		params, err := c.machine.OnHandshakeComplete(complete)
		if err != nil {
			return nil, err
		}
		return nil, c.establish(*params)

	default:
		return nil, b4aeerr.New(b4aeerr.KindHandshakeProtocol, "b4ae.Conn.Step", "frame type is not part of the handshake phase")
	}
}
