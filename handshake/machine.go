// Package handshake implements B4AE's multi-phase authenticated key
// agreement: mode negotiation, phases H1–H3, and the key-schedule
// derivation that produces a session root key bound to the session
// identifier and the full handshake transcript.
package handshake

import (
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive"
	"github.com/b4ae-project/b4ae/primitive/sig"
	"github.com/b4ae-project/b4ae/session"
	"github.com/b4ae-project/b4ae/transcript"
	"github.com/b4ae-project/b4ae/wire"
)

// State is one point in the handshake's explicit state machine.
type State uint8

const (
	StateIdle State = iota
	StateWaitingCookie
	StateWaitingResponse
	StateWaitingComplete
	StateEstablished
	StateClosing
	StateFailed
)

// PhaseTimeout is the independent per-phase deadline each handshake phase allows,
// separate from the cookie subsystem's own 30 s timeout.
const PhaseTimeout = 30 * time.Second

// Config bounds a Machine's behaviour; every field is immutable once the
// Machine is constructed.
type Config struct {
	SupportedModes []mode.AuthMode
	PreferredMode  mode.AuthMode
	IdleTimeout    time.Duration
	RekeyPolicy    session.RekeyPolicy
	QueueDepth     int
	Now            func() time.Time

	// PeerIdentityPK pins the identity public key this Machine expects its
	// peer to present. Scheme A's signature is only meaningful if both
	// sides already know each other's long-term identity key out of band
	//; Scheme B's
	// pin is an optional defense against identity substitution. Required
	// for any mode in SupportedModes that includes ModeA.
	PeerIdentityPK []byte
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Machine drives one handshake attempt, as either initiator or responder.
// It is not safe for concurrent use; exactly one goroutine should call
// its methods for a given Machine.
type Machine struct {
	cfg   Config
	role  session.Role
	state State
	keys  IdentityKeyStore

	clientRandom [32]byte
	serverRandom [32]byte

	offer     mode.Offer
	selection mode.Selection

	identity Identity

	ephX25519 *primitive.X25519KeyPair
	ephKEM    *primitive.KEMKeyPair // initiator only: the KEM keypair H2 encapsulates against

	peerEphX25519  []byte
	peerIdentityPK []byte

	tr *transcript.Accumulator

	sessionID    session.ID
	masterSecret []byte
	rootKey      []byte

	deadline time.Time
}

// NewInitiator constructs a Machine that will drive the initiating side of
// a handshake.
func NewInitiator(keys IdentityKeyStore, cfg Config) *Machine {
	return &Machine{cfg: cfg, role: session.RoleInitiator, state: StateIdle, keys: keys, tr: transcript.New("b4ae-handshake"), peerIdentityPK: cfg.PeerIdentityPK}
}

// NewResponder constructs a Machine that will drive the responding side.
func NewResponder(keys IdentityKeyStore, cfg Config) *Machine {
	return &Machine{cfg: cfg, role: session.RoleResponder, state: StateIdle, keys: keys, tr: transcript.New("b4ae-handshake"), peerIdentityPK: cfg.PeerIdentityPK}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

func (m *Machine) fail(kind b4aeerr.Kind, op, msg string) error {
	m.state = StateFailed
	return b4aeerr.New(kind, op, msg)
}

func (m *Machine) armPhaseTimeout() {
	m.deadline = m.cfg.now().Add(PhaseTimeout)
}

// CheckTimeout transitions the machine to Failed if the current phase's
// deadline has passed. Callers invoke this on their own schedule.
func (m *Machine) CheckTimeout() error {
	if m.state == StateEstablished || m.state == StateFailed || m.state == StateClosing || m.state == StateIdle {
		return nil
	}
	if m.cfg.now().After(m.deadline) {
		return m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.CheckTimeout", "phase timeout expired")
	}
	return nil
}

// Initiate starts a handshake as the initiator, producing the ClientHello
// frame and a freshly drawn client_random.
func (m *Machine) Initiate() (wire.Frame, error) {
	if m.state != StateIdle {
		return wire.Frame{}, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.Initiate", "unexpected state")
	}
	rnd, err := primitive.RandomBytes(32)
	if err != nil {
		return wire.Frame{}, err
	}
	copy(m.clientRandom[:], rnd)
	m.state = StateWaitingCookie
	m.armPhaseTimeout()
	hello := wire.ClientHello{ClientRandom: m.clientRandom}
	return wire.Frame{Type: wire.TypeClientHello, Payload: hello.Encode()}, nil
}

// ClientHelloWithCookie builds the cookie-carrying second ClientHello once
// a CookieChallenge has been received and echoed back by the caller; the
// cookie itself is verified by the responder's cookie.Authority, not here.
func (m *Machine) ClientHelloWithCookie(ch wire.CookieChallenge) (wire.Frame, error) {
	if m.state != StateWaitingCookie {
		return wire.Frame{}, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.ClientHelloWithCookie", "unexpected state")
	}
	offer, err := mode.NewOffer(m.cfg.SupportedModes...)
	if err != nil {
		return wire.Frame{}, err
	}
	m.offer = offer

	out := wire.ClientHelloWithCookie{
		ClientRandom:  m.clientRandom,
		Cookie:        ch.Cookie,
		IssueTimeUnix: ch.IssueTimeUnix,
		ModeOffer: wire.ModeOffer{
			Offer:         offer,
			PreferredMode: m.cfg.PreferredMode,
			ClientRandom:  m.clientRandom,
		},
	}
	m.tr.Append("client-hello-cookie", out.Encode())
	m.state = StateWaitingResponse
	m.armPhaseTimeout()
	return wire.Frame{Type: wire.TypeClientHelloWithCookie, Payload: out.Encode()}, nil
}

// Accept processes a cookie-validated ClientHelloWithCookie on the
// responder side, selects a mode, and returns the ModeSelection frame to
// send back.
func (m *Machine) Accept(hello wire.ClientHelloWithCookie) (wire.Frame, error) {
	if m.state != StateIdle {
		return wire.Frame{}, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.Accept", "unexpected state")
	}
	m.clientRandom = hello.ClientRandom
	m.tr.Append("client-hello-cookie", hello.Encode())

	responderOffer, err := mode.NewOffer(m.cfg.SupportedModes...)
	if err != nil {
		return wire.Frame{}, err
	}
	sel, err := mode.Select(hello.ModeOffer.Offer, responderOffer)
	if err != nil {
		m.state = StateFailed
		return wire.Frame{}, err
	}
	if sel.Chosen == mode.ModeC {
		return wire.Frame{}, m.fail(b4aeerr.KindModeNegotiationFailed, "handshake.Machine.Accept", "mode C is reserved and must be rejected")
	}
	m.selection = sel

	rnd, err := primitive.RandomBytes(32)
	if err != nil {
		return wire.Frame{}, err
	}
	copy(m.serverRandom[:], rnd)

	identity, err := m.keys.IdentityFor(sel.Chosen)
	if err != nil {
		return wire.Frame{}, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "handshake.Machine.Accept", "no identity for selected mode", err)
	}
	m.identity = identity

	out := wire.ModeSelection{
		Selected:     sel.Chosen,
		ServerRandom: m.serverRandom,
		BindingMAC:   nil, // reserved: no confirmation binding MAC over the mode offer is computed yet
	}
	m.tr.Append("mode-offer", hello.ModeOffer.Offer.Canonical())
	m.tr.Append("mode-selection", out.Encode())

	m.state = StateWaitingResponse
	m.armPhaseTimeout()
	return wire.Frame{Type: wire.TypeModeSelection, Payload: out.Encode()}, nil
}

// OnModeSelection processes the responder's ModeSelection on the initiator
// side and produces the HandshakeInit (H1) frame.
func (m *Machine) OnModeSelection(sel wire.ModeSelection) (wire.Frame, error) {
	if m.state != StateWaitingResponse {
		return wire.Frame{}, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.OnModeSelection", "unexpected state")
	}
	if !containsMode(m.offer.Supported, sel.Selected) || sel.Selected == mode.ModeC {
		return wire.Frame{}, m.fail(b4aeerr.KindModeNegotiationFailed, "handshake.Machine.OnModeSelection", "selected mode was not offered or is reserved")
	}
	m.selection = mode.Selection{Chosen: sel.Selected, InitiatorSet: m.offer.Supported}
	m.serverRandom = sel.ServerRandom

	identity, err := m.keys.IdentityFor(sel.Selected)
	if err != nil {
		return wire.Frame{}, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "handshake.Machine.OnModeSelection", "no identity for selected mode", err)
	}
	m.identity = identity

	m.tr.Append("mode-offer", m.offer.Canonical())
	m.tr.Append("mode-selection", sel.Encode())

	ephX, err := primitive.GenerateX25519()
	if err != nil {
		return wire.Frame{}, err
	}
	m.ephX25519 = ephX

	ephKEM, err := primitive.GenerateKEM()
	if err != nil {
		return wire.Frame{}, err
	}
	m.ephKEM = ephKEM

	h1 := wire.HandshakeInit{
		EphemeralKEMPK: ephKEM.PublicBytes(),
		IdentityPK:     m.identity.PublicBytes(),
	}
	copy(h1.EphemeralX25519PK[:], ephX.PublicBytes())

	preimage := m.tr.Snapshot()
	signature, err := m.signTranscript(preimage)
	if err != nil {
		return wire.Frame{}, err
	}
	h1.Signature = signature

	encoded, err := h1.Encode()
	if err != nil {
		return wire.Frame{}, err
	}
	m.tr.Append("h1", encoded)
	m.armPhaseTimeout()
	return wire.Frame{Type: wire.TypeHandshakeInit, Payload: encoded}, nil
}

// OnHandshakeInit processes H1 on the responder side and produces H2
// (HandshakeResponse).
func (m *Machine) OnHandshakeInit(h1 wire.HandshakeInit) (wire.Frame, error) {
	if m.state != StateWaitingResponse {
		return wire.Frame{}, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.OnHandshakeInit", "unexpected state")
	}
	if err := m.pinPeerIdentity(h1.IdentityPK); err != nil {
		return wire.Frame{}, err
	}
	preimage := m.tr.Snapshot()
	if err := m.verifyTranscript(h1.IdentityPK, preimage, h1.Signature); err != nil {
		m.state = StateFailed
		return wire.Frame{}, err
	}

	encoded, err := h1.Encode()
	if err != nil {
		return wire.Frame{}, err
	}
	m.tr.Append("h1", encoded)

	peerKEMPub, err := primitive.ParseKEMPublicKey(h1.EphemeralKEMPK)
	if err != nil {
		return wire.Frame{}, err
	}
	kemCiphertext, ssKEM, err := primitive.Encapsulate(peerKEMPub)
	if err != nil {
		return wire.Frame{}, err
	}

	ephX, err := primitive.GenerateX25519()
	if err != nil {
		return wire.Frame{}, err
	}
	m.ephX25519 = ephX
	ssX, err := ephX.ECDH(h1.EphemeralX25519PK[:])
	if err != nil {
		return wire.Frame{}, err
	}

	if err := m.deriveKeySchedule(ssX, ssKEM); err != nil {
		return wire.Frame{}, err
	}

	h2 := wire.HandshakeResponse{
		KEMCiphertext: kemCiphertext,
		IdentityPK:    m.identity.PublicBytes(),
	}
	copy(h2.EphemeralX25519PK[:], ephX.PublicBytes())

	sigPreimage := m.tr.Snapshot()
	signature, err := m.signTranscript(sigPreimage)
	if err != nil {
		return wire.Frame{}, err
	}
	h2.Signature = signature

	encoded2, err := h2.Encode()
	if err != nil {
		return wire.Frame{}, err
	}
	m.tr.Append("h2", encoded2)
	m.state = StateWaitingComplete
	m.armPhaseTimeout()
	return wire.Frame{Type: wire.TypeHandshakeResponse, Payload: encoded2}, nil
}

// OnHandshakeResponse processes H2 on the initiator side, completes the key
// schedule, and produces H3 (HandshakeComplete). The initiator is
// Established as soon as H3 is sent.
func (m *Machine) OnHandshakeResponse(h2 wire.HandshakeResponse) (wire.Frame, *session.Params, error) {
	if m.state != StateWaitingResponse {
		return wire.Frame{}, nil, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.OnHandshakeResponse", "unexpected state")
	}
	if err := m.pinPeerIdentity(h2.IdentityPK); err != nil {
		return wire.Frame{}, nil, err
	}
	preimage := m.tr.Snapshot()
	if err := m.verifyTranscript(h2.IdentityPK, preimage, h2.Signature); err != nil {
		m.state = StateFailed
		return wire.Frame{}, nil, err
	}

	encoded, err := h2.Encode()
	if err != nil {
		return wire.Frame{}, nil, err
	}
	m.tr.Append("h2", encoded)

	ssKEM, err := m.ephKEM.Decapsulate(h2.KEMCiphertext)
	if err != nil {
		return wire.Frame{}, nil, err
	}
	ssX, err := m.ephX25519.ECDH(h2.EphemeralX25519PK[:])
	if err != nil {
		return wire.Frame{}, nil, err
	}

	if err := m.deriveKeySchedule(ssX, ssKEM); err != nil {
		return wire.Frame{}, nil, err
	}

	mac := m.completionMAC()
	complete := wire.HandshakeComplete{MAC: mac}
	params := m.buildParams()
	m.state = StateEstablished
	return wire.Frame{Type: wire.TypeHandshakeComplete, Payload: complete.Encode()}, params, nil
}

// OnHandshakeComplete processes H3 on the responder side. A MAC mismatch
// means the initiator's KEM decapsulation hit the implicit-rejection value.
func (m *Machine) OnHandshakeComplete(complete wire.HandshakeComplete) (*session.Params, error) {
	if m.state != StateWaitingComplete {
		return nil, m.fail(b4aeerr.KindHandshakeProtocol, "handshake.Machine.OnHandshakeComplete", "unexpected state")
	}
	want := m.completionMAC()
	if !primitive.ConstantTimeEqual(want, complete.MAC) {
		return nil, m.fail(b4aeerr.KindHandshakeMacFailure, "handshake.Machine.OnHandshakeComplete", "completion MAC mismatch")
	}
	params := m.buildParams()
	m.state = StateEstablished
	return params, nil
}

func containsMode(set []mode.AuthMode, want mode.AuthMode) bool {
	for _, m := range set {
		if m == want {
			return true
		}
	}
	return false
}

// signTranscript signs the given transcript snapshot with this machine's
// chosen-mode identity. Scheme A's tag depends on the peer's identity
// public key (the mutual-ECDH construction), so Scheme A must already know
// the peer's pinned identity key before the first signature is produced;
// Scheme B needs no peer material to sign.
func (m *Machine) signTranscript(preimage []byte) (*sig.Tagged, error) {
	if m.identity.Mode() == mode.ModeA {
		if len(m.peerIdentityPK) == 0 {
			return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "handshake.Machine.signTranscript", "mode A requires a pinned peer identity key")
		}
		return SignWithPeer(m.identity, m.peerIdentityPK, preimage)
	}
	return m.identity.Sign(preimage)
}

func (m *Machine) verifyTranscript(peerPK, preimage []byte, tag *sig.Tagged) error {
	return m.identity.Verify(peerPK, preimage, tag)
}

// pinPeerIdentity enforces that a wire-presented identity public key
// matches the key this Machine was configured to expect, when a pin is
// configured. Without a pin, Scheme A's tag would authenticate nothing:
// anyone can generate an Ed25519 keypair and claim to be the expected peer.
func (m *Machine) pinPeerIdentity(wirePK []byte) error {
	if len(m.peerIdentityPK) == 0 {
		return nil
	}
	if !primitive.ConstantTimeEqual(m.peerIdentityPK, wirePK) {
		return m.fail(b4aeerr.KindAuthenticationFailed, "handshake.Machine.pinPeerIdentity", "peer identity key does not match pinned key")
	}
	return nil
}

// deriveKeySchedule computes session_id, master_secret, and root_key per
// the handshake's key-schedule formulas.
func (m *Machine) deriveKeySchedule(ssX, ssKEM []byte) error {
	salt := append(append([]byte{}, m.clientRandom[:]...), m.serverRandom[:]...)
	ikm := append(append([]byte{}, ssX...), ssKEM...)
	masterSecret, err := primitive.Expand(salt, ikm, primitive.Label("master-secret"), 64)
	if err != nil {
		return err
	}
	m.masterSecret = masterSecret

	sidIKM := append(append(append([]byte{}, m.clientRandom[:]...), m.serverRandom[:]...), byte(m.selection.Chosen))
	sidBytes, err := primitive.Expand(nil, sidIKM, primitive.Label("session-id"), 32)
	if err != nil {
		return err
	}
	copy(m.sessionID[:], sidBytes)

	rootSalt := append(append([]byte{}, m.sessionID[:]...), m.tr.Snapshot()...)
	rootKey, err := primitive.Expand(rootSalt, m.masterSecret, primitive.Label("root-key"), 32)
	if err != nil {
		return err
	}
	m.rootKey = rootKey
	return nil
}

// completionMAC is H3's MAC-only confirmation, bound to the frozen
// transcript and the root key so only a party with the correctly derived
// root key can produce it.
func (m *Machine) completionMAC() []byte {
	return primitive.MAC(m.rootKey, m.tr.Snapshot(), []byte("handshake-complete"))
}

func (m *Machine) buildParams() *session.Params {
	sendKey, recvKey, err := session.DeriveInitialChainKeys(m.sessionID, m.masterSecret, m.tr.Snapshot(), m.role)
	if err != nil {
		m.state = StateFailed
		return nil
	}
	return &session.Params{
		ID:             m.sessionID,
		Mode:           m.selection.Chosen,
		Role:           m.role,
		RootKey:        m.rootKey,
		SendChainKey:   sendKey,
		RecvChainKey:   recvKey,
		TranscriptHash: m.tr.Snapshot(),
		Policy:         m.cfg.RekeyPolicy,
		IdleTimeout:    m.cfg.IdleTimeout,
		QueueDepth:     m.cfg.QueueDepth,
		Now:            m.cfg.now(),
	}
}
