package handshake

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive"
	"github.com/b4ae-project/b4ae/primitive/sig"
	"github.com/b4ae-project/b4ae/session"
	"github.com/b4ae-project/b4ae/wire"
)

type fixedKeyStore struct {
	identity Identity
}

func (f fixedKeyStore) IdentityFor(m mode.AuthMode) (Identity, error) {
	if f.identity.Mode() != m {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "test.fixedKeyStore.IdentityFor", "no identity for mode")
	}
	return f.identity, nil
}

func newModeAIdentity(t *testing.T) *sig.IdentityA {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return sig.NewIdentityA(priv, pub)
}

func newModeBIdentity(t *testing.T) *sig.IdentityB {
	t.Helper()
	id, err := sig.GenerateIdentityB(primitive.Reader)
	require.NoError(t, err)
	return id
}

func defaultMachineConfig(peerPK []byte, modes ...mode.AuthMode) Config {
	return Config{
		SupportedModes: modes,
		PreferredMode:  modes[0],
		IdleTimeout:    time.Hour,
		QueueDepth:     16,
		PeerIdentityPK: peerPK,
	}
}

// runHandshake drives initiator and responder machines to completion,
// returning each side's derived Params.
func runHandshake(t *testing.T, initiator, responder *Machine) (initParams, respParams *session.Params) {
	t.Helper()

	helloFrame, err := initiator.Initiate()
	require.NoError(t, err)
	hello, err := wire.DecodeClientHello(helloFrame.Payload)
	require.NoError(t, err)
	require.Equal(t, initiator.clientRandom, hello.ClientRandom)

	challenge := wire.CookieChallenge{IssueTimeUnix: 1234, TimeoutSeconds: 30}
	helloCookieFrame, err := initiator.ClientHelloWithCookie(challenge)
	require.NoError(t, err)
	helloCookie, err := wire.DecodeClientHelloWithCookie(helloCookieFrame.Payload)
	require.NoError(t, err)

	selFrame, err := responder.Accept(helloCookie)
	require.NoError(t, err)
	sel, err := wire.DecodeModeSelection(selFrame.Payload)
	require.NoError(t, err)

	h1Frame, err := initiator.OnModeSelection(sel)
	require.NoError(t, err)
	h1, err := wire.DecodeHandshakeInit(h1Frame.Payload)
	require.NoError(t, err)

	h2Frame, err := responder.OnHandshakeInit(h1)
	require.NoError(t, err)
	h2, err := wire.DecodeHandshakeResponse(h2Frame.Payload)
	require.NoError(t, err)

	h3Frame, params, err := initiator.OnHandshakeResponse(h2)
	require.NoError(t, err)
	require.NotNil(t, params)
	h3, err := wire.DecodeHandshakeComplete(h3Frame.Payload)
	require.NoError(t, err)

	respP, err := responder.OnHandshakeComplete(h3)
	require.NoError(t, err)
	require.NotNil(t, respP)

	return params, respP
}

func TestHandshakeModeBEstablishesMatchingSession(t *testing.T) {
	initID := newModeBIdentity(t)
	respID := newModeBIdentity(t)

	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityB(initID)}, defaultMachineConfig(nil, mode.ModeB))
	responder := NewResponder(fixedKeyStore{identity: NewIdentityB(respID)}, defaultMachineConfig(nil, mode.ModeB))

	initP, respP := runHandshake(t, initiator, responder)
	require.Equal(t, initP.ID, respP.ID)
	require.Equal(t, initP.RootKey, respP.RootKey)
	require.Equal(t, initP.SendChainKey, respP.RecvChainKey)
	require.Equal(t, initP.RecvChainKey, respP.SendChainKey)
	require.Equal(t, StateEstablished, initiator.State())
	require.Equal(t, StateEstablished, responder.State())
}

func TestHandshakeModeAEstablishesMatchingSession(t *testing.T) {
	initID := newModeAIdentity(t)
	respID := newModeAIdentity(t)

	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityA(initID)}, defaultMachineConfig(respID.PublicBytes(), mode.ModeA))
	responder := NewResponder(fixedKeyStore{identity: NewIdentityA(respID)}, defaultMachineConfig(initID.PublicBytes(), mode.ModeA))

	initP, respP := runHandshake(t, initiator, responder)
	require.Equal(t, initP.ID, respP.ID)
	require.Equal(t, initP.RootKey, respP.RootKey)
}

func TestHandshakeRejectsUnofferedMode(t *testing.T) {
	initID := newModeBIdentity(t)

	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityB(initID)}, defaultMachineConfig(nil, mode.ModeB))

	_, err := initiator.Initiate()
	require.NoError(t, err)
	_, err = initiator.ClientHelloWithCookie(wire.CookieChallenge{})
	require.NoError(t, err)

	// A malicious or buggy responder selects a mode the initiator never
	// offered; OnModeSelection must reject it rather than proceed.
	forged := wire.ModeSelection{Selected: mode.ModeA, ServerRandom: [32]byte{1, 2, 3}}
	_, err = initiator.OnModeSelection(forged)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindModeNegotiationFailed))
	require.Equal(t, StateFailed, initiator.State())
}

func TestHandshakeRejectsReservedModeC(t *testing.T) {
	initID := newModeBIdentity(t)
	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityB(initID)}, defaultMachineConfig(nil, mode.ModeB))
	_, err := initiator.Initiate()
	require.NoError(t, err)
	_, err = initiator.ClientHelloWithCookie(wire.CookieChallenge{})
	require.NoError(t, err)

	forged := wire.ModeSelection{Selected: mode.ModeC, ServerRandom: [32]byte{1}}
	_, err = initiator.OnModeSelection(forged)
	require.Error(t, err)
}

func TestHandshakeRejectsUnpinnedPeerIdentity(t *testing.T) {
	initID := newModeAIdentity(t)
	respID := newModeAIdentity(t)
	impostorID := newModeAIdentity(t)

	// Initiator pins the impostor's key instead of the real responder's.
	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityA(initID)}, defaultMachineConfig(impostorID.PublicBytes(), mode.ModeA))
	responder := NewResponder(fixedKeyStore{identity: NewIdentityA(respID)}, defaultMachineConfig(initID.PublicBytes(), mode.ModeA))

	helloFrame, err := initiator.Initiate()
	require.NoError(t, err)
	_ = helloFrame
	_, err = initiator.ClientHelloWithCookie(wire.CookieChallenge{})
	require.NoError(t, err)

	helloCookie := wire.ClientHelloWithCookie{
		ClientRandom: initiator.clientRandom,
		ModeOffer:    wire.ModeOffer{Offer: initiator.offer, PreferredMode: mode.ModeA, ClientRandom: initiator.clientRandom},
	}
	selFrame, err := responder.Accept(helloCookie)
	require.NoError(t, err)
	sel, err := wire.DecodeModeSelection(selFrame.Payload)
	require.NoError(t, err)

	h1Frame, err := initiator.OnModeSelection(sel)
	require.NoError(t, err)
	h1, err := wire.DecodeHandshakeInit(h1Frame.Payload)
	require.NoError(t, err)

	_, err = responder.OnHandshakeInit(h1)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindAuthenticationFailed))
}

func TestHandshakePinRejectsSubstitutedIdentityBeforeVerify(t *testing.T) {
	initID := newModeBIdentity(t)
	respID := newModeBIdentity(t)
	impostorID := newModeBIdentity(t)

	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityB(initID)}, defaultMachineConfig(respID.PublicBytes(), mode.ModeB))
	responder := NewResponder(fixedKeyStore{identity: NewIdentityB(respID)}, defaultMachineConfig(nil, mode.ModeB))

	_, err := initiator.Initiate()
	require.NoError(t, err)
	helloCookieFrame, err := initiator.ClientHelloWithCookie(wire.CookieChallenge{})
	require.NoError(t, err)
	helloCookie, err := wire.DecodeClientHelloWithCookie(helloCookieFrame.Payload)
	require.NoError(t, err)

	selFrame, err := responder.Accept(helloCookie)
	require.NoError(t, err)
	sel, err := wire.DecodeModeSelection(selFrame.Payload)
	require.NoError(t, err)

	h1Frame, err := initiator.OnModeSelection(sel)
	require.NoError(t, err)
	h1, err := wire.DecodeHandshakeInit(h1Frame.Payload)
	require.NoError(t, err)

	h2Frame, err := responder.OnHandshakeInit(h1)
	require.NoError(t, err)
	h2, err := wire.DecodeHandshakeResponse(h2Frame.Payload)
	require.NoError(t, err)

	// An on-path party swaps the claimed identity key for an impostor's;
	// the pin must reject this before a signature check ever runs.
	h2.IdentityPK = impostorID.PublicBytes()

	_, _, err = initiator.OnHandshakeResponse(h2)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindAuthenticationFailed))
	require.Equal(t, StateFailed, initiator.State())
}

func TestHandshakeCompleteMACFailsOnTamperedTranscript(t *testing.T) {
	initID := newModeBIdentity(t)
	respID := newModeBIdentity(t)

	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityB(initID)}, defaultMachineConfig(nil, mode.ModeB))
	responder := NewResponder(fixedKeyStore{identity: NewIdentityB(respID)}, defaultMachineConfig(nil, mode.ModeB))

	_, err := initiator.Initiate()
	require.NoError(t, err)
	helloCookieFrame, err := initiator.ClientHelloWithCookie(wire.CookieChallenge{})
	require.NoError(t, err)
	helloCookie, err := wire.DecodeClientHelloWithCookie(helloCookieFrame.Payload)
	require.NoError(t, err)

	selFrame, err := responder.Accept(helloCookie)
	require.NoError(t, err)
	sel, err := wire.DecodeModeSelection(selFrame.Payload)
	require.NoError(t, err)

	h1Frame, err := initiator.OnModeSelection(sel)
	require.NoError(t, err)
	h1, err := wire.DecodeHandshakeInit(h1Frame.Payload)
	require.NoError(t, err)

	h2Frame, err := responder.OnHandshakeInit(h1)
	require.NoError(t, err)
	h2, err := wire.DecodeHandshakeResponse(h2Frame.Payload)
	require.NoError(t, err)

	h3Frame, _, err := initiator.OnHandshakeResponse(h2)
	require.NoError(t, err)
	h3, err := wire.DecodeHandshakeComplete(h3Frame.Payload)
	require.NoError(t, err)

	// Corrupt the MAC as if the initiator's KEM decapsulation had hit the
	// implicit-rejection value: cryptographically valid frame, wrong key.
	h3.MAC[0] ^= 0xFF

	_, err = responder.OnHandshakeComplete(h3)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindHandshakeMacFailure))
	require.Equal(t, StateFailed, responder.State())
}

func TestHandshakePhaseTimeoutExpires(t *testing.T) {
	now := time.Now()
	cfg := defaultMachineConfig(nil, mode.ModeB)
	cfg.Now = func() time.Time { return now }
	initID := newModeBIdentity(t)
	initiator := NewInitiator(fixedKeyStore{identity: NewIdentityB(initID)}, cfg)

	_, err := initiator.Initiate()
	require.NoError(t, err)
	require.NoError(t, initiator.CheckTimeout())

	now = now.Add(PhaseTimeout + time.Second)
	require.Error(t, initiator.CheckTimeout())
	require.Equal(t, StateFailed, initiator.State())
}
