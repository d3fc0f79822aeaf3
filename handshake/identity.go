package handshake

import (
	"crypto/ed25519"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive/sig"
)

// Identity is a mode-specific long-term identity the handshake can sign and
// verify with, without the handshake package needing to know which scheme
// backs it. Scheme A's Verify needs the verifier's own private key (the
// mutual-ECDH construction), so Verify is a method on the holder's own
// identity rather than a free function.
type Identity interface {
	Mode() mode.AuthMode
	PublicBytes() []byte
	Sign(message []byte) (*sig.Tagged, error)
	Verify(peerPublicBytes, message []byte, tag *sig.Tagged) error
}

// IdentityKeyStore is the external collaborator the handshake core asks for
// identity material, looked up by negotiated mode; the core never persists
// identity keys itself.
type IdentityKeyStore interface {
	IdentityFor(m mode.AuthMode) (Identity, error)
}

type identityA struct{ id *sig.IdentityA }

// NewIdentityA wraps a Scheme A identity for use as a handshake Identity.
func NewIdentityA(id *sig.IdentityA) Identity { return identityA{id: id} }

func (a identityA) Mode() mode.AuthMode   { return mode.ModeA }
func (a identityA) PublicBytes() []byte    { return a.id.PublicBytes() }

func (a identityA) Sign(message []byte) (*sig.Tagged, error) {
	return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "handshake.identityA.Sign", "scheme A signing requires the peer's public key; use SignWithPeer")
}

func (a identityA) Verify(peerPublicBytes, message []byte, tag *sig.Tagged) error {
	peerPub, err := parseEd25519(peerPublicBytes)
	if err != nil {
		return err
	}
	return sig.VerifyA(a.id, peerPub, message, tag)
}

// SignWithPeer produces a Scheme A tag; unlike Scheme B, Scheme A's
// signature depends on the peer's public key, so it cannot be produced
// through the uniform Identity.Sign(message) shape alone.
func SignWithPeer(id Identity, peerPublicBytes, message []byte) (*sig.Tagged, error) {
	switch v := id.(type) {
	case identityA:
		peerPub, err := parseEd25519(peerPublicBytes)
		if err != nil {
			return nil, err
		}
		return sig.SignA(v.id, peerPub, message)
	case identityB:
		return sig.SignB(v.id, message), nil
	default:
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "handshake.SignWithPeer", "unknown identity implementation")
	}
}

type identityB struct{ id *sig.IdentityB }

// NewIdentityB wraps a Scheme B identity for use as a handshake Identity.
func NewIdentityB(id *sig.IdentityB) Identity { return identityB{id: id} }

func (b identityB) Mode() mode.AuthMode  { return mode.ModeB }
func (b identityB) PublicBytes() []byte   { return b.id.PublicBytes() }

func (b identityB) Sign(message []byte) (*sig.Tagged, error) {
	return sig.SignB(b.id, message), nil
}

func (b identityB) Verify(peerPublicBytes, message []byte, tag *sig.Tagged) error {
	peerPub, err := sig.ParseIdentityBPublicKey(peerPublicBytes)
	if err != nil {
		return err
	}
	return sig.VerifyB(peerPub, message, tag)
}

func parseEd25519(data []byte) (ed25519.PublicKey, error) {
	if len(data) != ed25519.PublicKeySize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "handshake.parseEd25519", "bad ed25519 public key length")
	}
	out := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(out, data)
	return out, nil
}
