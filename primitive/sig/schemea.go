package sig

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"

	"filippo.io/edwards25519"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// SchemeATagSize is the fixed length of a Scheme A tag: HMAC-SHA512 truncated
// to 64 bytes is the full digest, so no truncation is needed.
const SchemeATagSize = 64

// IdentityA is a long-term Ed25519 identity keypair used only for Scheme A.
// Unlike Scheme B, Scheme A never produces an attributable signature: anyone
// who can compute the same X25519 agreement (i.e. either party to it) could
// have produced an identical tag, which is the deniability property Scheme A
// requires.
type IdentityA struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIdentityA wraps an existing Ed25519 keypair for use with Scheme A.
func NewIdentityA(priv ed25519.PrivateKey, pub ed25519.PublicKey) *IdentityA {
	return &IdentityA{priv: priv, pub: pub}
}

// PublicBytes returns the 32-byte Ed25519 public key.
func (id *IdentityA) PublicBytes() []byte {
	out := make([]byte, ed25519.PublicKeySize)
	copy(out, id.pub)
	return out
}

// montgomeryPrivate converts an Ed25519 private key's seed into the X25519
// scalar that shares a Diffie-Hellman group with the public conversion
// below (RFC 8032 §5.1.5 clamping).
func montgomeryPrivate(priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "sig.montgomeryPrivate", "bad ed25519 private key length")
	}
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	out := make([]byte, 32)
	copy(out, h[:32])
	return out, nil
}

// montgomeryPublic converts an Ed25519 public key (an Edwards point) into
// its birationally equivalent Montgomery u-coordinate.
func montgomeryPublic(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "sig.montgomeryPublic", "bad ed25519 public key length")
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "sig.montgomeryPublic", "not a valid edwards25519 point", err)
	}
	return p.BytesMontgomery(), nil
}

// mutualSecret computes the X25519 agreement between our Ed25519 identity
// and a peer's Ed25519 identity public key. Both parties land on the same
// value: us.priv x peer.pub == peer.priv x us.pub.
func mutualSecret(self *IdentityA, peerPub ed25519.PublicKey) ([]byte, error) {
	xPriv, err := montgomeryPrivate(self.priv)
	if err != nil {
		return nil, err
	}
	xPeerPub, err := montgomeryPublic(peerPub)
	if err != nil {
		return nil, err
	}
	priv, err := ecdh.X25519().NewPrivateKey(xPriv)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "sig.mutualSecret", "invalid derived x25519 scalar", err)
	}
	peer, err := ecdh.X25519().NewPublicKey(xPeerPub)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "sig.mutualSecret", "invalid derived x25519 public key", err)
	}
	secret, err := priv.ECDH(peer)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "sig.mutualSecret", "x25519 agreement failed", err)
	}
	return secret, nil
}

// SignA produces a deniable Scheme A tag over message, authenticated by the
// X25519 agreement between self and peerPub. Either party to the agreement
// can reproduce this tag, so it proves the message passed between the pair
// without binding it to either individual's identity, the deniability
// property Scheme A calls for.
func SignA(self *IdentityA, peerPub ed25519.PublicKey, message []byte) (*Tagged, error) {
	secret, err := mutualSecret(self, peerPub)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha512.New, secret)
	mac.Write(message)
	return &Tagged{Variant: VariantA, Signature: mac.Sum(nil)}, nil
}

// VerifyA recomputes the Scheme A tag from the verifier's own identity and
// the signer's claimed public key, then compares in constant time.
func VerifyA(self *IdentityA, signerPub ed25519.PublicKey, message []byte, tag *Tagged) error {
	if tag.Variant != VariantA {
		return b4aeerr.New(b4aeerr.KindAuthenticationFailed, "sig.VerifyA", "signature variant mismatch")
	}
	if len(tag.Signature) != SchemeATagSize {
		return b4aeerr.New(b4aeerr.KindAuthenticationFailed, "sig.VerifyA", "bad tag length")
	}
	secret, err := mutualSecret(self, signerPub)
	if err != nil {
		return err
	}
	mac := hmac.New(sha512.New, secret)
	mac.Write(message)
	if !hmac.Equal(mac.Sum(nil), tag.Signature) {
		return b4aeerr.New(b4aeerr.KindAuthenticationFailed, "sig.VerifyA", "tag mismatch")
	}
	return nil
}
