package primitive

import (
	"crypto/ecdh"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// X25519PublicKeySize and X25519PrivateKeySize are the fixed Curve25519
// encoding lengths used throughout the handshake's classical KEX leg.
const (
	X25519PublicKeySize  = 32
	X25519PrivateKeySize = 32
)

// X25519KeyPair is an ephemeral Diffie-Hellman keypair on Curve25519, used
// once per handshake and discarded after the key schedule is derived.
type X25519KeyPair struct {
	priv *ecdh.PrivateKey
	pub  *ecdh.PublicKey
}

// GenerateX25519 produces a fresh ephemeral X25519 keypair.
func GenerateX25519() (*X25519KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(Reader)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "primitive.GenerateX25519", "key generation failed", err)
	}
	return &X25519KeyPair{priv: priv, pub: priv.PublicKey()}, nil
}

// PublicBytes returns the 32-byte Curve25519 public key encoding.
func (kp *X25519KeyPair) PublicBytes() []byte {
	return kp.pub.Bytes()
}

// ECDH computes the raw X25519 shared secret with a peer's public key. The
// result is raw Diffie-Hellman output, not yet a usable key: callers must
// run it through Expand with a context-specific label before use.
func (kp *X25519KeyPair) ECDH(peerPublic []byte) ([]byte, error) {
	peer, err := ecdh.X25519().NewPublicKey(peerPublic)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "primitive.X25519KeyPair.ECDH", "invalid peer public key", err)
	}
	secret, err := kp.priv.ECDH(peer)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "primitive.X25519KeyPair.ECDH", "ecdh computation failed", err)
	}
	return secret, nil
}
