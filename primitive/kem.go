package primitive

import (
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// KEM sizes, re-exported so callers never import circl directly. ML-KEM-1024
// is NIST Level-5: its 1568-byte public key is the dominant term in the
// handshake's wire size.
const (
	KEMPublicKeySize  = mlkem1024.PublicKeySize
	KEMPrivateKeySize = mlkem1024.PrivateKeySize
	KEMCiphertextSize = mlkem1024.CiphertextSize
	KEMSharedKeySize  = mlkem1024.SharedKeySize
)

// KEMKeyPair is an ML-KEM-1024 encapsulation keypair. The initiator
// generates an ephemeral one per handshake; the responder only encapsulates
// to its public key.
type KEMKeyPair struct {
	pub *mlkem1024.PublicKey
	priv *mlkem1024.PrivateKey
}

// GenerateKEM produces a fresh ML-KEM-1024 keypair.
func GenerateKEM() (*KEMKeyPair, error) {
	pub, priv, err := mlkem1024.GenerateKeyPair(Reader)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "primitive.GenerateKEM", "key generation failed", err)
	}
	return &KEMKeyPair{pub: pub, priv: priv}, nil
}

// PublicBytes packs the public key into its 1568-byte wire encoding.
func (kp *KEMKeyPair) PublicBytes() []byte {
	out := make([]byte, KEMPublicKeySize)
	kp.pub.Pack(out)
	return out
}

// ParseKEMPublicKey unpacks a peer's ML-KEM-1024 public key from its wire
// encoding.
func ParseKEMPublicKey(data []byte) (*mlkem1024.PublicKey, error) {
	if len(data) != KEMPublicKeySize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "primitive.ParseKEMPublicKey", "wrong public key length")
	}
	pk := new(mlkem1024.PublicKey)
	if err := pk.Unpack(data); err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindInvalidInput, "primitive.ParseKEMPublicKey", "malformed public key", err)
	}
	return pk, nil
}

// Encapsulate generates a fresh shared secret against the peer's public key,
// returning (ciphertext, shared secret). The shared secret is raw KEM
// output and must be passed through Expand before use as a session key.
func Encapsulate(peerPublic *mlkem1024.PublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct := make([]byte, KEMCiphertextSize)
	ss := make([]byte, KEMSharedKeySize)
	seed, err := RandomBytes(mlkem1024.EncapsulationSeedSize)
	if err != nil {
		return nil, nil, err
	}
	peerPublic.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a peer-supplied ciphertext
// using our private key.
func (kp *KEMKeyPair) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != KEMCiphertextSize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "primitive.KEMKeyPair.Decapsulate", "wrong ciphertext length")
	}
	ss := make([]byte, KEMSharedKeySize)
	kp.priv.DecapsulateTo(ss, ciphertext)
	return ss, nil
}
