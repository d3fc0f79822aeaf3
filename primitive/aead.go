package primitive

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// AEADKeySize and AEADNonceSize fix AES-256-GCM's key and nonce lengths.
const (
	AEADKeySize   = 32
	AEADNonceSize = 12
	AEADTagSize   = 16
)

// AEAD wraps an AES-256-GCM instance bound to a single derived key. Callers
// supply the nonce explicitly; B4AE derives nonces deterministically from
// the session's send/receive counters rather than drawing them at random,
// so AEAD never generates one itself.
type AEAD struct {
	gcm cipher.AEAD
}

// NewAEAD constructs an AEAD from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "primitive.NewAEAD", "key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "primitive.NewAEAD", "aes.NewCipher failed", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, AEADNonceSize)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "primitive.NewAEAD", "cipher.NewGCM failed", err)
	}
	return &AEAD{gcm: gcm}, nil
}

// Seal encrypts plaintext under nonce, authenticating aad, and appends the
// result to dst.
func (a *AEAD) Seal(dst, nonce, plaintext, aad []byte) []byte {
	return a.gcm.Seal(dst, nonce, plaintext, aad)
}

// Open decrypts and authenticates ciphertext, returning the plaintext or an
// authentication error.
func (a *AEAD) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	out, err := a.gcm.Open(dst, nonce, ciphertext, aad)
	if err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindAuthenticationFailed, "primitive.AEAD.Open", "aead authentication failed", err)
	}
	return out, nil
}
