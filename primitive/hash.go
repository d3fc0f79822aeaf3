package primitive

import (
	"crypto/hmac"
	"crypto/sha256"

	"golang.org/x/crypto/sha3"
)

// HashSize is the digest length of the transcript hash (SHA3-256).
const HashSize = 32

// Hash computes SHA3-256(data). Used for transcript accumulation and for
// the Bloom-filter replay guard's index functions.
func Hash(data ...[]byte) [HashSize]byte {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	h.Sum(out[:0])
	return out
}

// MAC computes HMAC-SHA256(key, data), used by the cookie subsystem and by
// the handshake's completion MAC.
func MAC(key []byte, data ...[]byte) []byte {
	m := hmac.New(sha256.New, key)
	for _, d := range data {
		m.Write(d)
	}
	return m.Sum(nil)
}

// ConstantTimeEqual reports whether a and b are equal, in time independent
// of where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
