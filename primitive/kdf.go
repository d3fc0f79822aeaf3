package primitive

import (
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// Expand runs HKDF-Extract-then-Expand over SHA3-512: it extracts a
// pseudorandom key from ikm salted with salt, then expands it into n bytes
// bound to info. Every call site prefixes info with the protocol ID and an
// ASCII label so that keys derived for one purpose can never collide with
// keys derived for another, even given the same ikm.
func Expand(salt, ikm, info []byte, n int) ([]byte, error) {
	r := hkdf.New(sha3.New512, ikm, salt, info)
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "primitive.Expand", "hkdf expand failed", err)
	}
	return out, nil
}

// Label builds an HKDF info string of the form protocol_id || label || context,
// the canonical domain-separation shape used by every derivation in the
// handshake and session key schedules.
func Label(label string, context ...[]byte) []byte {
	pid := ID()
	out := make([]byte, 0, len(pid)+len(label)+32)
	out = append(out, pid[:]...)
	out = append(out, label...)
	for _, c := range context {
		out = append(out, c...)
	}
	return out
}
