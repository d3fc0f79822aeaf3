package primitive

import (
	"crypto/rand"
	"io"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// Reader is the source of cryptographic randomness used throughout B4AE.
// Tests may substitute a deterministic io.Reader; production code must not.
var Reader io.Reader = rand.Reader

// RandomBytes returns n cryptographically secure random bytes read from
// Reader.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(Reader, buf); err != nil {
		return nil, b4aeerr.Wrap(b4aeerr.KindUnknown, "primitive.RandomBytes", "entropy source failed", err)
	}
	return buf, nil
}
