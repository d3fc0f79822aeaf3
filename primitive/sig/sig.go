// Package sig implements B4AE's two mutually exclusive authentication
// schemes: Scheme A, a deniable MAC-based signature built from a static
// X25519 agreement between the parties' identity keys, and Scheme B, a
// non-repudiable post-quantum signature (Dilithium mode 5 / ML-DSA-87). A
// session tags every signature with the scheme that produced it so a peer
// can never be tricked into accepting one scheme's tag as the other's.
package sig

// Variant identifies which of the two authentication schemes produced a
// signature. It is carried alongside every signature on the wire so a
// verifier never has to guess, and can reject a mismatched variant outright
// rather than attempting verification under the wrong scheme.
type Variant uint8

const (
	VariantUnspecified Variant = iota
	VariantA                  // deniable, HMAC-over-X25519-agreement
	VariantB                  // non-repudiable, Dilithium mode 5
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "A-deniable"
	case VariantB:
		return "B-non-repudiable"
	default:
		return "unspecified"
	}
}

// Tagged bundles a signature with the variant that produced it. Wire
// encoding is handled by the wire package; this type is the in-memory
// representation shared by both schemes.
type Tagged struct {
	Variant   Variant
	Signature []byte
}
