// Package primitive implements the B4AE cryptographic primitives layer:
// the post-quantum KEM, the two signature schemes, X25519 key agreement,
// AES-256-GCM AEAD, HKDF-SHA3-512, and SHA3-256/HMAC-SHA256 hashing. Every
// function here is a pure, side-channel-aware building block; none of them
// perform I/O.
package primitive

import "golang.org/x/crypto/sha3"

// ProtocolID is the 32-byte domain-separation prefix folded into every KDF
// call site across the protocol. It is derived once, at process start, from
// the frozen canonical specification blob below.
type ProtocolID [32]byte

// canonicalSpecBlob is the frozen byte string whose SHA3-256 digest is the
// advertised protocol version. Two implementations interoperate iff their
// ProtocolID values match; there is no version negotiation.
const canonicalSpecBlob = "B4AE-v2/kem=ML-KEM-1024;sigA=Ed25519-deniable;sigB=Dilithium5;kex=X25519;aead=AES-256-GCM;kdf=HKDF-SHA3-512;hash=SHA3-256"

// protocolID is computed once at package init and returned by every call to ID.
var protocolID = ComputeProtocolID()

// ComputeProtocolID derives protocol_id = SHA3-256(canonical_spec_bytes).
// It is exported so tests and alternative deployments can verify the value
// independently; production code should use ID() for the cached instance.
func ComputeProtocolID() ProtocolID {
	sum := sha3.Sum256([]byte(canonicalSpecBlob))
	return ProtocolID(sum)
}

// ID returns the process-global protocol identity.
func ID() ProtocolID { return protocolID }

// Bytes returns a copy of the protocol ID as a slice, convenient for
// concatenation into KDF info strings.
func (p ProtocolID) Bytes() []byte {
	out := make([]byte, len(p))
	copy(out, p[:])
	return out
}
