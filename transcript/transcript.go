// Package transcript implements the running transcript hash that binds
// every handshake message together. Each party accumulates
// the same sequence of labeled fields as messages are sent and received; at
// the end of the handshake both sides must arrive at an identical digest,
// which is then bound into the key schedule and into every signature.
package transcript

import (
	"encoding/binary"

	"github.com/b4ae-project/b4ae/primitive"
)

// Accumulator incrementally hashes a sequence of labeled byte strings with
// SHA3-256. It is not safe for concurrent use; each handshake attempt owns
// exactly one.
type Accumulator struct {
	state []byte // digest of everything appended so far; chained into the next Append
}

// New starts a fresh accumulator seeded with a context label, so transcripts
// computed for different protocol roles or purposes can never collide even
// given identical subsequent Append calls.
func New(context string) *Accumulator {
	a := &Accumulator{}
	a.Append("ctx", []byte(context))
	return a
}

// Append folds a labeled field into the transcript. The label and the
// field's length are both committed so that Append("a","bc")+Append("d","e")
// can never collide with Append("a","b")+Append("cd","e").
func (a *Accumulator) Append(label string, field []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	var labelLen [2]byte
	binary.BigEndian.PutUint16(labelLen[:], uint16(len(label)))

	next := make([]byte, 0, len(a.state)+2+len(label)+4+len(field))
	next = append(next, a.state...)
	next = append(next, labelLen[:]...)
	next = append(next, label...)
	next = append(next, lenBuf[:]...)
	next = append(next, field...)

	digest := primitive.Hash(next)
	a.state = digest[:]
}

// Snapshot returns the current 32-byte transcript digest without consuming
// the accumulator; further Append calls may follow.
func (a *Accumulator) Snapshot() []byte {
	out := make([]byte, len(a.state))
	copy(out, a.state)
	return out
}
