// Package session implements B4AE's per-session forward-secrecy engine: a
// ratcheting chain-key schedule, replay-windowed sequence numbers, PADME
// padding, automatic rekey by age/message-count/volume, and indistinguishable
// cover messages.
package session

import (
	"time"

	"github.com/b4ae-project/b4ae/mode"
)

// ID is a session's 32-byte deterministic identifier, derived at handshake
// completion from both randoms and the negotiated mode.
type ID [32]byte

// RekeyPolicy bounds how long a root key may be used before the session
// forces an in-band Rekey exchange.
type RekeyPolicy struct {
	MaxMessages uint64        // messages_sent + messages_received
	MaxBytes    uint64        // bytes_sent + bytes_received
	MaxAge      time.Duration // session age
}

// DefaultRekeyPolicy returns the recommended message-count, byte-volume, and age triggers.
func DefaultRekeyPolicy() RekeyPolicy {
	return RekeyPolicy{
		MaxMessages: 1 << 20,
		MaxBytes:    1 << 32,
		MaxAge:      24 * time.Hour,
	}
}

// ReplayWindowSize is the minimum sliding-bitmap replay window width.
const ReplayWindowSize = 64

// MaxPlaintext is the hard cap on a single plaintext; larger payloads must
// be split by the caller before Send.
const MaxPlaintext = 1 << 20 // 1 MiB

// paddingBuckets is the fixed PADME-style bucket set plaintexts are padded into.
var paddingBuckets = []int{256, 512, 1024, 2048, 4096, 8192, 16384, 32768}

// Role distinguishes which side of the handshake a session was established
// as, since the chain-key labels invert by role.
type Role uint8

const (
	RoleInitiator Role = iota
	RoleResponder
)

// Params is everything the handshake engine hands off to construct a
// Session once a root key has been derived.
type Params struct {
	ID             ID
	Mode           mode.AuthMode
	Role           Role
	RootKey        []byte // 32 bytes; source of every future rekey step
	SendChainKey   []byte // 32 bytes, initial
	RecvChainKey   []byte // 32 bytes, initial
	TranscriptHash []byte
	Policy         RekeyPolicy
	IdleTimeout    time.Duration
	QueueDepth     int
	Now            time.Time
}
