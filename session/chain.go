package session

import (
	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/primitive"
)

// chain holds one direction's current chain key. step() advances it exactly
// once per message: it derives a message key and the chain's successor, then
// overwrites the old chain key in place.
//
// nextCounter and skipped are only used on the receive side, where frames
// can legitimately arrive out of order: advanceTo derives a message key for
// an arbitrary counter, ratcheting forward as needed and caching any
// intermediate keys it skips past so a later, older-but-still-in-window
// frame can still be decrypted.
type chain struct {
	key [32]byte

	nextCounter uint64
	skipped     map[uint64][]byte
}

func newChain(initial []byte) *chain {
	c := &chain{skipped: make(map[uint64][]byte)}
	copy(c.key[:], initial)
	zero(initial)
	return c
}

// step derives this message's key and advances the chain. sessionID and
// protocol binding are folded into the HKDF info string so message keys from
// one session are computationally independent of any other session's.
func (c *chain) step(sessionID ID) ([]byte, error) {
	info := primitive.Label("msg-key", sessionID[:])
	msgKey, err := primitive.Expand(nil, c.key[:], info, 32)
	if err != nil {
		return nil, err
	}

	stepInfo := primitive.Label("chain-step", sessionID[:])
	next, err := primitive.Expand(nil, c.key[:], stepInfo, 32)
	if err != nil {
		return nil, err
	}

	zero(c.key[:])
	copy(c.key[:], next)
	zero(next)
	return msgKey, nil
}

// advanceTo returns the message key for counter without disturbing chain
// state for any counter but the one requested: a cached skipped key is
// returned and evicted if counter was already stepped past by an earlier,
// later-arriving frame; otherwise the chain is stepped forward from its
// current position to counter, caching every key it passes over along the
// way. maxSkip bounds how far a single call may ratchet forward, so a
// forged, far-future counter cannot force unbounded HKDF work.
func (c *chain) advanceTo(sessionID ID, counter, maxSkip uint64) ([]byte, error) {
	if msgKey, ok := c.skipped[counter]; ok {
		delete(c.skipped, counter)
		return msgKey, nil
	}
	if counter < c.nextCounter {
		return nil, b4aeerr.New(b4aeerr.KindReplayDetected, "session.chain.advanceTo", "message key for counter was already consumed")
	}
	if counter-c.nextCounter > maxSkip {
		return nil, b4aeerr.New(b4aeerr.KindReplayDetected, "session.chain.advanceTo", "counter is too far ahead of the chain's current position")
	}

	for c.nextCounter < counter {
		skippedKey, err := c.step(sessionID)
		if err != nil {
			return nil, err
		}
		c.skipped[c.nextCounter] = skippedKey
		c.nextCounter++
	}

	msgKey, err := c.step(sessionID)
	if err != nil {
		return nil, err
	}
	c.nextCounter++
	return msgKey, nil
}

// zero overwrites a secret after use. It is not itself free of compiler
// reordering guarantees, but every key's last read happens before this call
// on the same goroutine, which is the property that matters here.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// deriveChainKeys re-derives the send/recv chain key pair salted by the
// session ID and transcript hash, with role-relative labels inverted on the
// responder side. ikm is master_secret for the initial derivation and the
// freshly stepped root key for every subsequent rekey.
func deriveChainKeys(sessionID ID, ikm, transcriptHash []byte, role Role) (sendKey, recvKey []byte, err error) {
	salt := append(append([]byte{}, sessionID[:]...), transcriptHash...)
	i2r := primitive.Label("chain-key-i2r")
	r2i := primitive.Label("chain-key-r2i")

	i2rKey, err := primitive.Expand(salt, ikm, i2r, 32)
	if err != nil {
		return nil, nil, err
	}
	r2iKey, err := primitive.Expand(salt, ikm, r2i, 32)
	if err != nil {
		return nil, nil, err
	}

	if role == RoleInitiator {
		return i2rKey, r2iKey, nil
	}
	return r2iKey, i2rKey, nil
}

// stepRootKey derives the next root key for a rekey event, salted by the
// session ID and the rekeyed transcript hash: the transcript hash used for
// this derivation is SHA3-256(old_transcript_hash ‖ "rekey" ‖ rekey_counter),
// not the handshake's original transcript hash.
func stepRootKey(sessionID ID, rootKey, newTranscriptHash []byte) ([]byte, error) {
	salt := append(append([]byte{}, sessionID[:]...), newTranscriptHash...)
	return primitive.Expand(salt, rootKey, primitive.Label("root-key"), 32)
}

// DeriveInitialChainKeys derives the handshake-time send/recv chain key pair
// directly from master_secret, per the handshake's key-schedule. The
// handshake engine calls this once, at Established, to build
// the Params it hands to NewSession.
func DeriveInitialChainKeys(sessionID ID, masterSecret, transcriptHash []byte, role Role) (sendKey, recvKey []byte, err error) {
	return deriveChainKeys(sessionID, masterSecret, transcriptHash, role)
}

// rekeyTranscriptHash computes the rekeyed transcript digest, binding the
// previous transcript to the rekey event counter.
func rekeyTranscriptHash(oldTranscriptHash []byte, rekeyCounter uint64) []byte {
	digest := primitive.Hash(oldTranscriptHash, []byte("rekey"), uint64Bytes(rekeyCounter))
	return digest[:]
}

func uint64Bytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (56 - 8*i))
	}
	return out
}
