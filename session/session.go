package session

import (
	"sync"
	"time"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive"
)

// ItemKind distinguishes real application data from cover traffic at the
// AEAD associated-data level. Mirrors wire.ItemKind
// without importing wire, so session has no dependency on the framing layer.
type ItemKind byte

const (
	KindReal  ItemKind = 0x01
	KindCover ItemKind = 0x02
)

// Encrypted is the result of encrypting one message: everything the caller
// needs to build an AppData or Rekey frame.
type Encrypted struct {
	Counter    uint64
	Kind       ItemKind
	Ciphertext []byte // includes the 16-byte GCM tag
}

// Session is B4AE's per-connection forward-secrecy engine. All fields are
// guarded by mu; only one goroutine may mutate a session at a time.
type Session struct {
	mu sync.Mutex

	id   ID
	mode mode.AuthMode
	role Role

	sendChain *chain
	recvChain *chain
	sendNoncePrefix [4]byte
	recvNoncePrefix [4]byte

	sendCounter uint64
	recvCounter uint64
	recvWindow  *replayWindow

	rootKey        [32]byte
	transcriptHash []byte
	rekeyCounter   uint64

	messagesSent, messagesReceived uint64
	bytesSent, bytesReceived       uint64

	policy      RekeyPolicy
	createdAt   time.Time
	lastActivity time.Time
	idleTimeout time.Duration

	closed bool
}

// NewSession constructs an established Session from handshake output. The
// caller's Params.RootKey/SendChainKey/RecvChainKey are copied in and then
// zeroed at the call site's discretion; NewSession itself zeros its local
// copies only on rekey/Close.
func NewSession(p Params) (*Session, error) {
	sendPrefix, err := primitive.RandomBytes(4)
	if err != nil {
		return nil, err
	}
	recvPrefix, err := primitive.RandomBytes(4)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:          p.ID,
		mode:        p.Mode,
		role:        p.Role,
		sendChain:   newChain(p.SendChainKey),
		recvChain:   newChain(p.RecvChainKey),
		recvWindow:  newReplayWindow(),
		policy:      p.Policy,
		createdAt:   p.Now,
		lastActivity: p.Now,
		idleTimeout: p.IdleTimeout,
	}
	copy(s.sendNoncePrefix[:], sendPrefix)
	copy(s.recvNoncePrefix[:], recvPrefix)
	copy(s.rootKey[:], p.RootKey)
	s.transcriptHash = append([]byte{}, p.TranscriptHash...)
	return s, nil
}

// ID returns the session's stable identifier.
func (s *Session) ID() ID { return s.id }

// Mode returns the negotiated authentication mode.
func (s *Session) Mode() mode.AuthMode { return s.mode }

func nonceFor(prefix [4]byte, counter uint64) []byte {
	n := make([]byte, primitive.AEADNonceSize)
	copy(n[:4], prefix[:])
	for i := 0; i < 8; i++ {
		n[4+i] = byte(counter >> (56 - 8*i))
	}
	return n
}

func aadFor(sessionID ID, counter uint64, kind ItemKind) []byte {
	pid := primitive.ID()
	aad := make([]byte, 0, len(pid)+32+8+1)
	aad = append(aad, pid.Bytes()...)
	aad = append(aad, sessionID[:]...)
	for i := 0; i < 8; i++ {
		aad = append(aad, byte(counter>>(56-8*i)))
	}
	aad = append(aad, byte(kind))
	return aad
}

// encryptLocked performs the ratchet-step-then-seal sequence common to
// Encrypt and EmitCover. Caller must hold mu.
func (s *Session) encryptLocked(plaintext []byte, kind ItemKind) (*Encrypted, error) {
	if s.closed {
		return nil, b4aeerr.New(b4aeerr.KindTransportClosed, "session.Session.encrypt", "session is closed")
	}
	counter := s.sendCounter
	if counter == ^uint64(0) {
		return nil, b4aeerr.New(b4aeerr.KindSequenceExhausted, "session.Session.encrypt", "send counter would overflow")
	}

	padded, err := pad(plaintext)
	if err != nil {
		return nil, err
	}

	msgKey, err := s.sendChain.step(s.id)
	if err != nil {
		return nil, err
	}
	defer zero(msgKey)

	aead, err := primitive.NewAEAD(msgKey)
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(s.sendNoncePrefix, counter)
	aad := aadFor(s.id, counter, kind)
	ct := aead.Seal(nil, nonce, padded, aad)

	s.sendCounter++
	s.messagesSent++
	s.bytesSent += uint64(len(plaintext))
	s.lastActivity = timeNow()

	return &Encrypted{Counter: counter, Kind: kind, Ciphertext: ct}, nil
}

// Encrypt pads, ratchets, and seals a real application plaintext. Callers
// must reject plaintext larger than MaxPlaintext before calling.
func (s *Session) Encrypt(plaintext []byte) (*Encrypted, error) {
	if len(plaintext)+4 > paddingBuckets[len(paddingBuckets)-1] {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "session.Session.Encrypt", "plaintext exceeds largest padding bucket; caller must split")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encryptLocked(plaintext, KindReal)
}

// EmitCover derives the next chain step and seals a random padded blob,
// consuming sequence-number space exactly like a real message so the wire
// never distinguishes cover from real traffic.
func (s *Session) EmitCover() (*Encrypted, error) {
	blob, err := primitive.RandomBytes(paddingBuckets[0] - 4)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encryptLocked(blob, KindCover)
}

// Decrypt authenticates and, for real messages, decrypts and returns the
// application plaintext. Cover messages authenticate identically but are
// reported via ok=false so the caller (Recv) drops them silently without
// surfacing them to the application.
func (s *Session) Decrypt(counter uint64, kind ItemKind, ciphertext []byte) (plaintext []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, b4aeerr.New(b4aeerr.KindTransportClosed, "session.Session.Decrypt", "session is closed")
	}

	// The replay-window check runs before the chain is touched or the AEAD
	// is opened: a replayed counter must never re-step recvChain (which
	// would derive the wrong key for every legitimate frame after it) and
	// must be reported as the non-fatal ReplayDetected, not surfaced as an
	// authentication failure that tears the session down.
	if !s.recvWindow.checkAndMark(counter) {
		return nil, false, b4aeerr.New(b4aeerr.KindReplayDetected, "session.Session.Decrypt", "sequence number already seen or below window")
	}

	msgKey, err := s.recvChain.advanceTo(s.id, counter, ReplayWindowSize)
	if err != nil {
		return nil, false, err
	}
	defer zero(msgKey)

	aead, err := primitive.NewAEAD(msgKey)
	if err != nil {
		return nil, false, err
	}
	nonce := nonceFor(s.recvNoncePrefix, counter)
	aad := aadFor(s.id, counter, kind)
	padded, aeadErr := aead.Open(nil, nonce, ciphertext, aad)
	if aeadErr != nil {
		return nil, false, aeadErr
	}

	s.messagesReceived++
	s.lastActivity = timeNow()

	if kind == KindCover {
		return nil, false, nil
	}

	out, err := unpad(padded)
	if err != nil {
		return nil, false, err
	}
	s.bytesReceived += uint64(len(out))
	return out, true, nil
}

// NeedsRekey reports whether any of the three rekey triggers has
// fired: combined message count, combined byte volume, or session age.
func (s *Session) NeedsRekey(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsRekeyLocked(now)
}

func (s *Session) needsRekeyLocked(now time.Time) bool {
	if s.messagesSent+s.messagesReceived > s.policy.MaxMessages {
		return true
	}
	if s.bytesSent+s.bytesReceived > s.policy.MaxBytes {
		return true
	}
	if now.Sub(s.createdAt) > s.policy.MaxAge {
		return true
	}
	return false
}

// Rekey derives a fresh root key and chain key pair, zeroing the old chain
// keys, and resets the counters that feed NeedsRekey. It returns the new
// rekey counter, which the caller binds into the outgoing Rekey frame's MAC.
func (s *Session) Rekey() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rekeyCounter++
	s.transcriptHash = rekeyTranscriptHash(s.transcriptHash, s.rekeyCounter)

	newRoot, err := stepRootKey(s.id, s.rootKey[:], s.transcriptHash)
	if err != nil {
		return 0, err
	}
	zero(s.rootKey[:])
	copy(s.rootKey[:], newRoot)
	zero(newRoot)

	sendKey, recvKey, err := deriveChainKeys(s.id, s.rootKey[:], s.transcriptHash, s.role)
	if err != nil {
		return 0, err
	}
	s.sendChain = newChain(sendKey)
	s.recvChain = newChain(recvKey)

	s.messagesSent, s.messagesReceived = 0, 0
	s.bytesSent, s.bytesReceived = 0, 0
	s.createdAt = timeNow()

	return s.rekeyCounter, nil
}

// Idle reports whether the session has been inactive longer than its
// configured idle timeout.
func (s *Session) Idle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimeout <= 0 {
		return false
	}
	return now.Sub(s.lastActivity) > s.idleTimeout
}

// Closed reports whether Close has already run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close zeroes all key material and marks the session unusable. It is safe
// to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	zero(s.sendChain.key[:])
	zero(s.recvChain.key[:])
	zero(s.rootKey[:])
}

// timeNow is a seam so tests can avoid real wall-clock dependence; it is
// not itself mocked in production.
var timeNow = time.Now
