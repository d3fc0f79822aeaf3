package wire

import (
	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/mode"
	"github.com/b4ae-project/b4ae/primitive"
	"github.com/b4ae-project/b4ae/primitive/sig"
)

// ClientHello is frame type 0x01.
type ClientHello struct {
	ClientRandom [32]byte
}

func (m ClientHello) Encode() []byte {
	var w fieldWriter
	w.fixed(m.ClientRandom[:])
	return w.bytes()
}

func DecodeClientHello(payload []byte) (ClientHello, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeClientHello"}
	raw, err := r.fixed(32)
	if err != nil {
		return ClientHello{}, err
	}
	var m ClientHello
	copy(m.ClientRandom[:], raw)
	return m, nil
}

// CookieChallenge is frame type 0x02.
type CookieChallenge struct {
	Cookie         [32]byte
	IssueTimeUnix  uint64
	TimeoutSeconds uint32
}

func (m CookieChallenge) Encode() []byte {
	var w fieldWriter
	w.fixed(m.Cookie[:])
	w.u64(m.IssueTimeUnix)
	w.u32(m.TimeoutSeconds)
	return w.bytes()
}

func DecodeCookieChallenge(payload []byte) (CookieChallenge, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeCookieChallenge"}
	var m CookieChallenge
	raw, err := r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.Cookie[:], raw)
	if m.IssueTimeUnix, err = r.u64(); err != nil {
		return m, err
	}
	if m.TimeoutSeconds, err = r.u32(); err != nil {
		return m, err
	}
	return m, nil
}

// ModeOffer is carried inside ClientHelloWithCookie's payload (frame type
// 0x04 is a logical tag only, never sent as a standalone frame).
type ModeOffer struct {
	Offer        mode.Offer
	PreferredMode mode.AuthMode
	ClientRandom [32]byte
}

func EncodeModeOffer(m ModeOffer) []byte {
	var w fieldWriter
	w.byte(byte(len(m.Offer.Supported)))
	for _, am := range m.Offer.Supported {
		w.byte(byte(am))
	}
	w.byte(byte(m.PreferredMode))
	w.fixed(m.ClientRandom[:])
	return w.bytes()
}

func DecodeModeOffer(payload []byte) (ModeOffer, int, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeModeOffer"}
	var out ModeOffer
	n, err := r.byte()
	if err != nil {
		return out, 0, err
	}
	modes := make([]mode.AuthMode, n)
	for i := range modes {
		b, err := r.byte()
		if err != nil {
			return out, 0, err
		}
		modes[i] = mode.AuthMode(b)
	}
	offer, err := mode.NewOffer(modes...)
	if err != nil {
		return out, 0, err
	}
	out.Offer = offer
	pref, err := r.byte()
	if err != nil {
		return out, 0, err
	}
	out.PreferredMode = mode.AuthMode(pref)
	raw, err := r.fixed(32)
	if err != nil {
		return out, 0, err
	}
	copy(out.ClientRandom[:], raw)
	consumed := len(payload) - len(r.buf)
	return out, consumed, nil
}

// ClientHelloWithCookie is frame type 0x03.
type ClientHelloWithCookie struct {
	ClientRandom [32]byte
	Cookie       [32]byte
	IssueTimeUnix uint64
	ModeOffer    ModeOffer
}

func (m ClientHelloWithCookie) Encode() []byte {
	var w fieldWriter
	w.fixed(m.ClientRandom[:])
	w.fixed(m.Cookie[:])
	w.u64(m.IssueTimeUnix)
	w.field32(EncodeModeOffer(m.ModeOffer))
	return w.bytes()
}

func DecodeClientHelloWithCookie(payload []byte) (ClientHelloWithCookie, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeClientHelloWithCookie"}
	var m ClientHelloWithCookie
	raw, err := r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.ClientRandom[:], raw)
	raw, err = r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.Cookie[:], raw)
	if m.IssueTimeUnix, err = r.u64(); err != nil {
		return m, err
	}
	offerBytes, err := r.field32()
	if err != nil {
		return m, err
	}
	offer, _, err := DecodeModeOffer(offerBytes)
	if err != nil {
		return m, err
	}
	m.ModeOffer = offer
	return m, nil
}

// ModeSelection is frame type 0x05.
type ModeSelection struct {
	Selected    mode.AuthMode
	ServerRandom [32]byte
	BindingMAC  []byte
}

func (m ModeSelection) Encode() []byte {
	var w fieldWriter
	w.byte(byte(m.Selected))
	w.fixed(m.ServerRandom[:])
	w.field16(m.BindingMAC)
	return w.bytes()
}

func DecodeModeSelection(payload []byte) (ModeSelection, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeModeSelection"}
	var m ModeSelection
	b, err := r.byte()
	if err != nil {
		return m, err
	}
	m.Selected = mode.AuthMode(b)
	raw, err := r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.ServerRandom[:], raw)
	if m.BindingMAC, err = r.field16(); err != nil {
		return m, err
	}
	return m, nil
}

// encodeTagged and decodeTagged handle the common (variant, signature) wire
// shape shared by HandshakeInit and HandshakeResponse.
func encodeTagged(w *fieldWriter, t *sig.Tagged) {
	w.byte(byte(t.Variant))
	w.field16(t.Signature)
}

func decodeTagged(r *fieldReader) (*sig.Tagged, error) {
	v, err := r.byte()
	if err != nil {
		return nil, err
	}
	s, err := r.field16()
	if err != nil {
		return nil, err
	}
	return &sig.Tagged{Variant: sig.Variant(v), Signature: s}, nil
}

// HandshakeInit is frame type 0x06.
type HandshakeInit struct {
	EphemeralX25519PK [primitive.X25519PublicKeySize]byte
	EphemeralKEMPK    []byte // primitive.KEMPublicKeySize bytes
	IdentityPK        []byte // size depends on the selected mode
	Signature         *sig.Tagged
}

func (m HandshakeInit) Encode() ([]byte, error) {
	if len(m.EphemeralKEMPK) != primitive.KEMPublicKeySize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "wire.HandshakeInit.Encode", "bad kem public key size")
	}
	var w fieldWriter
	w.fixed(m.EphemeralX25519PK[:])
	w.fixed(m.EphemeralKEMPK)
	w.field16(m.IdentityPK)
	encodeTagged(&w, m.Signature)
	return w.bytes(), nil
}

func DecodeHandshakeInit(payload []byte) (HandshakeInit, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeHandshakeInit"}
	var m HandshakeInit
	raw, err := r.fixed(primitive.X25519PublicKeySize)
	if err != nil {
		return m, err
	}
	copy(m.EphemeralX25519PK[:], raw)
	if m.EphemeralKEMPK, err = r.fixed(primitive.KEMPublicKeySize); err != nil {
		return m, err
	}
	if m.IdentityPK, err = r.field16(); err != nil {
		return m, err
	}
	if m.Signature, err = decodeTagged(&r); err != nil {
		return m, err
	}
	return m, nil
}

// HandshakeResponse is frame type 0x07.
type HandshakeResponse struct {
	EphemeralX25519PK [primitive.X25519PublicKeySize]byte
	KEMCiphertext     []byte // primitive.KEMCiphertextSize bytes
	IdentityPK        []byte
	Signature         *sig.Tagged
}

func (m HandshakeResponse) Encode() ([]byte, error) {
	if len(m.KEMCiphertext) != primitive.KEMCiphertextSize {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "wire.HandshakeResponse.Encode", "bad kem ciphertext size")
	}
	var w fieldWriter
	w.fixed(m.EphemeralX25519PK[:])
	w.fixed(m.KEMCiphertext)
	w.field16(m.IdentityPK)
	encodeTagged(&w, m.Signature)
	return w.bytes(), nil
}

func DecodeHandshakeResponse(payload []byte) (HandshakeResponse, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeHandshakeResponse"}
	var m HandshakeResponse
	raw, err := r.fixed(primitive.X25519PublicKeySize)
	if err != nil {
		return m, err
	}
	copy(m.EphemeralX25519PK[:], raw)
	if m.KEMCiphertext, err = r.fixed(primitive.KEMCiphertextSize); err != nil {
		return m, err
	}
	if m.IdentityPK, err = r.field16(); err != nil {
		return m, err
	}
	if m.Signature, err = decodeTagged(&r); err != nil {
		return m, err
	}
	return m, nil
}

// HandshakeComplete is frame type 0x08: MAC-only confirmation.
type HandshakeComplete struct {
	MAC []byte
}

func (m HandshakeComplete) Encode() []byte {
	var w fieldWriter
	w.field16(m.MAC)
	return w.bytes()
}

func DecodeHandshakeComplete(payload []byte) (HandshakeComplete, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeHandshakeComplete"}
	mac, err := r.field16()
	if err != nil {
		return HandshakeComplete{}, err
	}
	return HandshakeComplete{MAC: mac}, nil
}

// ItemKind distinguishes real application data from cover traffic at the
// AEAD associated-data level, so the two are cryptographically bound to
// their own category without being distinguishable on the wire.
type ItemKind byte

const (
	ItemKindReal  ItemKind = 0x01
	ItemKindCover ItemKind = 0x02
)

// AppData is frame type 0x09.
type AppData struct {
	SessionID  [32]byte
	Counter    uint64
	Kind       ItemKind
	AADTail    []byte
	Ciphertext []byte
}

func (m AppData) Encode() []byte {
	var w fieldWriter
	w.fixed(m.SessionID[:])
	w.u64(m.Counter)
	w.byte(byte(m.Kind))
	w.field16(m.AADTail)
	w.field32(m.Ciphertext)
	return w.bytes()
}

func DecodeAppData(payload []byte) (AppData, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeAppData"}
	var m AppData
	raw, err := r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.SessionID[:], raw)
	if m.Counter, err = r.u64(); err != nil {
		return m, err
	}
	k, err := r.byte()
	if err != nil {
		return m, err
	}
	m.Kind = ItemKind(k)
	if m.AADTail, err = r.field16(); err != nil {
		return m, err
	}
	if m.Ciphertext, err = r.field32(); err != nil {
		return m, err
	}
	return m, nil
}

// Rekey is frame type 0x0A.
type Rekey struct {
	SessionID    [32]byte
	RekeyCounter uint64
	MAC          []byte
}

func (m Rekey) Encode() []byte {
	var w fieldWriter
	w.fixed(m.SessionID[:])
	w.u64(m.RekeyCounter)
	w.field16(m.MAC)
	return w.bytes()
}

func DecodeRekey(payload []byte) (Rekey, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeRekey"}
	var m Rekey
	raw, err := r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.SessionID[:], raw)
	if m.RekeyCounter, err = r.u64(); err != nil {
		return m, err
	}
	if m.MAC, err = r.field16(); err != nil {
		return m, err
	}
	return m, nil
}

// CloseReason classifies why a Close frame was sent.
type CloseReason byte

const (
	CloseReasonNormal CloseReason = iota
	CloseReasonIdleTimeout
	CloseReasonAuthFailure
	CloseReasonProtocolError
)

// Close is frame type 0x0B.
type Close struct {
	SessionID [32]byte
	Reason    CloseReason
}

func (m Close) Encode() []byte {
	var w fieldWriter
	w.fixed(m.SessionID[:])
	w.byte(byte(m.Reason))
	return w.bytes()
}

func DecodeClose(payload []byte) (Close, error) {
	r := fieldReader{buf: payload, op: "wire.DecodeClose"}
	var m Close
	raw, err := r.fixed(32)
	if err != nil {
		return m, err
	}
	copy(m.SessionID[:], raw)
	reason, err := r.byte()
	if err != nil {
		return m, err
	}
	m.Reason = CloseReason(reason)
	return m, nil
}
