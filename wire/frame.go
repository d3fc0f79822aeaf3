// Package wire implements B4AE's on-the-wire framing and message codecs:
// `u32 big-endian length | u8 frame_type | payload`, with every
// variable-length field inside a payload length-prefixed.
// Encoding here is fixed-order concatenation, never JSON, so two
// implementations that agree on field order produce byte-identical
// transcripts.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// FrameType identifies the payload that follows the frame header.
type FrameType uint8

const (
	TypeClientHello           FrameType = 0x01
	TypeCookieChallenge       FrameType = 0x02
	TypeClientHelloWithCookie FrameType = 0x03
	TypeModeOffer             FrameType = 0x04 // carried inside 0x03 payload, never standalone on the wire
	TypeModeSelection         FrameType = 0x05
	TypeHandshakeInit         FrameType = 0x06
	TypeHandshakeResponse     FrameType = 0x07
	TypeHandshakeComplete     FrameType = 0x08
	TypeAppData               FrameType = 0x09
	TypeRekey                 FrameType = 0x0A
	TypeClose                 FrameType = 0x0B
)

// MaxFramePayload bounds a frame's payload at 1 MiB.
const MaxFramePayload = 1 << 20

// Frame is a single length-prefixed protocol message on the wire.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// Encode writes a frame's header and payload to w.
func Encode(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxFramePayload {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "wire.Encode", "payload exceeds 1 MiB frame limit")
	}
	var header [5]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(f.Payload)))
	header[4] = byte(f.Type)
	if _, err := w.Write(header[:]); err != nil {
		return b4aeerr.Wrap(b4aeerr.KindTransportClosed, "wire.Encode", "write header failed", err)
	}
	if _, err := w.Write(f.Payload); err != nil {
		return b4aeerr.Wrap(b4aeerr.KindTransportClosed, "wire.Encode", "write payload failed", err)
	}
	return nil
}

// Decode reads one frame from r.
func Decode(r io.Reader) (Frame, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, b4aeerr.Wrap(b4aeerr.KindTransportClosed, "wire.Decode", "read header failed", err)
	}
	length := binary.BigEndian.Uint32(header[0:4])
	if length > MaxFramePayload {
		return Frame{}, b4aeerr.New(b4aeerr.KindInvalidInput, "wire.Decode", "frame exceeds 1 MiB limit")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, b4aeerr.Wrap(b4aeerr.KindTransportClosed, "wire.Decode", "read payload failed", err)
	}
	return Frame{Type: FrameType(header[4]), Payload: payload}, nil
}

// fieldWriter accumulates length-prefixed fields in declaration order; it
// never returns an error itself, matching append's own no-fail contract,
// so callers build a payload with a flat sequence of calls.
type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *fieldWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *fieldWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *fieldWriter) byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *fieldWriter) fixed(v []byte) {
	w.buf = append(w.buf, v...)
}

// field16 writes a 2-byte length prefix followed by v.
func (w *fieldWriter) field16(v []byte) {
	w.u16(uint16(len(v)))
	w.buf = append(w.buf, v...)
}

// field32 writes a 4-byte length prefix followed by v.
func (w *fieldWriter) field32(v []byte) {
	w.u32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *fieldWriter) bytes() []byte { return w.buf }

// fieldReader consumes a byte slice in the same order fieldWriter wrote it,
// returning InvalidInput the moment the buffer runs short.
type fieldReader struct {
	buf []byte
	op  string
}

func (r *fieldReader) err() error {
	return b4aeerr.New(b4aeerr.KindInvalidInput, r.op, "truncated field")
}

func (r *fieldReader) u16() (uint16, error) {
	if len(r.buf) < 2 {
		return 0, r.err()
	}
	v := binary.BigEndian.Uint16(r.buf[:2])
	r.buf = r.buf[2:]
	return v, nil
}

func (r *fieldReader) u32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, r.err()
	}
	v := binary.BigEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v, nil
}

func (r *fieldReader) u64() (uint64, error) {
	if len(r.buf) < 8 {
		return 0, r.err()
	}
	v := binary.BigEndian.Uint64(r.buf[:8])
	r.buf = r.buf[8:]
	return v, nil
}

func (r *fieldReader) byte() (byte, error) {
	if len(r.buf) < 1 {
		return 0, r.err()
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

func (r *fieldReader) fixed(n int) ([]byte, error) {
	if len(r.buf) < n {
		return nil, r.err()
	}
	v := r.buf[:n]
	r.buf = r.buf[n:]
	return v, nil
}

func (r *fieldReader) field16() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	return r.fixed(int(n))
}

func (r *fieldReader) field32() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	return r.fixed(int(n))
}

func (r *fieldReader) done() bool { return len(r.buf) == 0 }
