// Package transport declares the narrow capability the protocol core
// needs from whatever carries its framed bytes across the network.
//
// The core never depends on a concrete transport: handshake frames,
// session ciphertexts, and scheduler-emitted items are all opaque
// byte slices from this package's point of view. Implementations
// (TCP, QUIC, WebSocket, an in-memory pipe for tests) live outside
// this module entirely; this package exists only so the core has a
// type to depend on.
package transport

import "context"

// Transport is the only capability the core requires of its carrier: send
// one frame, receive one frame. Both methods are expected to handle
// exactly one wire.Frame's encoded bytes per call; any message boundary
// discipline beyond that (stream framing, reassembly) is the
// implementation's responsibility, not the core's.
type Transport interface {
	// SendBytes transmits one frame's encoded bytes. It returns once the
	// bytes are handed to the underlying carrier, not once a peer has
	// acknowledged them.
	SendBytes(ctx context.Context, frame []byte) error

	// RecvBytes blocks until one frame's encoded bytes are available, ctx
	// is canceled, or the transport closes.
	RecvBytes(ctx context.Context) ([]byte, error)
}
