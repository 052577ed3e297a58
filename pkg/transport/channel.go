// Package transport defines the Channel abstraction both host and target
// sides of the protocol use to exchange frames, plus concrete transports
// (in-process loopback, HID).
package transport

import "context"

// Channel is a half-duplex, reliable, in-order frame transport. A single
// outstanding request per channel is the strict contract the response
// correlator depends on (spec §4.7): callers must not issue a second Send
// before the Recv matching the first has been observed.
type Channel interface {
	// Send writes one frame. It blocks until the frame has been handed to
	// the underlying transport or ctx is done.
	Send(ctx context.Context, frame []byte) error

	// Recv blocks for the next inbound frame, or until ctx is done.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the underlying transport. Recv/Send return an error
	// wrapping cfu.ErrTransportClosed after Close.
	Close() error
}
