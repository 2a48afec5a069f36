package transport

import "errors"

// Transport is a single half-duplex byte link to the diagnostic adapter.
// The link state machine owns exactly one Transport at a time and closes
// it before every reconnect attempt; implementations do not need to be
// safe for concurrent use.
type Transport interface {
	// Open establishes the physical link. It must be called before any
	// other method and may be called again after Close.
	Open() error
	// Write sends raw bytes to the adapter.
	Write(p []byte) error
	// ReadAvailable returns whatever bytes have arrived since the last
	// call, possibly none. It never blocks beyond a short poll slice.
	ReadAvailable() []byte
	// Close releases the link. Safe to call on an unopened transport.
	Close() error
}

// ErrNotOpen is returned by Write when the link has not been opened
// or has already been closed.
var ErrNotOpen = errors.New("transport: not open")
