package transport

import (
	"context"

	"github.com/nearbeam/nearbeam/pkg/fileinfo"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/wire"
)

// Event is one element of a transport's discovery stream: either a
// discovered peer or an error. Session-breaking errors terminate the
// stream; per-event glitches are dropped by the transport and never
// emitted.
type Event struct {
	Peer peer.Peer
	Err  error
}

// Transport provides capability-negotiated peer discovery and a byte
// stream for exactly one physical medium. The coordinator treats all
// transports polymorphically and owns the session lifecycle; a transport
// holds no state beyond the single connection it has been told to hold.
//
// Every operation returns a typed error from the errs taxonomy (or a
// context error on cancellation); no panics escape the contract.
type Transport interface {
	// Kind names the medium this transport serves. Never peer.Auto.
	Kind() peer.Kind

	// Available reports whether the medium's capability is present at all.
	Available() bool

	// Enabled reports whether the capability is currently switched on.
	Enabled() bool

	// StartDiscovery begins an infinite, push-driven discovery stream. The
	// returned channel is closed when ctx is cancelled or StopDiscovery is
	// called, and all listeners and sockets are released on every exit
	// path. A fresh call restarts discovery from scratch.
	StartDiscovery(ctx context.Context) (<-chan Event, error)

	// StopDiscovery halts an active scan. Idempotent; safe when no
	// discovery is running.
	StopDiscovery()

	// Announce makes this instance discoverable to remote peers until ctx
	// is cancelled. Used by the receiving side.
	Announce(ctx context.Context) error

	// Accept waits for one inbound connection from a remote sender, bounded
	// by the transport's accept timeout (errs.Timeout on expiry).
	Accept(ctx context.Context) (peer.Peer, error)

	// Connect establishes the byte stream to a discovered peer, blocking
	// until the medium reports success or failure.
	Connect(ctx context.Context, p peer.Peer) error

	// Disconnect closes any open byte stream and clears the connection
	// state. Idempotent.
	Disconnect() error

	// ConnectedPeer returns the currently connected peer, or nil.
	ConnectedPeer() *peer.Peer

	// SendFile streams one file over the established connection using the
	// shared wire protocol.
	SendFile(ctx context.Context, file fileinfo.File, onProgress wire.ProgressFunc) error

	// ReceiveFile reads one file from the established connection into
	// destDir. io.EOF signals a cleanly ended batch.
	ReceiveFile(ctx context.Context, destDir string, onProgress wire.ProgressFunc) (fileinfo.File, error)

	// Gate returns the transport's pause checkpoint, shared with the wire
	// loops of both SendFile and ReceiveFile.
	Gate() *wire.Gate
}
