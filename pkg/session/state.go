package session

import (
	"time"

	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/peer"
)

// State is the closed set of session states published on the unified
// stream. Exactly one state is current at any time and the Coordinator is
// its sole writer. The marker method keeps the set closed to this package.
type State interface {
	isState()
	// Name returns the state's canonical name for logging.
	Name() string
}

// Idle is both the initial state and the state after full session teardown.
type Idle struct{}

// Discovering means an active scan is running on the session's transport.
type Discovering struct{}

// DevicesFound carries the aggregated device list; re-emitted on every
// aggregator update.
type DevicesFound struct {
	Peers []peer.Peer
}

// Connecting means a connection attempt to the selected peer is in flight.
type Connecting struct {
	Peer peer.Peer
}

// Connected means the byte stream to the peer is established.
type Connected struct {
	Peer peer.Peer
}

// Transferring carries live batch progress. BytesDone is cumulative across
// the whole batch and monotonically non-decreasing within one file,
// resetting its per-file component only when CurrentFile changes.
type Transferring struct {
	Percent        float64
	BytesDone      int64
	BytesTotal     int64
	BytesPerSecond float64
	ETA            time.Duration
	CurrentFile    string
}

// Completed is terminal success for the whole batch.
type Completed struct {
	FileCount  int
	BytesTotal int64
	Duration   time.Duration
}

// Failed is terminal failure; CanRetry mirrors the error taxonomy.
type Failed struct {
	Err      *errs.Error
	CanRetry bool
}

// Cancelled is the terminal outcome of an explicit cancel command. It is
// distinct from Failed and never retried automatically.
type Cancelled struct{}

// Paused means a transfer is in flight but checkpointed between chunks.
type Paused struct {
	Percent float64
}

func (Idle) isState()         {}
func (Discovering) isState()  {}
func (DevicesFound) isState() {}
func (Connecting) isState()   {}
func (Connected) isState()    {}
func (Transferring) isState() {}
func (Completed) isState()    {}
func (Failed) isState()       {}
func (Cancelled) isState()    {}
func (Paused) isState()       {}

func (Idle) Name() string         { return "idle" }
func (Discovering) Name() string  { return "discovering" }
func (DevicesFound) Name() string { return "devices_found" }
func (Connecting) Name() string   { return "connecting" }
func (Connected) Name() string    { return "connected" }
func (Transferring) Name() string { return "transferring" }
func (Completed) Name() string    { return "completed" }
func (Failed) Name() string       { return "failed" }
func (Cancelled) Name() string    { return "cancelled" }
func (Paused) Name() string       { return "paused" }

// isTerminal reports whether s ends a session lifecycle.
func isTerminal(s State) bool {
	switch s.(type) {
	case Completed, Failed, Cancelled:
		return true
	}
	return false
}

// canTransition encodes the session state machine. Failed, Cancelled,
// and Idle (full teardown) are reachable from every non-terminal state:
// a session can break, be cancelled, or be torn down at any point,
// including before discovery has started. Terminal states only re-enter
// Discovering (an explicit retry).
func canTransition(from, to State) bool {
	switch to.(type) {
	case Failed, Cancelled, Idle:
		return !isTerminal(from)
	}
	if isTerminal(from) {
		_, retry := to.(Discovering)
		return retry
	}

	switch from.(type) {
	case Idle:
		_, ok := to.(Discovering)
		return ok
	case Discovering:
		switch to.(type) {
		case DevicesFound, Connected:
			return true
		}
	case DevicesFound:
		switch to.(type) {
		case DevicesFound, Connecting, Discovering:
			return true
		}
	case Connecting:
		switch to.(type) {
		case Connected, DevicesFound:
			return true
		}
	case Connected:
		// Completed directly from Connected covers an inbound batch whose
		// sender closed the stream before framing any file.
		switch to.(type) {
		case Transferring, Completed, Discovering:
			return true
		}
	case Transferring:
		switch to.(type) {
		case Transferring, Completed, Paused:
			return true
		}
	case Paused:
		_, ok := to.(Transferring)
		return ok
	}
	return false
}
