// Package session owns the discovery-through-transfer lifecycle: the
// coordinator selects a transport, aggregates discovery, drives batches
// over the wire protocol, and publishes the unified state stream.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nearbeam/nearbeam/pkg/concurrency"
	"github.com/nearbeam/nearbeam/pkg/discovery"
	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/fileinfo"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/transport"
)

// Coordinator is the sole writer of the session state machine. All
// session-mutating operations are serialized: discovery and receive
// cancel the previous operation and wait for it to finish, while a send
// issued during a running batch is rejected outright so the batch is
// never torn down mid-stream.
type Coordinator struct {
	id         string
	transports map[peer.Kind]transport.Transport
	agg        *discovery.Aggregator
	guard      *concurrency.Guard

	mu           sync.Mutex
	state        State
	active       transport.Transport
	current      *peer.Peer
	lastProgress Transferring
	opCancel     context.CancelFunc
	opDone       chan struct{}

	states chan State
}

// New creates a coordinator over the given transports. Registering two
// transports for the same medium is a configuration error; the last one
// wins.
func New(transports ...transport.Transport) *Coordinator {
	c := &Coordinator{
		id:         uuid.New().String(),
		transports: make(map[peer.Kind]transport.Transport, len(transports)),
		agg:        discovery.NewAggregator(),
		guard:      concurrency.NewGuard(),
		state:      Idle{},
		states:     make(chan State, 1),
	}
	for _, tr := range transports {
		c.transports[tr.Kind()] = tr
	}
	return c
}

// SessionID identifies this coordinator instance.
func (c *Coordinator) SessionID() string { return c.id }

// States is the unified state stream. It has latest-state-wins semantics:
// a slow consumer observes the newest state, never a backlog.
func (c *Coordinator) States() <-chan State { return c.states }

// Current returns the current state.
func (c *Coordinator) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectedPeer returns a copy of the session's connected peer, or nil.
func (c *Coordinator) ConnectedPeer() *peer.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	p := *c.current
	return &p
}

// setState applies a transition if the state machine allows it. Invalid
// transitions are dropped with a log line; they happen benignly when an
// operation loses a cancellation race and must never corrupt the machine.
func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	if !canTransition(c.state, s) {
		from := c.state.Name()
		c.mu.Unlock()
		slog.Debug("Dropping invalid state transition", "from", from, "to", s.Name())
		return
	}
	c.state = s
	c.mu.Unlock()
	c.publish(s)
}

// publish pushes s onto the stream, displacing an unconsumed older state.
func (c *Coordinator) publish(s State) {
	for {
		select {
		case c.states <- s:
			return
		default:
		}
		select {
		case <-c.states:
		default:
		}
	}
}

func (c *Coordinator) fail(terr *errs.Error) {
	slog.Error("Session operation failed", "code", terr.Code.String(), "error", terr)
	c.setState(Failed{Err: terr, CanRetry: terr.CanRetry()})
	c.teardown()
}

// teardown resets the session fields. The published state is untouched:
// terminal states stay visible until a retry re-enters Discovering.
func (c *Coordinator) teardown() {
	c.mu.Lock()
	c.active = nil
	c.current = nil
	c.mu.Unlock()
	c.agg.Reset()
}

// beginOp installs the cancellation handle for a new async operation.
func (c *Coordinator) beginOp(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.opCancel = cancel
	c.opDone = done
	c.mu.Unlock()
	return opCtx, func() {
		cancel()
		close(done)
	}
}

// cancelActiveOp cancels the in-flight operation, if any, and waits until
// it has fully finished.
func (c *Coordinator) cancelActiveOp() {
	c.mu.Lock()
	cancel, done := c.opCancel, c.opDone
	c.opCancel, c.opDone = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (c *Coordinator) activeTransport() transport.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// StartDiscovery selects a transport for the session (Auto policy or an
// explicit medium) and runs discovery until stopped, cancelled, or a
// stream error. Device-list updates surface as DevicesFound states.
func (c *Coordinator) StartDiscovery(ctx context.Context, kind peer.Kind) error {
	c.cancelActiveOp()

	tr, terr := c.selectTransport(kind)
	if terr != nil {
		c.fail(terr)
		return terr
	}

	c.mu.Lock()
	c.active = tr
	c.current = nil
	c.mu.Unlock()
	c.agg.Reset()

	opCtx, finish := c.beginOp(ctx)
	events, err := tr.StartDiscovery(opCtx)
	if err != nil {
		finish()
		terr := errs.From(err)
		c.fail(terr)
		return terr
	}
	c.setState(Discovering{})

	go func() {
		defer finish()
		err := c.agg.Run(opCtx, events, func(peers []peer.Peer) {
			c.setState(DevicesFound{Peers: peers})
		})
		if err != nil && opCtx.Err() == nil {
			c.fail(errs.From(err))
		}
	}()
	return nil
}

// StopDiscovery halts the active scan without tearing the session down.
func (c *Coordinator) StopDiscovery() {
	if tr := c.activeTransport(); tr != nil {
		tr.StopDiscovery()
	}
	c.cancelActiveOp()
}

// Connect establishes the byte stream to a previously discovered peer,
// blocking until the transport reports success or failure.
func (c *Coordinator) Connect(ctx context.Context, identity string) error {
	p, ok := c.agg.Find(identity)
	if !ok {
		terr := errs.New(errs.PeerNotFound, "peer "+identity+" is not in the discovered list")
		c.fail(terr)
		return terr
	}

	tr := c.activeTransport()
	if tr == nil {
		terr := errs.New(errs.Unsupported, "connect requested without an active discovery session")
		c.fail(terr)
		return terr
	}

	// Discovery must be fully stopped before connecting.
	tr.StopDiscovery()
	c.cancelActiveOp()

	c.setState(Connecting{Peer: p})

	err := c.guard.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return tr.Connect(ctx, p)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.setState(Cancelled{})
			return err
		}
		terr := errs.From(err)
		c.fail(terr)
		return terr
	}

	p.Connected = true
	c.mu.Lock()
	c.current = &p
	c.mu.Unlock()
	c.setState(Connected{Peer: p})
	return nil
}

// Send resolves paths into a batch and streams it to the connected peer.
// The batch runs asynchronously; completion, failure, or cancellation
// surface on the state stream. Paths that fail to resolve are excluded
// from the batch rather than failing the session. A Send while a batch
// is already in flight is rejected with ErrBusy and leaves the running
// batch untouched.
func (c *Coordinator) Send(ctx context.Context, paths []string) error {
	c.mu.Lock()
	tr, connected := c.active, c.current
	c.mu.Unlock()
	if tr == nil || connected == nil {
		terr := errs.New(errs.ConnectionLost, "no peer connected")
		c.fail(terr)
		return terr
	}

	// The guard is reserved before beginOp so a rejected Send never
	// touches the running batch's cancellation handle.
	release, ok := c.guard.Begin()
	if !ok {
		return errs.Wrap(errs.Unknown, "a batch is already in progress", concurrency.ErrBusy)
	}

	files, skipped := fileinfo.ResolveAll(paths)
	for _, s := range skipped {
		slog.Warn("Excluding unavailable file from batch", "path", s)
	}
	if len(files) == 0 {
		release()
		terr := errs.New(errs.FileIO, "no transferable files in batch")
		c.fail(terr)
		return terr
	}

	opCtx, finish := c.beginOp(ctx)
	go func() {
		defer finish()
		defer release()
		c.finishBatch(c.sendBatch(opCtx, tr, files))
	}()
	return nil
}

// sendBatch streams files strictly sequentially over the single active
// connection. Cumulative bytes across the whole batch drive the overall
// percent, speed, and ETA. The first error aborts the remainder;
// partially transferred files stay on the receiver (documented
// limitation, not rolled back).
func (c *Coordinator) sendBatch(ctx context.Context, tr transport.Transport, files []fileinfo.File) error {
	var total int64
	for _, f := range files {
		total += f.Size
	}

	start := time.Now()
	var cumulative int64
	for _, f := range files {
		name := f.Name
		c.reportProgress(cumulative, total, start, name)
		err := tr.SendFile(ctx, f, func(_ float64, done int64, _ float64) {
			c.reportProgress(cumulative+done, total, start, name)
		})
		if err != nil {
			return err
		}
		cumulative += f.Size
	}

	// Closing the stream is the end-of-batch signal; the receiver reads
	// frames until EOF.
	if err := tr.Disconnect(); err != nil {
		slog.Warn("Disconnect after batch reported an error", "error", err)
	}
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	c.setState(Completed{FileCount: len(files), BytesTotal: total, Duration: time.Since(start)})
	return nil
}

// Receive makes this instance discoverable on the selected medium, waits
// for one inbound sender, and receives files into destDir until the
// sender closes the stream. Runs asynchronously like Send.
func (c *Coordinator) Receive(ctx context.Context, destDir string, kind peer.Kind) error {
	c.cancelActiveOp()

	tr, terr := c.selectTransport(kind)
	if terr != nil {
		c.fail(terr)
		return terr
	}

	c.mu.Lock()
	c.active = tr
	c.current = nil
	c.mu.Unlock()

	opCtx, finish := c.beginOp(ctx)
	if err := tr.Announce(opCtx); err != nil {
		finish()
		terr := errs.From(err)
		c.fail(terr)
		return terr
	}
	c.setState(Discovering{})

	go func() {
		defer finish()
		c.finishBatch(c.guard.ExecuteWithContext(opCtx, func(ctx context.Context) error {
			return c.receiveBatch(ctx, tr, destDir)
		}))
	}()
	return nil
}

// receiveBatch accepts one sender and drains its batch. The batch total
// is unknown on this side (the wire carries no manifest), so Transferring
// reports per-file percent with cumulative BytesDone.
func (c *Coordinator) receiveBatch(ctx context.Context, tr transport.Transport, destDir string) error {
	remote, err := tr.Accept(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = &remote
	c.mu.Unlock()
	c.setState(Connected{Peer: remote})

	start := time.Now()
	var cumulative int64
	count := 0
	for {
		f, rerr := tr.ReceiveFile(ctx, destDir, func(pct float64, done int64, bps float64) {
			s := Transferring{
				Percent:        pct,
				BytesDone:      cumulative + done,
				BytesPerSecond: bps,
			}
			c.mu.Lock()
			c.lastProgress = s
			c.mu.Unlock()
			c.setState(s)
		})
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
		slog.Info("Received file", "name", f.Name, "size", f.Size, "dest", f.Path)
		cumulative += f.Size
		count++
	}

	if err := tr.Disconnect(); err != nil {
		slog.Warn("Disconnect after batch reported an error", "error", err)
	}
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	c.setState(Completed{FileCount: count, BytesTotal: cumulative, Duration: time.Since(start)})
	return nil
}

// finishBatch maps a batch outcome onto the state machine. Cancellation
// is an explicit outcome, never a failure.
func (c *Coordinator) finishBatch(err error) {
	switch {
	case err == nil:
		// Completed was already published by the batch.
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.setState(Cancelled{})
		c.teardown()
	case errors.Is(err, concurrency.ErrBusy):
		c.fail(errs.Wrap(errs.Unknown, "another session operation is in progress", err))
	default:
		c.fail(errs.From(err))
	}
}

// reportProgress publishes a Transferring state from cumulative batch
// counters. Speed is batch bytes per elapsed milli, guarded to 0; ETA is
// remaining/speed, reported as 0 when the speed is not positive.
func (c *Coordinator) reportProgress(done, total int64, start time.Time, currentFile string) {
	elapsedMillis := time.Since(start).Milliseconds()
	var bps float64
	if elapsedMillis > 0 {
		bps = float64(done) * 1000.0 / float64(elapsedMillis)
	}
	var pct float64
	if total > 0 {
		pct = float64(done) / float64(total) * 100.0
	}
	var eta time.Duration
	if bps > 0 && total > done {
		etaMillis := float64(total-done) * 1000.0 / bps
		eta = time.Duration(etaMillis) * time.Millisecond
	}

	s := Transferring{
		Percent:        pct,
		BytesDone:      done,
		BytesTotal:     total,
		BytesPerSecond: bps,
		ETA:            eta,
		CurrentFile:    currentFile,
	}
	c.mu.Lock()
	c.lastProgress = s
	c.mu.Unlock()
	c.setState(s)
}

// Pause checkpoints an in-flight transfer between chunk operations. The
// stream stays open and no bytes are lost or duplicated on resume.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	tr := c.active
	st := c.state
	last := c.lastProgress
	c.mu.Unlock()

	if _, ok := st.(Transferring); !ok {
		slog.Debug("Ignoring pause outside an active transfer", "state", st.Name())
		return
	}
	if tr != nil {
		tr.Gate().Pause()
	}
	c.setState(Paused{Percent: last.Percent})
}

// Resume releases a paused transfer.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	tr := c.active
	st := c.state
	last := c.lastProgress
	c.mu.Unlock()

	if _, ok := st.(Paused); !ok {
		slog.Debug("Ignoring resume outside a paused transfer", "state", st.Name())
		return
	}
	if tr != nil {
		tr.Gate().Resume()
	}
	c.setState(last)
}

// Cancel aborts whatever is in flight: it closes the active connection,
// releases discovery listeners, tears the session down, and publishes
// Cancelled regardless of the current state.
func (c *Coordinator) Cancel() {
	tr := c.activeTransport()
	if tr != nil {
		// A paused wire loop must be released so it can observe the cancel.
		tr.Gate().Resume()
		tr.StopDiscovery()
		if err := tr.Disconnect(); err != nil {
			slog.Warn("Disconnect during cancel reported an error", "error", err)
		}
	}
	c.cancelActiveOp()
	c.setState(Cancelled{})
	c.teardown()
}

// Disconnect tears the session fully down and returns to Idle.
func (c *Coordinator) Disconnect() {
	tr := c.activeTransport()
	if tr != nil {
		tr.Gate().Resume()
		tr.StopDiscovery()
		if err := tr.Disconnect(); err != nil {
			slog.Warn("Disconnect reported an error", "error", err)
		}
	}
	c.cancelActiveOp()
	c.setState(Idle{})
	c.teardown()
}
