// Package radio implements the short-range paired-radio transport. Peers
// announce presence as JSON beacons over UDP broadcast and exchange files
// over a plain TCP stream. As the low-throughput medium it uses the
// smallest chunk size the wire protocol allows.
package radio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/fileinfo"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/transport"
	"github.com/nearbeam/nearbeam/pkg/wire"
)

const (
	// DefaultBeaconPort carries presence broadcasts.
	DefaultBeaconPort = 42404
	// ChunkSize is deliberately small for the low-throughput medium.
	ChunkSize = wire.MinChunkSize

	beaconInterval = time.Second
	connectTimeout = 10 * time.Second
	acceptTimeout  = 30 * time.Second
	maxBeaconSize  = 1024
)

// Transport is the ShortRangeRadio implementation of transport.Transport.
type Transport struct {
	identity    string
	displayName string
	perm        transport.PermissionGate
	beaconPort  int
	gate        *wire.Gate

	available bool
	enabled   bool

	mu        sync.Mutex
	conn      net.Conn
	connected *peer.Peer
	listener  net.Listener
	stopScan  context.CancelFunc
}

// Option customizes a Transport.
type Option func(*Transport)

// WithDisplayName sets the name announced to remote peers.
func WithDisplayName(name string) Option {
	return func(t *Transport) { t.displayName = name }
}

// WithBeaconPort overrides the UDP presence port.
func WithBeaconPort(port int) Option {
	return func(t *Transport) { t.beaconPort = port }
}

// WithPermissionGate installs the capability gate consulted before any
// network call.
func WithPermissionGate(gate transport.PermissionGate) Option {
	return func(t *Transport) { t.perm = gate }
}

// WithCapability overrides the available/enabled capability flags, mainly
// for the selection strategy and tests.
func WithCapability(available, enabled bool) Option {
	return func(t *Transport) {
		t.available = available
		t.enabled = enabled
	}
}

// New creates a radio transport with a fresh instance identity.
func New(opts ...Option) *Transport {
	t := &Transport{
		identity:    uuid.New().String(),
		displayName: "nearbeam device",
		perm:        transport.AllowAll{},
		beaconPort:  DefaultBeaconPort,
		gate:        wire.NewGate(),
		available:   true,
		enabled:     true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind returns peer.ShortRangeRadio.
func (t *Transport) Kind() peer.Kind { return peer.ShortRangeRadio }

// Available reports whether the radio capability is present.
func (t *Transport) Available() bool { return t.available }

// Enabled reports whether the radio capability is switched on.
func (t *Transport) Enabled() bool { return t.enabled }

// Gate returns the cooperative pause checkpoint shared with the wire loops.
func (t *Transport) Gate() *wire.Gate { return t.gate }

// StartDiscovery listens for presence beacons and emits each sighting as a
// peer event. The stream is closed and the socket released when ctx is
// cancelled or StopDiscovery is called. Malformed beacons are dropped.
func (t *Transport) StartDiscovery(ctx context.Context) (<-chan transport.Event, error) {
	if !t.perm.HasRequiredPermissions(t.Kind()) {
		return nil, errs.New(errs.PermissionDenied, "radio discovery permission missing")
	}

	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", t.beaconPort))
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionFailed, "failed to open beacon socket", err)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	if t.stopScan != nil {
		t.stopScan()
	}
	t.stopScan = cancel
	t.mu.Unlock()

	events := make(chan transport.Event, 8)
	go func() {
		// Closing the socket unblocks the pending ReadFrom.
		<-scanCtx.Done()
		pc.Close()
	}()
	go func() {
		defer close(events)
		buf := make([]byte, maxBeaconSize)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				if scanCtx.Err() != nil {
					return
				}
				events <- transport.Event{Err: errs.Wrap(errs.ConnectionLost, "beacon socket failed", err)}
				return
			}
			b, err := decodeBeacon(buf[:n])
			if err != nil {
				slog.Debug("Dropping malformed beacon", "error", err)
				continue
			}
			if b.Identity == t.identity {
				continue // our own broadcast
			}
			select {
			case events <- transport.Event{Peer: b.toPeer(from)}:
			case <-scanCtx.Done():
				return
			}
		}
	}()
	return events, nil
}

// StopDiscovery halts an active beacon scan. Idempotent.
func (t *Transport) StopDiscovery() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopScan != nil {
		t.stopScan()
		t.stopScan = nil
	}
}

// Announce opens the TCP accept socket and broadcasts presence beacons
// until ctx is cancelled.
func (t *Transport) Announce(ctx context.Context) error {
	if !t.perm.HasRequiredPermissions(t.Kind()) {
		return errs.New(errs.PermissionDenied, "radio announce permission missing")
	}

	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		return errs.Wrap(errs.ConnectionFailed, "failed to open accept socket", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	bcast, err := net.Dial("udp4", fmt.Sprintf("255.255.255.255:%d", t.beaconPort))
	if err != nil {
		ln.Close()
		return errs.Wrap(errs.ConnectionFailed, "failed to open broadcast socket", err)
	}

	payload, err := beacon{Identity: t.identity, Name: t.displayName, Port: port}.encode()
	if err != nil {
		ln.Close()
		bcast.Close()
		return errs.Wrap(errs.Unknown, "failed to encode beacon", err)
	}

	t.mu.Lock()
	if t.listener != nil {
		t.listener.Close()
	}
	t.listener = ln
	t.mu.Unlock()

	go func() {
		defer bcast.Close()
		ticker := time.NewTicker(beaconInterval)
		defer ticker.Stop()
		for {
			if _, err := bcast.Write(payload); err != nil {
				slog.Debug("Beacon broadcast failed", "error", err)
			}
			select {
			case <-ctx.Done():
				t.closeListener()
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Accept waits for one inbound sender connection, bounded by the accept
// timeout.
func (t *Transport) Accept(ctx context.Context) (peer.Peer, error) {
	t.mu.Lock()
	ln := t.listener
	t.mu.Unlock()
	if ln == nil {
		return peer.Peer{}, errs.New(errs.Unsupported, "accept called before announce")
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	if tcp, ok := ln.(*net.TCPListener); ok {
		tcp.SetDeadline(time.Now().Add(acceptTimeout))
	}
	go func() {
		conn, err := ln.Accept()
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		t.closeListener()
		return peer.Peer{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			if ne, ok := res.err.(net.Error); ok && ne.Timeout() {
				return peer.Peer{}, errs.New(errs.Timeout, "no sender connected in time")
			}
			if ctx.Err() != nil {
				return peer.Peer{}, ctx.Err()
			}
			return peer.Peer{}, errs.Wrap(errs.ConnectionFailed, "accept failed", res.err)
		}
		remote := peer.Peer{
			Identity:    res.conn.RemoteAddr().String(),
			DisplayName: res.conn.RemoteAddr().String(),
			Medium:      peer.ShortRangeRadio,
			Connected:   true,
		}
		if tcp, ok := res.conn.RemoteAddr().(*net.TCPAddr); ok {
			remote.Addr = tcp.IP
			remote.Port = tcp.Port
		}
		t.setConnection(res.conn, remote)
		return remote, nil
	}
}

// Connect dials the peer's announced TCP endpoint.
func (t *Transport) Connect(ctx context.Context, p peer.Peer) error {
	if !t.perm.HasRequiredPermissions(t.Kind()) {
		return errs.New(errs.PermissionDenied, "radio connect permission missing")
	}
	if p.Addr == nil || p.Port <= 0 {
		return errs.New(errs.PeerNotFound, "peer "+p.Identity+" has no dial address")
	}

	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(p.Addr.String(), fmt.Sprintf("%d", p.Port)))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ConnectionFailed, "failed to connect to "+p.DisplayName, err)
	}

	p.Connected = true
	t.setConnection(conn, p)
	return nil
}

// Disconnect closes the byte stream and clears connection state.
// Idempotent; also unblocks any wire loop stuck in a read or write.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.conn != nil {
		err = t.conn.Close()
		t.conn = nil
	}
	t.connected = nil
	t.gate.Resume()
	return err
}

// ConnectedPeer returns a copy of the connected peer, or nil.
func (t *Transport) ConnectedPeer() *peer.Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected == nil {
		return nil
	}
	p := *t.connected
	return &p
}

// SendFile streams one file over the established connection.
func (t *Transport) SendFile(ctx context.Context, file fileinfo.File, onProgress wire.ProgressFunc) error {
	conn := t.currentConn()
	if conn == nil {
		return errs.New(errs.ConnectionLost, "no active radio connection")
	}
	return wire.Send(ctx, conn, file, ChunkSize, t.gate, onProgress)
}

// ReceiveFile reads one file from the established connection into destDir.
func (t *Transport) ReceiveFile(ctx context.Context, destDir string, onProgress wire.ProgressFunc) (fileinfo.File, error) {
	conn := t.currentConn()
	if conn == nil {
		return fileinfo.File{}, errs.New(errs.ConnectionLost, "no active radio connection")
	}
	return wire.Receive(ctx, conn, destDir, ChunkSize, t.gate, onProgress)
}

func (t *Transport) setConnection(conn net.Conn, p peer.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.connected = &p
}

func (t *Transport) currentConn() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *Transport) closeListener() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		t.listener.Close()
		t.listener = nil
	}
}

var _ transport.Transport = (*Transport)(nil)
