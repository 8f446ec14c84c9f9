// Package wlan implements the local wireless group transport. Receivers
// announce themselves over mDNS; the byte stream is a WebRTC data channel
// negotiated with a single HTTP offer/answer exchange on the announced
// signaling port. As the high-throughput medium it uses a larger chunk
// size, bounded by the SCTP message limit.
package wlan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/fileinfo"
	"github.com/nearbeam/nearbeam/pkg/peer"
	"github.com/nearbeam/nearbeam/pkg/transport"
	"github.com/nearbeam/nearbeam/pkg/wire"
)

const (
	// ChunkSize stays under the common SCTP message limit.
	ChunkSize = 16 * 1024

	dataChannelLabel = "nearbeam"
	connectTimeout   = 20 * time.Second
	acceptTimeout    = 60 * time.Second
)

// inboundConn is a fully negotiated connection handed from the signaling
// handler to Accept.
type inboundConn struct {
	pc     *webrtc.PeerConnection
	stream io.ReadWriteCloser
	remote peer.Peer
}

// Transport is the LocalWirelessGroup implementation of transport.Transport.
type Transport struct {
	identity    string
	displayName string
	perm        transport.PermissionGate
	api         *webrtc.API
	gate        *wire.Gate

	available bool
	enabled   bool

	inbound chan inboundConn

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	stream    io.ReadWriteCloser
	connected *peer.Peer
	signaling *signalingServer
	stopScan  context.CancelFunc
}

// Option customizes a Transport.
type Option func(*Transport)

// WithDisplayName sets the name announced to remote peers.
func WithDisplayName(name string) Option {
	return func(t *Transport) { t.displayName = name }
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

// New creates a wlan transport with a fresh instance identity.
//
// A dedicated webrtc.API with detached data channels and mDNS candidate
// resolution is created per transport so multiple peer connections never
// share mutable global state.
func New(opts ...Option) *Transport {
	settings := webrtc.SettingEngine{}
	settings.DetachDataChannels()
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)

	t := &Transport{
		identity:    uuid.New().String(),
		displayName: "nearbeam device",
		perm:        transport.AllowAll{},
		api:         webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		gate:        wire.NewGate(),
		available:   true,
		enabled:     true,
		inbound:     make(chan inboundConn, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind returns peer.LocalWirelessGroup.
func (t *Transport) Kind() peer.Kind { return peer.LocalWirelessGroup }

// Available reports whether the wlan capability is present.
func (t *Transport) Available() bool { return t.available }

// Enabled reports whether the wlan capability is switched on.
func (t *Transport) Enabled() bool { return t.enabled }

// Gate returns the cooperative pause checkpoint shared with the wire loops.
func (t *Transport) Gate() *wire.Gate { return t.gate }

// StartDiscovery browses for announced receivers and emits each sighting.
// The stream is closed and the mDNS listener released when ctx is
// cancelled or StopDiscovery is called.
func (t *Transport) StartDiscovery(ctx context.Context) (<-chan transport.Event, error) {
	if !t.perm.HasRequiredPermissions(t.Kind()) {
		return nil, errs.New(errs.PermissionDenied, "wlan discovery permission missing")
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
		defer close(events)
		err := browseMDNS(scanCtx, t.identity, func(p peer.Peer) {
			select {
			case events <- transport.Event{Peer: p}:
			case <-scanCtx.Done():
			}
		})
		if err != nil && scanCtx.Err() == nil {
			events <- transport.Event{Err: errs.Wrap(errs.ConnectionLost, "mDNS browse failed", err)}
		}
	}()
	return events, nil
}

// StopDiscovery halts an active browse. Idempotent.
func (t *Transport) StopDiscovery() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopScan != nil {
		t.stopScan()
		t.stopScan = nil
	}
}

// Announce starts the signaling server and publishes it over mDNS until
// ctx is cancelled.
func (t *Transport) Announce(ctx context.Context) error {
	if !t.perm.HasRequiredPermissions(t.Kind()) {
		return errs.New(errs.PermissionDenied, "wlan announce permission missing")
	}

	sig, err := newSignalingServer(t.handleOffer)
	if err != nil {
		return errs.Wrap(errs.ConnectionFailed, "failed to start signaling server", err)
	}

	respond, err := newMDNSResponder(t.identity, t.displayName, sig.Port())
	if err != nil {
		sig.Close()
		return errs.Wrap(errs.ConnectionFailed, "failed to announce service", err)
	}

	t.mu.Lock()
	t.signaling = sig
	t.mu.Unlock()

	// The responder and the signaling server live and die together: if
	// either stops, the group context brings the other one down.
	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := respond(runCtx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		t.closeSignaling()
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil {
			slog.Warn("Announce stopped", "error", err)
		}
	}()
	return nil
}

// handleOffer negotiates one inbound peer connection. The answer carries
// every gathered ICE candidate, so no trickle channel is needed.
func (t *Transport) handleOffer(ctx context.Context, offer offerPayload) (answerPayload, error) {
	pc, err := t.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return answerPayload{}, fmt.Errorf("failed to create peer connection: %w", err)
	}

	remote := peer.Peer{
		Identity:    offer.Identity,
		DisplayName: offer.Name,
		Medium:      peer.LocalWirelessGroup,
		Connected:   true,
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			raw, err := dc.Detach()
			if err != nil {
				pc.Close()
				return
			}
			select {
			case t.inbound <- inboundConn{pc: pc, stream: newDCStream(raw), remote: remote}:
			default:
				// No accept pending; the sender went away or double-connected.
				raw.Close()
				pc.Close()
			}
		})
	})

	if err := pc.SetRemoteDescription(offer.Offer); err != nil {
		pc.Close()
		return answerPayload{}, fmt.Errorf("failed to set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return answerPayload{}, fmt.Errorf("failed to create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return answerPayload{}, fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return answerPayload{}, ctx.Err()
	}

	return answerPayload{Identity: t.identity, Name: t.displayName, Answer: *pc.LocalDescription()}, nil
}

// Accept waits for one negotiated inbound connection, bounded by the
// accept timeout.
func (t *Transport) Accept(ctx context.Context) (peer.Peer, error) {
	t.mu.Lock()
	announced := t.signaling != nil
	t.mu.Unlock()
	if !announced {
		return peer.Peer{}, errs.New(errs.Unsupported, "accept called before announce")
	}

	timer := time.NewTimer(acceptTimeout)
	defer timer.Stop()

	select {
	case conn := <-t.inbound:
		t.setConnection(conn.pc, conn.stream, conn.remote)
		return conn.remote, nil
	case <-timer.C:
		return peer.Peer{}, errs.New(errs.Timeout, "no sender connected in time")
	case <-ctx.Done():
		return peer.Peer{}, ctx.Err()
	}
}

// Connect negotiates the data channel to a discovered receiver.
func (t *Transport) Connect(ctx context.Context, p peer.Peer) error {
	if !t.perm.HasRequiredPermissions(t.Kind()) {
		return errs.New(errs.PermissionDenied, "wlan connect permission missing")
	}
	if p.Addr == nil || p.Port <= 0 {
		return errs.New(errs.PeerNotFound, "peer "+p.Identity+" has no signaling address")
	}

	pc, err := t.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return errs.Wrap(errs.ConnectionFailed, "failed to create peer connection", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return errs.Wrap(errs.ConnectionFailed, "failed to create data channel", err)
	}

	opened := make(chan io.ReadWriteCloser, 1)
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			return
		}
		opened <- raw
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return errs.Wrap(errs.ConnectionFailed, "failed to create offer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return errs.Wrap(errs.ConnectionFailed, "failed to set local description", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	endpoint := fmt.Sprintf("http://%s", net.JoinHostPort(p.Addr.String(), fmt.Sprintf("%d", p.Port)))
	answer, err := sendOffer(ctx, endpoint, offerPayload{
		Identity: t.identity,
		Name:     t.displayName,
		Offer:    *pc.LocalDescription(),
	})
	if err != nil {
		pc.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Wrap(errs.ConnectionFailed, "signaling with "+p.DisplayName+" failed", err)
	}
	if err := pc.SetRemoteDescription(answer.Answer); err != nil {
		pc.Close()
		return errs.Wrap(errs.ConnectionFailed, "failed to apply answer", err)
	}

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case raw := <-opened:
		p.Connected = true
		t.setConnection(pc, newDCStream(raw), p)
		return nil
	case <-timer.C:
		pc.Close()
		return errs.New(errs.Timeout, "data channel to "+p.DisplayName+" did not open in time")
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}
}

// Disconnect closes the data channel and peer connection and clears
// connection state. Idempotent.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.stream != nil {
		err = t.stream.Close()
		t.stream = nil
	}
	if t.pc != nil {
		if cerr := t.pc.Close(); err == nil {
			err = cerr
		}
		t.pc = nil
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

// SendFile streams one file over the established data channel.
func (t *Transport) SendFile(ctx context.Context, file fileinfo.File, onProgress wire.ProgressFunc) error {
	stream := t.currentStream()
	if stream == nil {
		return errs.New(errs.ConnectionLost, "no active wlan connection")
	}
	return wire.Send(ctx, stream, file, ChunkSize, t.gate, onProgress)
}

// ReceiveFile reads one file from the established data channel into destDir.
func (t *Transport) ReceiveFile(ctx context.Context, destDir string, onProgress wire.ProgressFunc) (fileinfo.File, error) {
	stream := t.currentStream()
	if stream == nil {
		return fileinfo.File{}, errs.New(errs.ConnectionLost, "no active wlan connection")
	}
	return wire.Receive(ctx, stream, destDir, ChunkSize, t.gate, onProgress)
}

func (t *Transport) setConnection(pc *webrtc.PeerConnection, stream io.ReadWriteCloser, p peer.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream != nil {
		t.stream.Close()
	}
	if t.pc != nil {
		t.pc.Close()
	}
	t.pc = pc
	t.stream = stream
	t.connected = &p
}

func (t *Transport) currentStream() io.ReadWriteCloser {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream
}

func (t *Transport) closeSignaling() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signaling != nil {
		t.signaling.Close()
		t.signaling = nil
	}
}

var _ transport.Transport = (*Transport)(nil)
