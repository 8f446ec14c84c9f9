package wlan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brutella/dnssd"

	"github.com/nearbeam/nearbeam/pkg/peer"
)

const (
	// ServiceType identifies nearbeam receivers on the local link.
	ServiceType = "_nearbeam._tcp"
	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local"

	txtIdentity = "id"
	txtName     = "name"
)

func browseService() string {
	return fmt.Sprintf("%s.%s.", ServiceType, ServiceDomain)
}

// newMDNSResponder prepares this instance as a browsable service and
// returns the blocking respond loop. The TXT record carries the stable
// identity and display name; port is the signaling port remote senders
// post offers to.
func newMDNSResponder(identity, name string, port int) (func(ctx context.Context) error, error) {
	cfg := dnssd.Config{
		Name:   name,
		Type:   ServiceType,
		Domain: ServiceDomain,
		// mDNS multicasts on every interface; explicit IPs are unnecessary.
		IPs:  nil,
		Text: map[string]string{txtIdentity: identity, txtName: name},
		Port: port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS responder: %w", err)
	}
	if _, err = rp.Add(service); err != nil {
		return nil, fmt.Errorf("failed to add mDNS service: %w", err)
	}

	return rp.Respond, nil
}

// browseMDNS runs an mDNS lookup, invoking onPeer for every added or
// updated entry until ctx is cancelled. Entries without a usable address
// or identity are dropped.
func browseMDNS(ctx context.Context, selfIdentity string, onPeer func(peer.Peer)) error {
	addFn := func(e dnssd.BrowseEntry) {
		p, ok := entryToPeer(e)
		if !ok {
			slog.Debug("Dropping incomplete mDNS entry", "name", e.Name)
			return
		}
		if p.Identity == selfIdentity {
			return
		}
		onPeer(p)
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		// Departures are not emitted: the discovered list is an
		// insertion-ordered record of the session's sightings.
	}

	return dnssd.LookupType(ctx, browseService(), addFn, rmvFn)
}

func entryToPeer(e dnssd.BrowseEntry) (peer.Peer, bool) {
	if len(e.IPs) == 0 || e.Port == 0 {
		return peer.Peer{}, false
	}
	identity := e.Text[txtIdentity]
	if identity == "" {
		return peer.Peer{}, false
	}
	name := e.Text[txtName]
	if name == "" {
		name = e.Name
	}
	return peer.Peer{
		Identity:    identity,
		DisplayName: name,
		Medium:      peer.LocalWirelessGroup,
		Addr:        e.IPs[0],
		Port:        e.Port,
	}, true
}
