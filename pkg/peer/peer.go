package peer

import (
	"fmt"
	"net"
)

// Kind identifies a transfer medium. Auto is a selection policy, not a
// medium: it must never appear on a resolved Peer.
type Kind int

const (
	// Auto lets the coordinator pick the best available medium.
	Auto Kind = iota
	// ShortRangeRadio is the low-throughput paired-radio medium.
	ShortRangeRadio
	// LocalWirelessGroup is the high-throughput group-networking medium.
	LocalWirelessGroup
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Auto:
		return "auto"
	case ShortRangeRadio:
		return "radio"
	case LocalWirelessGroup:
		return "wlan"
	default:
		return "unknown"
	}
}

// ParseKind parses a medium name as used on the command line.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "auto":
		return Auto, nil
	case "radio":
		return ShortRangeRadio, nil
	case "wlan":
		return LocalWirelessGroup, nil
	default:
		return Auto, fmt.Errorf("unknown medium %q (want auto, radio, or wlan)", s)
	}
}

// IsMedium reports whether k names a real transfer medium.
func (k Kind) IsMedium() bool {
	return k == ShortRangeRadio || k == LocalWirelessGroup
}

// Peer is a discovered device willing to exchange files.
//
// Identity is the transport-scoped unique key (e.g. the announced instance
// ID) and is the sole basis for de-duplication; DisplayName and the dial
// hints may change between sightings of the same peer.
type Peer struct {
	Identity    string
	DisplayName string
	Medium      Kind
	Connected   bool

	// Dial hints for the transport that discovered the peer.
	Addr net.IP
	Port int
}

// Equal reports whether two peers refer to the same device.
func (p Peer) Equal(other Peer) bool {
	return p.Identity == other.Identity
}
