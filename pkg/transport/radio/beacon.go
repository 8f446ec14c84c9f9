package radio

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/nearbeam/nearbeam/pkg/peer"
)

// beacon is the JSON presence announcement broadcast over UDP while a
// receiver is discoverable. The port is the TCP port accepting the byte
// stream.
type beacon struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Port     int    `json:"port"`
}

func (b beacon) encode() ([]byte, error) {
	return json.Marshal(b)
}

func decodeBeacon(data []byte) (beacon, error) {
	var b beacon
	if err := json.Unmarshal(data, &b); err != nil {
		return beacon{}, fmt.Errorf("malformed beacon: %w", err)
	}
	if b.Identity == "" || b.Port <= 0 {
		return beacon{}, fmt.Errorf("incomplete beacon: %+v", b)
	}
	return b, nil
}

// toPeer resolves a received beacon into a Peer using the sender address
// of the UDP packet it arrived in.
func (b beacon) toPeer(from net.Addr) peer.Peer {
	p := peer.Peer{
		Identity:    b.Identity,
		DisplayName: b.Name,
		Medium:      peer.ShortRangeRadio,
		Port:        b.Port,
	}
	if udp, ok := from.(*net.UDPAddr); ok {
		p.Addr = udp.IP
	}
	return p
}
