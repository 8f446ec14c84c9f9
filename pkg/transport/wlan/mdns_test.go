package wlan

import (
	"net"
	"testing"

	"github.com/brutella/dnssd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearbeam/nearbeam/pkg/peer"
)

func TestBrowseService(t *testing.T) {
	assert.Equal(t, "_nearbeam._tcp.local.", browseService())
}

func TestEntryToPeer(t *testing.T) {
	entry := dnssd.BrowseEntry{
		Name: "Alice's laptop",
		IPs:  []net.IP{net.IPv4(192, 168, 1, 30)},
		Port: 51234,
		Text: map[string]string{"id": "id-1", "name": "Alice"},
	}

	p, ok := entryToPeer(entry)
	require.True(t, ok)
	assert.Equal(t, "id-1", p.Identity)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, peer.LocalWirelessGroup, p.Medium)
	assert.True(t, p.Addr.Equal(net.IPv4(192, 168, 1, 30)))
	assert.Equal(t, 51234, p.Port)
}

func TestEntryToPeer_NameFallsBackToInstance(t *testing.T) {
	entry := dnssd.BrowseEntry{
		Name: "Alice's laptop",
		IPs:  []net.IP{net.IPv4(192, 168, 1, 30)},
		Port: 51234,
		Text: map[string]string{"id": "id-1"},
	}

	p, ok := entryToPeer(entry)
	require.True(t, ok)
	assert.Equal(t, "Alice's laptop", p.DisplayName)
}

func TestEntryToPeer_DropsIncompleteEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry dnssd.BrowseEntry
	}{
		{"No addresses", dnssd.BrowseEntry{
			Port: 51234,
			Text: map[string]string{"id": "id-1"},
		}},
		{"No port", dnssd.BrowseEntry{
			IPs:  []net.IP{net.IPv4(192, 168, 1, 30)},
			Text: map[string]string{"id": "id-1"},
		}},
		{"No identity", dnssd.BrowseEntry{
			IPs:  []net.IP{net.IPv4(192, 168, 1, 30)},
			Port: 51234,
			Text: map[string]string{"name": "Alice"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := entryToPeer(tt.entry)
			assert.False(t, ok)
		})
	}
}
