package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	assert.Equal(t, "auto", Auto.String())
	assert.Equal(t, "radio", ShortRangeRadio.String())
	assert.Equal(t, "wlan", LocalWirelessGroup.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Auto, ShortRangeRadio, LocalWirelessGroup} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("bluetooth")
	assert.Error(t, err)
	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestKind_IsMedium(t *testing.T) {
	assert.False(t, Auto.IsMedium())
	assert.True(t, ShortRangeRadio.IsMedium())
	assert.True(t, LocalWirelessGroup.IsMedium())
}

func TestPeer_Equal(t *testing.T) {
	a := Peer{Identity: "id-1", DisplayName: "Alice", Addr: net.IPv4(192, 168, 1, 2)}
	sameID := Peer{Identity: "id-1", DisplayName: "Alice's laptop", Addr: net.IPv4(10, 0, 0, 9)}
	other := Peer{Identity: "id-2", DisplayName: "Alice"}

	assert.True(t, a.Equal(sameID), "identity alone decides equality")
	assert.False(t, a.Equal(other))
}
