package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"Typical file", Header{Name: "a.txt", Size: 5, Mime: "text/plain"}},
		{"Empty mime", Header{Name: "blob", Size: 1 << 30, Mime: ""}},
		{"Zero size", Header{Name: "empty.bin", Size: 0, Mime: "application/octet-stream"}},
		{"Unicode name", Header{Name: "фото 2024.jpg", Size: 42, Mime: "image/jpeg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteHeader(&buf, tt.header))

			got, err := ReadHeader(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.header, got)
			assert.Zero(t, buf.Len(), "frame must consume exactly its own bytes")
		})
	}
}

func TestWriteHeader_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{Name: "a.txt", Size: 5, Mime: "text/plain"}))

	raw := buf.Bytes()
	require.Len(t, raw, 2+5+8+2+10)
	assert.Equal(t, uint16(5), binary.BigEndian.Uint16(raw[0:2]))
	assert.Equal(t, "a.txt", string(raw[2:7]))
	assert.Equal(t, uint64(5), binary.BigEndian.Uint64(raw[7:15]))
	assert.Equal(t, uint16(10), binary.BigEndian.Uint16(raw[15:17]))
	assert.Equal(t, "text/plain", string(raw[17:]))
}

func TestWriteHeader_Rejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteHeader(&buf, Header{Name: strings.Repeat("x", 70000), Size: 1}))
	assert.Error(t, WriteHeader(&buf, Header{Name: "a", Size: -1}))
	assert.Error(t, WriteHeader(&buf, Header{Name: "a", Size: 1, Mime: strings.Repeat("x", 70000)}))
}

func TestReadHeader_CleanEOFPassesThrough(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadHeader_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{Name: "a.txt", Size: 5, Mime: "text/plain"}))
	raw := buf.Bytes()

	// Any cut inside the frame is a hard error, never a clean end of batch.
	for _, cut := range []int{1, 2, 4, 9, 16} {
		_, err := ReadHeader(bytes.NewReader(raw[:cut]))
		require.Error(t, err, "cut at %d", cut)
		assert.NotEqual(t, io.EOF, err, "cut at %d", cut)
	}
}
