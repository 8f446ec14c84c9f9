package wlan

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// messagePipe simulates a detached data channel: each queued slice is one
// SCTP message, delivered whole per Read.
type messagePipe struct {
	messages [][]byte
	written  bytes.Buffer
	closed   bool
}

func (m *messagePipe) Read(p []byte) (int, error) {
	if len(m.messages) == 0 {
		return 0, io.EOF
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	if len(p) < len(msg) {
		return 0, io.ErrShortBuffer
	}
	return copy(p, msg), nil
}

func (m *messagePipe) Write(p []byte) (int, error) { return m.written.Write(p) }
func (m *messagePipe) Close() error                { m.closed = true; return nil }

func TestDCStream_SmallReadsFromLargeMessage(t *testing.T) {
	pipe := &messagePipe{messages: [][]byte{[]byte("abcdefghij")}}
	s := newDCStream(pipe)

	// A read smaller than the message must not error; the remainder is
	// buffered for subsequent reads.
	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "efghij", string(rest))
}

func TestDCStream_SpansMessages(t *testing.T) {
	pipe := &messagePipe{messages: [][]byte{[]byte("head"), []byte("tail")}}
	s := newDCStream(pipe)

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "headtail", string(got))
}

func TestDCStream_ExactRead(t *testing.T) {
	pipe := &messagePipe{messages: [][]byte{[]byte("12345678")}}
	s := newDCStream(pipe)

	buf := make([]byte, 8)
	n, err := io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "12345678", string(buf))
}

func TestDCStream_EOFAfterDrain(t *testing.T) {
	pipe := &messagePipe{messages: [][]byte{[]byte("x")}}
	s := newDCStream(pipe)

	buf := make([]byte, 4)
	_, err := s.Read(buf)
	require.NoError(t, err)

	_, err = s.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestDCStream_WritePassesThrough(t *testing.T) {
	pipe := &messagePipe{}
	s := newDCStream(pipe)

	n, err := s.Write([]byte("chunk"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "chunk", pipe.written.String())
}

func TestDCStream_Close(t *testing.T) {
	pipe := &messagePipe{}
	s := newDCStream(pipe)
	require.NoError(t, s.Close())
	assert.True(t, pipe.closed)
}
