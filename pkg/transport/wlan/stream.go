package wlan

import (
	"io"
	"sync"
)

// dcStream adapts a detached WebRTC data channel to byte-stream semantics.
//
// A detached channel delivers one SCTP message per Read and errors when the
// caller's buffer is smaller than the message. The wire protocol reads in
// arbitrary slices (a 12-byte header prefix, then chunk-sized pieces), so
// reads are staged through an internal buffer that always accepts a full
// message. Writes pass through unchanged: every chunk is one message.
type dcStream struct {
	rwc io.ReadWriteCloser

	mu      sync.Mutex
	pending []byte
	scratch []byte
}

// maxMessageSize bounds a single inbound SCTP message. Senders never write
// messages larger than the wlan chunk size, so this leaves ample headroom.
const maxMessageSize = 64 * 1024

func newDCStream(rwc io.ReadWriteCloser) *dcStream {
	return &dcStream{
		rwc:     rwc,
		scratch: make([]byte, maxMessageSize),
	}
}

func (s *dcStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 {
		n, err := s.rwc.Read(s.scratch)
		if n > 0 {
			s.pending = append(s.pending, s.scratch[:n]...)
			break
		}
		if err != nil {
			return 0, err
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *dcStream) Write(p []byte) (int, error) {
	return s.rwc.Write(p)
}

func (s *dcStream) Close() error {
	return s.rwc.Close()
}
