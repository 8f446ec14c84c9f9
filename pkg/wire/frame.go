package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Header is the self-describing metadata frame preceding a file's payload.
//
// Wire layout, big-endian, once per file:
//
//	u16 nameLen | nameLen bytes UTF-8 name | i64 size | u16 mimeLen |
//	mimeLen bytes UTF-8 mime | size bytes payload
//
// This layout is the only byte-level compatibility contract between sender
// and receiver; chunking is never visible on the wire.
type Header struct {
	Name string
	Size int64
	Mime string
}

// OctetStream is substituted by the receiver when the sender reports no
// MIME type (empty string on the wire).
const OctetStream = "application/octet-stream"

// WriteHeader encodes h onto w.
func WriteHeader(w io.Writer, h Header) error {
	name := []byte(h.Name)
	if len(name) > math.MaxUint16 {
		return fmt.Errorf("file name exceeds %d bytes", math.MaxUint16)
	}
	mime := []byte(h.Mime)
	if len(mime) > math.MaxUint16 {
		return fmt.Errorf("mime type exceeds %d bytes", math.MaxUint16)
	}
	if h.Size < 0 {
		return fmt.Errorf("negative file size %d", h.Size)
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(name) + 8 + 2 + len(mime))

	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], uint16(len(name)))
	buf.Write(u16[:])
	buf.Write(name)

	var i64 [8]byte
	binary.BigEndian.PutUint64(i64[:], uint64(h.Size))
	buf.Write(i64[:])

	binary.BigEndian.PutUint16(u16[:], uint16(len(mime)))
	buf.Write(u16[:])
	buf.Write(mime)

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadHeader decodes the next metadata frame from r.
//
// A clean io.EOF before the first byte means the sender has closed the
// stream after its last file; callers use it to detect the end of a batch.
func ReadHeader(r io.Reader) (Header, error) {
	var u16 [2]byte
	if _, err := io.ReadFull(r, u16[:]); err != nil {
		if err == io.EOF {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("failed to read name length: %w", err)
	}
	nameLen := binary.BigEndian.Uint16(u16[:])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Header{}, fmt.Errorf("failed to read file name: %w", err)
	}

	var i64 [8]byte
	if _, err := io.ReadFull(r, i64[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read file size: %w", err)
	}
	size := int64(binary.BigEndian.Uint64(i64[:]))
	if size < 0 {
		return Header{}, fmt.Errorf("invalid negative file size %d", size)
	}

	if _, err := io.ReadFull(r, u16[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read mime length: %w", err)
	}
	mimeLen := binary.BigEndian.Uint16(u16[:])

	mime := make([]byte, mimeLen)
	if _, err := io.ReadFull(r, mime); err != nil {
		return Header{}, fmt.Errorf("failed to read mime type: %w", err)
	}

	return Header{Name: string(name), Size: size, Mime: string(mime)}, nil
}
