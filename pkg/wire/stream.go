package wire

import (
	"context"
	"io"
	"os"

	"github.com/nearbeam/nearbeam/internal/util"
	"github.com/nearbeam/nearbeam/pkg/errs"
	"github.com/nearbeam/nearbeam/pkg/fileinfo"
)

// Chunk size bounds shared by every transport. The chunk size is a
// per-medium tunable and never appears on the wire: the receiver consumes
// exactly Header.Size payload bytes regardless of how the sender chunked.
const (
	MinChunkSize     = 4 * 1024
	MaxChunkSize     = 256 * 1024
	DefaultChunkSize = 32 * 1024
)

// clampChunkSize coerces an out-of-range tunable back to the default.
func clampChunkSize(n int) int {
	if n < MinChunkSize || n > MaxChunkSize {
		return DefaultChunkSize
	}
	return n
}

// Send frames file onto w and streams its payload in chunkSize chunks.
//
// gate is polled between chunk operations for cooperative pause; a nil gate
// means the transfer is never paused. onProgress may be nil. Cancellation
// surfaces as the context error so the caller can distinguish a cancel from
// a failure; stream errors map to errs.ConnectionLost and local read errors
// to errs.FileIO.
func Send(ctx context.Context, w io.Writer, file fileinfo.File, chunkSize int, gate *Gate, onProgress ProgressFunc) error {
	src, err := os.Open(file.Path)
	if err != nil {
		return errs.Wrap(errs.FileIO, "failed to open "+file.Path, err)
	}
	defer src.Close()

	header := Header{Name: file.SafeName(), Size: file.Size, Mime: file.MimeType}
	if err := WriteHeader(w, header); err != nil {
		return errs.Wrap(errs.ConnectionLost, "failed to write metadata frame", err)
	}

	meter := newProgressMeter(file.Size, onProgress)
	buf := make([]byte, clampChunkSize(chunkSize))

	var sent int64
	for sent < file.Size {
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		want := int64(len(buf))
		if remaining := file.Size - sent; remaining < want {
			want = remaining
		}
		n, rerr := src.Read(buf[:want])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return errs.Wrap(errs.ConnectionLost, "stream closed while sending "+header.Name, werr)
			}
			sent += int64(n)
			meter.Add(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errs.Wrap(errs.FileIO, "failed to read "+file.Path, rerr)
		}
	}

	// A file that shrank between resolution and send would starve the
	// receiver, which still expects Header.Size bytes.
	if sent != file.Size {
		return errs.New(errs.FileIO, "size of "+file.Path+" changed during transfer")
	}

	meter.Finish()
	return nil
}

// Receive decodes the next frame from r and writes the payload under
// destDir using the sanitized name, suffixing " (N)" on collision.
//
// It returns io.EOF untouched when the stream ends cleanly before a frame,
// which signals the end of a batch. Partially written files are left in
// place on failure; rollback is explicitly not attempted.
func Receive(ctx context.Context, r io.Reader, destDir string, chunkSize int, gate *Gate, onProgress ProgressFunc) (fileinfo.File, error) {
	header, err := ReadHeader(r)
	if err == io.EOF {
		return fileinfo.File{}, io.EOF
	}
	if err != nil {
		return fileinfo.File{}, errs.Wrap(errs.ConnectionLost, "stream closed while reading metadata frame", err)
	}

	name := util.SanitizeFileName(header.Name)
	mime := header.Mime
	if mime == "" {
		mime = OctetStream
	}

	dest, err := util.UniquePath(destDir, name)
	if err != nil {
		return fileinfo.File{}, errs.Wrap(errs.FileIO, "failed to pick destination for "+name, err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fileinfo.File{}, errs.Wrap(errs.FileIO, "failed to create "+dest, err)
	}
	defer out.Close()

	meter := newProgressMeter(header.Size, onProgress)
	buf := make([]byte, clampChunkSize(chunkSize))
	received := fileinfo.File{Path: dest, Name: name, Size: header.Size, MimeType: mime}

	var got int64
	for got < header.Size {
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return received, err
			}
		} else if err := ctx.Err(); err != nil {
			return received, err
		}

		want := int64(len(buf))
		if remaining := header.Size - got; remaining < want {
			want = remaining
		}
		n, rerr := r.Read(buf[:want])
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return received, errs.Wrap(errs.FileIO, "failed to write "+dest, werr)
			}
			got += int64(n)
			meter.Add(n)
		}
		if rerr == io.EOF {
			if got < header.Size {
				return received, errs.New(errs.ConnectionLost, "stream closed before "+name+" completed")
			}
			break
		}
		if rerr != nil {
			return received, errs.Wrap(errs.ConnectionLost, "stream failed while receiving "+name, rerr)
		}
	}

	if err := out.Sync(); err != nil {
		return received, errs.Wrap(errs.FileIO, "failed to flush "+dest, err)
	}

	meter.Finish()
	return received, nil
}
