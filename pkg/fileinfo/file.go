package fileinfo

import (
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nearbeam/nearbeam/internal/util"
)

// File describes a single transferable file.
//
// Path is the local handle for the sender; on the receiving side it is the
// destination the payload was written to. Name carries the original display
// name as chosen by the user or the remote sender; use SafeName before
// touching the filesystem with it.
type File struct {
	Path     string `json:"-"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
}

// SafeName returns the sanitized form of Name. It is always derived, never
// stored, so it cannot diverge from Name.
func (f File) SafeName() string {
	return util.SanitizeFileName(f.Name)
}

// Resolve turns a user-selected path into a File, sniffing the MIME type
// from content. Directories are rejected; the coordinator treats a
// resolution failure as "file unavailable" and excludes the file from the
// batch rather than failing the session.
func Resolve(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("cannot transfer a directory: %s", path)
	}

	f := File{
		Path: path,
		Name: info.Name(),
		Size: info.Size(),
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		f.MimeType = "application/octet-stream"
	} else {
		f.MimeType = mime.String()
	}
	return f, nil
}

// ResolveAll resolves a batch of paths, skipping entries that fail to
// resolve. The skipped paths are returned so the caller can report them.
func ResolveAll(paths []string) (files []File, skipped []string) {
	for _, p := range paths {
		f, err := Resolve(p)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		files = append(files, f)
	}
	return files, skipped
}
