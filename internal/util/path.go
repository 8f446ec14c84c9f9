package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckDirectory reports whether path exists and whether it is a directory.
func CheckDirectory(path string) (exists bool, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// UniquePath joins dir and name, resolving collisions deterministically by
// appending the first free " (N)" suffix before the extension, starting at 1.
func UniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to probe destination %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, NumberedName(name, n))
	}
}
