package util

import (
	"strconv"
	"strings"
)

// FallbackFileName is substituted when sanitization leaves nothing usable.
const FallbackFileName = "unnamed_file"

// maxFileNameBytes is the common filesystem limit for a single path element.
const maxFileNameBytes = 255

// SanitizeFileName strips characters that are unsafe in a filesystem name,
// trims surrounding whitespace, and truncates the result to 255 bytes at a
// rune boundary. An empty result becomes FallbackFileName.
//
// The function is idempotent: sanitizing an already sanitized name returns
// it unchanged.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if len(cleaned) > maxFileNameBytes {
		cleaned = truncateToRuneBoundary(cleaned, maxFileNameBytes)
		// Truncation can expose trailing whitespace again.
		cleaned = strings.TrimSpace(cleaned)
	}

	if cleaned == "" {
		return FallbackFileName
	}
	return cleaned
}

// truncateToRuneBoundary cuts s to at most max bytes without splitting a rune.
func truncateToRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// SplitExt splits a file name into its stem and extension, keeping the dot
// on the extension. Dotfiles such as ".profile" are treated as all stem.
func SplitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// NumberedName returns name with a numeric suffix before the extension,
// e.g. NumberedName("report.pdf", 2) == "report (2).pdf".
func NumberedName(name string, n int) string {
	stem, ext := SplitExt(name)
	return stem + " (" + strconv.Itoa(n) + ")" + ext
}
