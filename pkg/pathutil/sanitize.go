// Package pathutil normalizes asset paths and filenames supplied by clients
// and rejects traversal attempts before they reach any store.
package pathutil

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/lodehq/lode/pkg/asset"
)

var (
	separatorRuns = regexp.MustCompile(`[\\/]+`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
)

// SanitizePath canonicalizes a client-supplied path: runs of slashes and
// backslashes collapse to a single "/", leading and trailing separators are
// stripped, and any ".." segment is rejected.
func SanitizePath(path string) (string, error) {
	if path == "" {
		return "", asset.E(asset.KindInvalidInput, "invalid empty path")
	}
	path = separatorRuns.ReplaceAllString(strings.Trim(path, "/\\"), "/")
	if path == "" {
		return "", asset.E(asset.KindInvalidInput, "invalid empty path")
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return "", asset.E(asset.KindInvalidInput, "path traversal detected")
		}
	}
	return path, nil
}

// SanitizeFilename canonicalizes a client-supplied filename: percent
// escapes are decoded, any directory prefix is stripped, and characters
// outside [A-Za-z0-9_.-] are replaced with "_". Empty names and the "." /
// ".." specials are rejected.
func SanitizeFilename(filename string) (string, error) {
	if filename == "" {
		return "", asset.E(asset.KindInvalidInput, "filename is required")
	}
	if decoded, err := url.QueryUnescape(filename); err == nil {
		filename = decoded
	}
	if idx := strings.LastIndexAny(filename, `/\`); idx >= 0 {
		filename = filename[idx+1:]
	}
	filename = unsafeChars.ReplaceAllString(filename, "_")
	if filename == "" || filename == "." || filename == ".." {
		return "", asset.E(asset.KindInvalidInput, "invalid filename")
	}
	return filename, nil
}

// Stem returns the filename without its final extension.
func Stem(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		return filename[:idx]
	}
	return filename
}
