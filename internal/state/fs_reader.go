package state

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// markerRegex matches the version line of an addon table of contents,
// e.g. "## Version: 13.74".
var markerRegex = regexp.MustCompile(`(?m)^##\s*Version:\s*(\S.*?)\s*$`)

// MarkerFileReader reads the version from a text file holding a
// "## Version: <version>" line.
type MarkerFileReader struct {
	Path string
}

// InstalledVersion implements Reader. A missing file means not installed.
func (r *MarkerFileReader) InstalledVersion(context.Context) (string, error) {
	data, err := os.ReadFile(r.Path)
	if os.IsNotExist(err) {
		return "", ErrNotInstalled
	}
	if err != nil {
		return "", fmt.Errorf("failed to read version marker %s: %w", r.Path, err)
	}

	return parseMarker(data, r.Path)
}

func parseMarker(data []byte, path string) (string, error) {
	// Tolerate a UTF-8 BOM and CRLF line endings.
	text := strings.TrimPrefix(string(data), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	m := markerRegex.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", fmt.Errorf("no version line in %s", path)
	}
	return m[1], nil
}
