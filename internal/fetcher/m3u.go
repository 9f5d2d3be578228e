package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/voyagen/tvvault/internal/models"
)

// reAttr matches one key="value" pair inside an EXTINF attribute block.
var reAttr = regexp.MustCompile(`([A-Za-z0-9][A-Za-z0-9_-]*)="([^"]*)"`)

// ParsePlaylist reads extended-M3U text from r and returns raw entries in
// file order. Attribute blocks with partial or missing fields are kept as-is;
// an EXTINF directive that is never followed by a location line is dropped.
// ParseError is returned only when the text cannot be identified as an
// extended playlist at all.
func ParsePlaylist(r io.Reader) ([]models.RawEntry, error) {
	var entries []models.RawEntry
	scanner := bufio.NewScanner(r)
	// Handle long lines (some playlists have very long EXTINF lines).
	const maxSize = 1024 * 1024
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxSize)

	var attrs map[string]string
	pending := false
	marker := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineUpper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(lineUpper, "#EXTM3U"):
			marker = true
		case strings.HasPrefix(lineUpper, "#EXTINF"):
			// A previous EXTINF without a location is dropped here.
			marker = true
			attrs = parseAttributes(line)
			pending = true
		case strings.HasPrefix(line, "#"):
			// Other directives carry nothing we persist.
		case line != "":
			if !pending {
				continue
			}
			entries = append(entries, models.RawEntry{
				Location:   line,
				Attributes: attrs,
			})
			attrs = nil
			pending = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("scan: %w", err)}
	}
	if !marker {
		return nil, &ParseError{Err: fmt.Errorf("not an extended M3U playlist")}
	}
	return entries, nil
}

func parseAttributes(extinf string) map[string]string {
	matches := reAttr.FindAllStringSubmatch(extinf, -1)
	attrs := make(map[string]string, len(matches))
	for _, m := range matches {
		attrs[m[1]] = m[2]
	}
	return attrs
}
