package linkcache

import (
	"regexp"
	"strings"
)

var markerPattern = regexp.MustCompile(`\[(?:SRC|Notion ID):\s*([^\]\s]+)\s*\]`)

// Marker returns the tag embedded in a target description to link it back
// to its source record.
func Marker(sourceID string) string {
	return "[SRC:" + sourceID + "]"
}

// Decorate prepends the marker to a description.
func Decorate(sourceID, description string) string {
	if description == "" {
		return Marker(sourceID)
	}
	return Marker(sourceID) + "\n\n" + description
}

// ParseMarker extracts the source id from the first marker in text. The
// legacy "[Notion ID: <id>]" form is accepted as well.
func ParseMarker(text string) (string, bool) {
	m := markerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	id := strings.TrimSpace(m[1])
	return id, id != ""
}
