package store

import (
	"strings"

	"github.com/google/uuid"
)

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// GenerateProjectID returns a 12-hex-char project identifier.
func GenerateProjectID() string {
	return hexID(12)
}

// GenerateEventID returns a schedule event identifier like evt_1a2b3c4d.
func GenerateEventID() string {
	return "evt_" + hexID(8)
}

// GenerateHighlightID returns a highlight job identifier like hl_1a2b3c4d.
func GenerateHighlightID() string {
	return "hl_" + hexID(8)
}
