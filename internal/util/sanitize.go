package util

import (
	"strings"
	"unicode"
)

// SanitizeText strips control characters, collapses runs of whitespace into single
// spaces, trims, and caps the result at maxLen runes. Inbound free text passes
// through here before being stored on a user row.
func SanitizeText(s string, maxLen int) string {
	var builder strings.Builder
	builder.Grow(len(s))

	lastWasSpace := false
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				builder.WriteByte(' ')
				lastWasSpace = true
			}
			continue
		}
		builder.WriteRune(r)
		lastWasSpace = false
	}

	out := strings.TrimSpace(builder.String())
	runes := []rune(out)
	if maxLen > 0 && len(runes) > maxLen {
		out = strings.TrimSpace(string(runes[:maxLen]))
	}
	return out
}
