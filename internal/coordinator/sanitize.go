package coordinator

import "strings"

// SanitizeContent normalizes user-supplied chat content: whitespace is
// trimmed, raw angle brackets are stripped, and the result is capped at
// maxRunes runes.
//
// Postcondition: Returns the sanitized string, possibly empty. An empty
// result means the message must not be sent.
func SanitizeContent(content string, maxRunes int) string {
	content = strings.TrimSpace(content)
	content = strings.NewReplacer("<", "", ">", "").Replace(content)

	if maxRunes > 0 {
		runes := []rune(content)
		if len(runes) > maxRunes {
			content = string(runes[:maxRunes])
		}
	}
	return content
}
