package inference

import "strings"

const fenceMarker = "```"

// StripFence removes surrounding whitespace and, if present, a leading code
// fence with its optional language tag ("```json") and a trailing fence.
func StripFence(text string) string {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, fenceMarker) {
		cleaned = strings.TrimPrefix(cleaned, fenceMarker)
		cleaned = strings.TrimLeftFunc(cleaned, isTagRune)
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimSuffix(cleaned, fenceMarker)
	return strings.TrimSpace(cleaned)
}

func isTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '+'
}
