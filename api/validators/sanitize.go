package validators

import "strings"

// SanitizeString returns input trimmed of surrounding whitespace and capped
// at maxLen runes. A maxLen of zero or less disables the cap. Truncation is
// rune-aware so multi-byte search terms never come back as broken UTF-8.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) <= maxLen {
		return trimmed
	}
	return string(runes[:maxLen])
}
