package llm

import "unicode/utf8"

// truncateString cuts s to maxLength runes and marks the cut.
func truncateString(s string, maxLength int) string {
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	return string([]rune(s)[:maxLength]) + "..."
}
