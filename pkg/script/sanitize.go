package script

import "strings"

// Sanitize normalizes a model output: strips one layer of outer quotes,
// collapses whitespace runs to single spaces, trims, and guarantees the
// string ends in terminal punctuation.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}

// WordCount counts whitespace-separated words after sanitization.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
