package utils

import "strings"

const ellipsis = "..."

// TruncateForLog trims s and keeps at most limit runes of it, marking a cut with an ellipsis.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	if clipped := Clip(s, limit); clipped != s {
		return clipped + ellipsis
	}
	return s
}

// Clip returns the first limit runes of s.
func Clip(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// SingleLine collapses every run of whitespace, newlines included, into one space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
