package util

import (
	"strings"
	"unicode"
)

const MaxDisplayNameLength = 32

// SanitizeDisplayName trims a requested display name and strips control characters.
func SanitizeDisplayName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len([]rune(s)) > MaxDisplayNameLength {
		s = string([]rune(s)[:MaxDisplayNameLength])
	}
	return s
}

// ContainsSuspicious flags names carrying markup or template characters, or
// that would read as a command.
func ContainsSuspicious(s string) bool {
	return strings.ContainsAny(s, "<>{}") || strings.HasPrefix(s, "/")
}
