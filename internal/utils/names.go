package utils

import "strings"

// SanitizeHandle reduces a user handle to lowercase alphanumerics, '-' and
// '_'. An empty result falls back to the given id so channel names stay
// non-empty.
func SanitizeHandle(handle, fallbackID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(handle) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallbackID
	}
	return b.String()
}

// Truncate clips s to at most max bytes on a rune boundary.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for i := max; i > 0; i-- {
		if s[i]&0xC0 != 0x80 {
			return s[:i]
		}
	}
	return ""
}
