package util

import (
	"html"
	"strings"
)

// NormalizePhone strips formatting characters so the same number always
// compares equal regardless of how the guest typed it.
func NormalizePhone(phone string) string {
	normalized := strings.TrimSpace(phone)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "(", "")
	normalized = strings.ReplaceAll(normalized, ")", "")
	normalized = strings.ReplaceAll(normalized, ".", "")
	return normalized
}

// PhoneLast4 returns the last 4 digits of a normalized phone number,
// or "" if the number is too short to have them.
func PhoneLast4(phone string) string {
	normalized := NormalizePhone(phone)
	if len(normalized) < 4 {
		return ""
	}
	return normalized[len(normalized)-4:]
}

// IsLast4 reports whether s is exactly four digits.
func IsLast4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SanitizeInput escapes HTML/script-like characters from guest-supplied text
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}
