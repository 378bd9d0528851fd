package utils

import (
	"regexp"
	"strings"
)

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// SanitizePhone strips formatting characters from a phone number and
// ensures a leading plus sign.
func SanitizePhone(number string) string {
	s := nonPhoneChars.ReplaceAllString(number, "")
	s = strings.TrimLeft(s, "+")
	if s == "" {
		return ""
	}
	return "+" + s
}

// MaskPhone returns a redacted form suitable for logging.
func MaskPhone(number string) string {
	if len(number) <= 5 {
		return number
	}
	return number[:5] + "***"
}
