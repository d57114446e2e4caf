package utils

import (
	"strings"
	"unicode"
)

// SanitizeString sanitizes a string for safe use
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// NormalizeSessionCode trims and upper-cases a typed session code
func NormalizeSessionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DeviceName builds the default display name for a device
func DeviceName(platform, id string) string {
	switch strings.ToLower(platform) {
	case "mobile", "ios", "android":
		return "Mobile-" + id
	default:
		return "Web-" + id
	}
}
