package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// SessionCodeRegex validates session code format after normalization
	SessionCodeRegex = regexp.MustCompile(`^[0-9A-Z]{6}$`)

	// ProfileRegex validates profile names used as storage namespaces
	ProfileRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// DeviceIDRegex validates device ID format
	DeviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateSessionCode validates a session code. Input is trimmed and
// upper-cased first, so "ab12cd" is accepted.
func ValidateSessionCode(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("session code is required")
	}
	if !SessionCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid session code format (6 letters or digits)")
	}
	return nil
}

// ValidateProfile validates a device profile name
func ValidateProfile(profile string) error {
	if profile == "" {
		return fmt.Errorf("profile is required")
	}
	if len(profile) > 64 {
		return fmt.Errorf("profile is too long (max 64 characters)")
	}
	if !ProfileRegex.MatchString(profile) {
		return fmt.Errorf("profile contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateDeviceID validates device ID
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("device ID is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("device ID is too long (max 100 characters)")
	}
	if !DeviceIDRegex.MatchString(id) {
		return fmt.Errorf("invalid device ID format")
	}
	return nil
}

// ValidateDeviceName validates a device display name
func ValidateDeviceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("device name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return fmt.Errorf("device name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("device name contains invalid characters")
	}
	return nil
}

// ValidateBattery validates a battery percentage
func ValidateBattery(battery int) error {
	if battery < 0 || battery > 100 {
		return fmt.Errorf("battery must be between 0 and 100")
	}
	return nil
}

// ValidateDuration validates a recording duration in seconds
func ValidateDuration(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// ValidateThumbnailURL validates a recording preview reference. Empty is
// allowed; local blob and data references are accepted alongside http(s).
func ValidateThumbnailURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid thumbnail URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("thumbnail URL must have a host")
		}
	case "blob", "data":
	default:
		return fmt.Errorf("invalid thumbnail URL scheme (must be http, https, blob, or data)")
	}
	return nil
}
