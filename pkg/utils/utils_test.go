package utils

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateSessionCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateSessionCode()
		if len(code) != SessionCodeLength {
			t.Fatalf("expected %d characters, got %q", SessionCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(SessionCodeAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Errorf("expected mostly distinct codes, got %d unique of 100", len(seen))
	}
}

func TestGenerateDeviceID(t *testing.T) {
	id1 := GenerateDeviceID()
	id2 := GenerateDeviceID()

	if id1 == id2 {
		t.Error("expected different IDs")
	}
	if len(id1) != 16 {
		t.Errorf("expected 16 hex characters, got %q", id1)
	}
}

func TestDeviceName(t *testing.T) {
	tests := []struct {
		platform string
		expected string
	}{
		{"mobile", "Mobile-abc"},
		{"Android", "Mobile-abc"},
		{"web", "Web-abc"},
		{"", "Web-abc"},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			if got := DeviceName(tt.platform, "abc"); got != tt.expected {
				t.Errorf("DeviceName(%q) = %q, want %q", tt.platform, got, tt.expected)
			}
		})
	}
}

func TestNormalizeSessionCode(t *testing.T) {
	if got := NormalizeSessionCode("  ab12cd "); got != "AB12CD" {
		t.Errorf("NormalizeSessionCode = %q, want AB12CD", got)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal string", "hello", "hello"},
		{"with control chars", "hello\x00world", "helloworld"},
		{"with whitespace", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeString(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNowHasMillisecondPrecision(t *testing.T) {
	now := Now()
	if now.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("expected millisecond precision, got %v", now)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{100 * time.Millisecond, "100ms"},
		{2 * time.Second, "2.00s"},
		{2*time.Minute + 30*time.Second, "2m30s"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.duration.String(), func(t *testing.T) {
			if result := FormatDuration(tt.duration); result != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}
