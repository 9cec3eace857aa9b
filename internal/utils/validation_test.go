package utils

import (
	"strings"
	"testing"
	"time"

	"taskdesk/backend"
)

func TestParseExpiryInputRelative(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  string
	}{
		{"today", "2026-03-10T00:00:00Z"},
		{"Tomorrow", "2026-03-11T00:00:00Z"},
		{"yesterday", "2026-03-09T00:00:00Z"},
		{"+7d", "2026-03-17T00:00:00Z"},
		{"-3d", "2026-03-07T00:00:00Z"},
		{"+2w", "2026-03-24T00:00:00Z"},
		{"+1m", "2026-04-10T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseExpiryInput(tt.input, now)
			if err != nil {
				t.Fatalf("ParseExpiryInput(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseExpiryInput(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseExpiryInputAbsolute(t *testing.T) {
	got, err := ParseExpiryInput("2026-01-15T09:30:00Z", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-01-15T09:30:00Z" {
		t.Errorf("got %s, want 2026-01-15T09:30:00Z", got)
	}

	got, err = ParseExpiryInput("  ", time.Now())
	if err != nil || got != "" {
		t.Errorf("blank input should clear expiry, got %q, %v", got, err)
	}

	if _, err := ParseExpiryInput("next tuesday", time.Now()); err == nil {
		t.Error("unrecognised input should fail")
	} else if _, ok := err.(*backend.ValidationError); !ok {
		t.Errorf("expected *backend.ValidationError, got %T", err)
	}
}

func TestParseTaskID(t *testing.T) {
	if id, err := ParseTaskID(" 42 "); err != nil || id != 42 {
		t.Errorf("ParseTaskID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "abc", "0", "-1"} {
		if _, err := ParseTaskID(bad); err == nil {
			t.Errorf("ParseTaskID(%q) should fail", bad)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("hello", 10); got != "hello" {
		t.Errorf("short strings should be unchanged, got %q", got)
	}
	got := TruncateString("hello world", 6)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 6 {
		t.Errorf("TruncateString() = %q, want 6 runes ending in ellipsis", got)
	}
}

func TestFormatExpiry(t *testing.T) {
	if FormatExpiry("") != "" {
		t.Error("empty expiry should render empty")
	}
	if FormatExpiry("garbage") != "garbage" {
		t.Error("unparseable expiry should be returned unchanged")
	}
	want := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC).Local().Format("2006-01-02 15:04")
	if got := FormatExpiry("2026-01-15T09:30:00Z"); got != want {
		t.Errorf("FormatExpiry() = %s, want %s", got, want)
	}
}
