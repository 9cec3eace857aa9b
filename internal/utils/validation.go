package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"taskdesk/backend"
)

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m"
// relative to now. Returns nil when the string is not a relative date.
func parseRelativeDate(dateStr string, now time.Time) *time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	lower := strings.ToLower(strings.TrimSpace(dateStr))

	switch lower {
	case "today":
		return &today
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}
	return &result
}

// ParseExpiryInput turns user input into the ISO expiry string sent to the API.
// Relative dates are resolved against now; anything else goes through backend.ParseExpiry.
// Empty input returns "" (no expiry).
func ParseExpiryInput(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	if t := parseRelativeDate(input, now); t != nil {
		return backend.FormatISO(*t), nil
	}
	return backend.NormalizeExpiry(input)
}

// ParseTaskID parses a positive task id argument.
func ParseTaskID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id <= 0 {
		return 0, ErrInvalidTaskID(arg)
	}
	return id, nil
}

// FormatExpiry renders an ISO expiry in local time for display. Unparseable values are returned as-is.
func FormatExpiry(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := backend.ParseExpiry(iso)
	if err != nil {
		return iso
	}
	return t.Local().Format("2006-01-02 15:04")
}

// TruncateString shortens s to max runes, ending with "…" when cut.
func TruncateString(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return fmt.Sprintf("%s…", string(r[:max-1]))
}
