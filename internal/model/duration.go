package model

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	secondsPerMinute int64 = 60
	secondsPerHour   int64 = 60 * secondsPerMinute
	secondsPerDay    int64 = 24 * secondsPerHour
)

// ParseDuration converts a Jira style duration string ("2h 30m") into
// seconds. Supported suffixes are d (days), h (hours), m (minutes), and
// s (seconds); tokens may be combined in any order separated by spaces.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration cannot be empty")
	}

	var total int64
	var token strings.Builder

	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			token.WriteRune(r)
		case unicode.IsSpace(r):
			if token.Len() > 0 {
				return 0, fmt.Errorf("suffix missing for duration segment %q", token.String())
			}
		default:
			if token.Len() == 0 {
				return 0, fmt.Errorf("missing value before suffix %q", string(r))
			}
			var value int64
			if _, err := fmt.Sscan(token.String(), &value); err != nil {
				return 0, fmt.Errorf("parsing duration segment %q: %w", token.String(), err)
			}
			token.Reset()

			switch r {
			case 'd':
				total += value * secondsPerDay
			case 'h':
				total += value * secondsPerHour
			case 'm':
				total += value * secondsPerMinute
			case 's':
				total += value
			default:
				return 0, fmt.Errorf("unknown suffix %q in duration", string(r))
			}
		}
	}

	if token.Len() > 0 {
		return 0, fmt.Errorf("duration segment %q missing suffix", token.String())
	}

	return total, nil
}

// FormatDuration renders seconds using Jira's duration representation,
// e.g. 9060 -> "2h 31m" and 151 -> "2m 31s".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}

	var parts []string
	remaining := seconds

	if remaining >= secondsPerDay {
		parts = append(parts, fmt.Sprintf("%dd", remaining/secondsPerDay))
		remaining %= secondsPerDay
	}
	if remaining >= secondsPerHour {
		parts = append(parts, fmt.Sprintf("%dh", remaining/secondsPerHour))
		remaining %= secondsPerHour
	}
	if remaining >= secondsPerMinute {
		parts = append(parts, fmt.Sprintf("%dm", remaining/secondsPerMinute))
		remaining %= secondsPerMinute
	}
	if len(parts) == 0 || remaining > 0 {
		parts = append(parts, fmt.Sprintf("%ds", remaining))
	}

	return strings.Join(parts, " ")
}

// FormatClock renders seconds as hh:mm:ss for the running timer display.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / secondsPerHour
	m := (seconds % secondsPerHour) / secondsPerMinute
	s := seconds % secondsPerMinute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
