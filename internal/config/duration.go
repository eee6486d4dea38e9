package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses the restricted duration grammar used throughout this
// configuration format: "<n>m" for n minutes or "<n>h" for n hours, where n
// is a non-negative integer. Any other form (including the stdlib's own
// "1h30m" composite syntax) is rejected, since program durations in this
// system are always a single round unit.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration %q: empty", s)
	}

	unit := s[len(s)-1:]
	numPart := s[:len(s)-1]

	n, err := strconv.Atoi(numPart)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("duration %q: expected <n>m or <n>h", s)
	}

	switch unit {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("duration %q: expected <n>m or <n>h", s)
	}
}
