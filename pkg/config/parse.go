package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cuemby/crmcore/pkg/types"
)

// IsTrue reports whether a value spells a true boolean
func IsTrue(s string) bool {
	v, ok := ParseBool(s)
	return ok && v
}

// ParseBool parses true/on/yes/y/1 and false/off/no/n/0, ignoring case
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "y", "1":
		return true, true
	case "false", "off", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseInterval parses a duration such as "10s", "500ms", "2min" or "1h".
// A bare number is taken as seconds.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	end := 0
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}

	var unit time.Duration
	switch strings.ToLower(strings.TrimSpace(s[end:])) {
	case "", "s", "sec":
		unit = time.Second
	case "ms", "msec":
		unit = time.Millisecond
	case "us", "usec":
		unit = time.Microsecond
	case "m", "min":
		unit = time.Minute
	case "h", "hr":
		unit = time.Hour
	default:
		return 0, fmt.Errorf("invalid interval %q: unknown unit", s)
	}
	return time.Duration(n) * unit, nil
}

// ParseScore parses an integer score or one of the infinities
func ParseScore(s string) (int, error) {
	switch strings.TrimSpace(s) {
	case "":
		return 0, nil
	case "-INFINITY", "-infinity":
		return types.MinusInfinity, nil
	case "INFINITY", "+INFINITY", "infinity", "+infinity":
		return types.Infinity, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", s, err)
	}
	switch {
	case n > types.Infinity:
		return types.Infinity, nil
	case n < types.MinusInfinity:
		return types.MinusInfinity, nil
	}
	return n, nil
}

// Score resolves a score that may also name a node health colour. Invalid
// scores count as 0.
func Score(s string, opts *types.ClusterOptions) int {
	if opts != nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "red":
			return opts.NodeHealthRed
		case "yellow":
			return opts.NodeHealthYellow
		case "green":
			return opts.NodeHealthGreen
		}
	}
	n, err := ParseScore(s)
	if err != nil {
		return 0
	}
	return n
}
