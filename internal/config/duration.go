package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a human-entered duration such as "90s" or "2m30s".
// An empty or whitespace-only value parses to zero so callers can tell "unset"
// from a real zero and substitute a default. The path names the config field in
// the error.
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s: cannot parse %q as a duration: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative durations are not allowed", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback: unset and zero
// both get def, since no field in this config meaningfully uses a zero delay.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
