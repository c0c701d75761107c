package repository

import "time"

// IsValidInterval returns true if iv is a supported bar interval.
func IsValidInterval(iv string) bool {
	switch iv {
	case "1m", "5m", "15m", "1h", "4h", "1d":
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default bar interval.
func DefaultInterval() string { return "5m" }

// NormalizeInterval converts a raw string to a valid interval (or default).
func NormalizeInterval(s string) string {
	if IsValidInterval(s) {
		return s
	}
	return DefaultInterval()
}

// IntervalDuration returns the wall-clock length of one bar.
func IntervalDuration(iv string) time.Duration {
	switch iv {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
