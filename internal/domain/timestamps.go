package domain

import (
	"strconv"
	"strings"
	"time"
)

// maxEpochSeconds is the largest value with at most 10 digits. Anything at or
// below it is treated as an epoch in seconds.
const maxEpochSeconds = 9_999_999_999

// NormalizeEpochMillis converts an epoch of ambiguous unit to milliseconds:
// values with at most 10 digits are seconds and are multiplied by 1000,
// larger values are returned unchanged. Non-positive values are returned as-is.
func NormalizeEpochMillis(ts int64) int64 {
	if ts > 0 && ts <= maxEpochSeconds {
		return ts * 1000
	}
	return ts
}

// ParseEpochMillis parses a decimal epoch string (the gateway reports seconds)
// and normalizes it to milliseconds.
func ParseEpochMillis(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return NormalizeEpochMillis(v), nil
}

// EpochMillis returns t as a millisecond epoch.
func EpochMillis(t time.Time) int64 { return t.UnixMilli() }
