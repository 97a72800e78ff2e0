package result

import (
	"math"
	"strconv"
	"time"
)

// TimestampLayout is the pinned rendering used for exported timestamps.
const TimestampLayout = "2006-01-02T15:04:05Z07:00"

// TimestampFormatter renders epoch seconds as text.
type TimestampFormatter func(epochSeconds float64) string

// FormatMillis renders a latency in seconds as milliseconds with two decimals.
func FormatMillis(seconds float64) string {
	return FormatFixed(seconds * 1000)
}

// FormatFixed renders v with exactly two fractional digits.
func FormatFixed(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

// FormatTimestamp renders epoch seconds as RFC 3339 in UTC, truncated to the second.
// It is stable across hosts and locales, and is the only form used in exports.
func FormatTimestamp(epochSeconds float64) string {
	return toTime(epochSeconds).UTC().Format(TimestampLayout)
}

// LocalTimestamp renders epoch seconds in the host's local zone. Display only.
func LocalTimestamp(epochSeconds float64) string {
	return toTime(epochSeconds).Local().Format("2006-01-02 15:04:05")
}

func toTime(epochSeconds float64) time.Time {
	sec, frac := math.Modf(epochSeconds)
	return time.Unix(int64(sec), int64(frac*1e9)).Truncate(time.Second)
}
