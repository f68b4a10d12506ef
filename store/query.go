package store

import (
	"fmt"
	"strconv"
	"time"
)

// unitDays maps an age suffix to its length in days. Months and years
// are fixed at 30 and 365 days.
var unitDays = map[byte]int64{
	'd': 1,
	'w': 7,
	'm': 30,
	'y': 365,
}

// maxAgeDays caps parsed ages so the result always fits a time.Duration.
const maxAgeDays = 100 * 365

// ParseDuration parses an age like "7d", "2w", "3m" or "1y". Ages longer
// than a century are clamped to one.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid age %q: want <count><d|w|m|y>", s)
	}

	days, ok := unitDays[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid age %q: unit must be d, w, m or y", s)
	}

	n, err := strconv.ParseUint(s[:len(s)-1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: count must be a non-negative integer", s)
	}

	total := int64(n) * days
	if total > maxAgeDays {
		total = maxAgeDays
	}
	return time.Duration(total) * 24 * time.Hour, nil
}

// SinceToUnixMilli converts a "since" duration string (e.g., "7d") to a
// timestamp in Unix milliseconds, <duration> before now.
func SinceToUnixMilli(since string, now time.Time) (int64, error) {
	duration, err := ParseDuration(since)
	if err != nil {
		return 0, err
	}

	return now.Add(-duration).UnixMilli(), nil
}

// QueryOptions specifies how to query articles.
type QueryOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
	FeedUUID   string
	SinceTime  *int64 // Unix milliseconds
}

// BuildQueryOptions constructs QueryOptions from CLI flags.
func BuildQueryOptions(limit, offset int, unread bool, since, feedUUID string) (QueryOptions, error) {
	opts := QueryOptions{
		Limit:      limit,
		Offset:     offset,
		UnreadOnly: unread,
		FeedUUID:   feedUUID,
	}

	if limit < 0 || offset < 0 {
		return opts, fmt.Errorf("limit and offset must not be negative")
	}

	if since != "" {
		sinceMilli, err := SinceToUnixMilli(since, time.Now())
		if err != nil {
			return opts, fmt.Errorf("failed to parse --since flag: %w", err)
		}
		opts.SinceTime = &sinceMilli
	}

	return opts, nil
}
