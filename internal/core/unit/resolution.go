package unit

import (
	"fmt"
	"time"
)

// Resolution is a registered time granularity for bucketing and collection.
// Calendar resolutions (year, month, week) are bucketed on calendar
// boundaries in UTC; the rest are fixed durations.
type Resolution string

const (
	Year          Resolution = "year"
	Month         Resolution = "month"
	Week          Resolution = "week"
	Day           Resolution = "day"
	Hour          Resolution = "hour"
	HalfHour      Resolution = "half_hour"
	Minute        Resolution = "minute"
	FiveMinutes   Resolution = "five_minutes"
	TwentySeconds Resolution = "twenty_seconds"
	TenSeconds    Resolution = "ten_seconds"
	Second        Resolution = "second"
)

var resolutionDurations = map[Resolution]time.Duration{
	Year:          365 * 24 * time.Hour,
	Month:         30 * 24 * time.Hour,
	Week:          7 * 24 * time.Hour,
	Day:           24 * time.Hour,
	Hour:          time.Hour,
	HalfHour:      30 * time.Minute,
	Minute:        time.Minute,
	FiveMinutes:   5 * time.Minute,
	TwentySeconds: 20 * time.Second,
	TenSeconds:    10 * time.Second,
	Second:        time.Second,
}

// ParseResolution validates a wire-format resolution name.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if _, ok := resolutionDurations[r]; !ok {
		return "", fmt.Errorf("unknown time resolution %q", s)
	}
	return r, nil
}

func (r Resolution) String() string { return string(r) }

// Duration returns the nominal length of one bucket. Year and month are
// nominal (365d/30d); use BucketFor/Next for exact calendar stepping.
func (r Resolution) Duration() time.Duration {
	return resolutionDurations[r]
}

// BucketFor truncates t to the start of its bucket at resolution r, in UTC.
// This is the atomic unit of series bucketing and long-term storage.
func BucketFor(t time.Time, r Resolution) time.Time {
	t = t.UTC()
	switch r {
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Week:
		// ISO-style weeks starting Monday.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(r.Duration())
	}
}

// Next returns the start of the bucket following bucketStart.
// bucketStart must itself be a bucket boundary.
func Next(bucketStart time.Time, r Resolution) time.Time {
	switch r {
	case Year:
		return bucketStart.AddDate(1, 0, 0)
	case Month:
		return bucketStart.AddDate(0, 1, 0)
	case Week:
		return bucketStart.AddDate(0, 0, 7)
	case Day:
		return bucketStart.AddDate(0, 0, 1)
	default:
		return bucketStart.Add(r.Duration())
	}
}
