// Package billingdate computes contract billing dates. All results are midnight UTC.
package billingdate

import (
	"errors"
	"strings"
	"time"
)

// Interval is the calendar unit of a billing policy.
type Interval string

const (
	IntervalDay   Interval = "DAY"
	IntervalWeek  Interval = "WEEK"
	IntervalMonth Interval = "MONTH"
	IntervalYear  Interval = "YEAR"
)

var (
	ErrInvalidInterval      = errors.New("invalid_interval")
	ErrInvalidIntervalCount = errors.New("invalid_interval_count")
)

// ParseInterval accepts the remote's unit names case-insensitively.
func ParseInterval(raw string) (Interval, error) {
	interval := Interval(strings.ToUpper(strings.TrimSpace(raw)))
	if !interval.Valid() {
		return "", ErrInvalidInterval
	}
	return interval, nil
}

func (i Interval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

// Today returns midnight UTC of now.
func Today(now time.Time) time.Time {
	return truncate(now)
}

// Next adds count units of interval to from. Month and year steps clamp to the last day of
// the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func Next(interval Interval, count int, from time.Time) (time.Time, error) {
	if count < 1 {
		return time.Time{}, ErrInvalidIntervalCount
	}
	start := truncate(from)

	switch interval {
	case IntervalDay:
		return start.AddDate(0, 0, count), nil
	case IntervalWeek:
		return start.AddDate(0, 0, 7*count), nil
	case IntervalMonth:
		return addMonths(start, count), nil
	case IntervalYear:
		return addMonths(start, 12*count), nil
	default:
		return time.Time{}, ErrInvalidInterval
	}
}

// Retry returns the short backoff date used after a failed charge.
func Retry(from time.Time, offsetDays int) time.Time {
	return truncate(from).AddDate(0, 0, offsetDays)
}

func addMonths(start time.Time, months int) time.Time {
	year, month, day := start.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(target); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncate(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
