package iotd

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidTimestamp is returned when a stage-entry timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid stage entry timestamp")
	// ErrInvalidWindow is returned for negative window lengths.
	ErrInvalidWindow = errors.New("window length must not be negative")
)

// ParseEntryTimestamp parses a stage-entry timestamp as UTC.
//
// The backend stores these without a zone designator; they are UTC, so a
// missing designator is treated as "Z" and never as local time.
func ParseEntryTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	value = strings.Replace(value, " ", "T", 1)
	if !hasZone(value) {
		value += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	return t.UTC(), nil
}

// ComputeExpiration returns entryTimestamp plus windowLengthDays days, in UTC.
func ComputeExpiration(entryTimestamp string, windowLengthDays int) (time.Time, error) {
	if windowLengthDays < 0 {
		return time.Time{}, ErrInvalidWindow
	}
	entered, err := ParseEntryTimestamp(entryTimestamp)
	if err != nil {
		return time.Time{}, err
	}
	return entered.AddDate(0, 0, windowLengthDays), nil
}

// FormatEntryTimestamp renders t the way the backend stores entry timestamps.
func FormatEntryTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999")
}

// hasZone looks for a designator after the time part: Z, +hh:mm or -hh:mm.
func hasZone(value string) bool {
	idx := strings.IndexByte(value, 'T')
	if idx < 0 {
		return false
	}
	clock := value[idx+1:]
	if strings.HasSuffix(clock, "Z") || strings.HasSuffix(clock, "z") {
		return true
	}
	return strings.ContainsAny(clock, "+-")
}
