package cmi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

func GetTimeformat(f string) string {
	if m, ok := timeformats[strings.ToUpper(f)]; ok {
		return m
	}
	return f
}

var timeformats = map[string]string{
	"":            "2006-01-02 15:04:05.999999999",
	"-":           "2006-01-02 15:04:05.999999999",
	"DEFAULT":     "2006-01-02 15:04:05.999999999",
	"NUMERIC":     "01/02 03:04:05PM '06 -0700",
	"ANSIC":       "Mon Jan _2 15:04:05 2006",
	"UNIX":        "Mon Jan _2 15:04:05 MST 2006",
	"RUBY":        "Mon Jan 02 15:04:05 -0700 2006",
	"RFC822":      "02 Jan 06 15:04 MST",
	"RFC822Z":     "02 Jan 06 15:04 -0700",
	"RFC850":      "Monday, 02-Jan-06 15:04:05 MST",
	"RFC1123":     "Mon, 02 Jan 2006 15:04:05 MST",
	"RFC1123Z":    "Mon, 02 Jan 2006 15:04:05 -0700",
	"RFC3339":     "2006-01-02T15:04:05Z07:00",
	"RFC3339NANO": "2006-01-02T15:04:05.999999999Z07:00",
	"KITCHEN":     "3:04:05PM",
	"STAMP":       "Jan _2 15:04:05",
	"STAMPMILLI":  "Jan _2 15:04:05.000",
	"STAMPMICRO":  "Jan _2 15:04:05.000000",
	"STAMPNANO":   "Jan _2 15:04:05.000000000",
}

// EpochUnit returns the nanosecond multiplier of an epoch time format.
func EpochUnit(format string) (int64, bool) {
	switch strings.ToLower(format) {
	case "s":
		return int64(time.Second), true
	case "ms":
		return int64(time.Millisecond), true
	case "us":
		return int64(time.Microsecond), true
	case "ns":
		return 1, true
	default:
		return 0, false
	}
}

// ParseDateTime parses value with format into epoch nanoseconds.
// Layouts without a zone are read in loc.
func ParseDateTime(value string, format string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if unit, ok := EpochUnit(format); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return EpochNanos(n, unit)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid epoch %q", value)
		}
		return EpochFloatNanos(f, unit)
	}
	t, err := time.ParseInLocation(GetTimeformat(format), value, loc)
	if err != nil {
		return 0, err
	}
	return unixNano(t)
}

// EpochNanos is n epoch units in nanoseconds.
func EpochNanos(n int64, unit int64) (int64, error) {
	if unit > 1 && (n > math.MaxInt64/unit || n < math.MinInt64/unit) {
		return 0, fmt.Errorf("epoch %d*%d out of range", n, unit)
	}
	return n * unit, nil
}

func EpochFloatNanos(f float64, unit int64) (int64, error) {
	ns := f * float64(unit)
	// float64(math.MaxInt64) rounds up to 2^63
	if math.IsNaN(ns) || ns >= float64(math.MaxInt64) || ns < float64(math.MinInt64) {
		return 0, fmt.Errorf("epoch %v*%d out of range", f, unit)
	}
	return int64(ns), nil
}

var (
	minDateTime = time.Unix(0, math.MinInt64)
	maxDateTime = time.Unix(0, math.MaxInt64)
)

// unixNano is t.UnixNano for the range an int64 of nanoseconds can hold.
func unixNano(t time.Time) (int64, error) {
	if t.Before(minDateTime) || t.After(maxDateTime) {
		return 0, fmt.Errorf("datetime %s out of range", t.UTC().Format(time.RFC3339))
	}
	return t.UnixNano(), nil
}

// Nanos converts the calendar fields in loc, rejecting out of range fields
// instead of normalizing them.
func (ds DateTimeStruct) Nanos(loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch {
	case ds.Year < 1 || ds.Year > 9999:
		return 0, fmt.Errorf("year %d out of range", ds.Year)
	case ds.Month < 1 || ds.Month > 12:
		return 0, fmt.Errorf("month %d out of range", ds.Month)
	case ds.Hour < 0 || ds.Hour > 23:
		return 0, fmt.Errorf("hour %d out of range", ds.Hour)
	case ds.Minute < 0 || ds.Minute > 59:
		return 0, fmt.Errorf("minute %d out of range", ds.Minute)
	case ds.Second < 0 || ds.Second > 59:
		return 0, fmt.Errorf("second %d out of range", ds.Second)
	case ds.Nanosecond < 0 || ds.Nanosecond > 999999999:
		return 0, fmt.Errorf("nanosecond %d out of range", ds.Nanosecond)
	}
	lastDay := time.Date(ds.Year, time.Month(ds.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if ds.Day < 1 || ds.Day > lastDay {
		return 0, fmt.Errorf("day %d out of range", ds.Day)
	}
	t := time.Date(ds.Year, time.Month(ds.Month), ds.Day, ds.Hour, ds.Minute, ds.Second, ds.Nanosecond, loc)
	return unixNano(t)
}
