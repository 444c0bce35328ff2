// Package timeutil provides clock-string helpers for the "HH:MM" and
// "YYYY-MM-DD" formats used throughout the schedule store. Both formats
// compare correctly as plain strings.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	TimeLayout = "15:04"
	DateLayout = "2006-01-02"
)

var timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

// FormatTime renders t as "HH:MM".
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatDate renders t as "YYYY-MM-DD".
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// HourPrefix returns the "HH" hour component of t.
func HourPrefix(t time.Time) string {
	return fmt.Sprintf("%02d", t.Hour())
}

// HourStart returns the "HH:00" start of the hour containing t.
func HourStart(t time.Time) string {
	return fmt.Sprintf("%02d:00", t.Hour())
}

// ValidTime reports whether s is a well-formed "HH:MM" clock string.
func ValidTime(s string) bool {
	if !timePattern.MatchString(s) {
		return false
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h < 24 && m < 60
}

// SplitTime parses "HH:MM" into its components. ValidTime must hold.
func SplitTime(s string) (hour, minute int) {
	hour, _ = strconv.Atoi(s[:2])
	minute, _ = strconv.Atoi(s[3:])
	return hour, minute
}

// AddHours adds whole hours to a clock string, saturating at "23:59"
// rather than wrapping past midnight.
func AddHours(hhmm string, hours int) string {
	h, m := SplitTime(hhmm)
	total := (h+hours)*60 + m
	if total > 23*60+59 {
		return "23:59"
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// MaxTime returns the later of two clock strings.
func MaxTime(a, b string) string {
	if a > b {
		return a
	}
	return b
}

// AddDays offsets a calendar date by days (negative allowed).
func AddDays(date string, days int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return t.AddDate(0, 0, days).Format(DateLayout), nil
}

// DaysBetweenInclusive counts the calendar days from start through end,
// both included. Returns 0 when either date is malformed.
func DaysBetweenInclusive(start, end string) int {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// DelayUntil computes the duration from now until hhmm on now's calendar
// day. Negative when the time has already passed.
func DelayUntil(now time.Time, hhmm string) time.Duration {
	h, m := SplitTime(hhmm)
	target := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	return target.Sub(now)
}
