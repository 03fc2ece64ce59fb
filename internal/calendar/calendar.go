package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTime = errors.New("time must be HH:MM in 24-hour format")
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
)

// TimeOfDay is a wall-clock time in minutes since midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTime
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTimeOfDay parses raw and panics on malformed input. Used for constants and tests.
func MustTimeOfDay(raw string) TimeOfDay {
	t, err := NormalizeTime(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns t shifted by d, truncated to whole minutes. The result is not
// range checked.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// Sub returns the duration between t and u.
func (t TimeOfDay) Sub(u TimeOfDay) time.Duration {
	return time.Duration(t-u) * time.Minute
}

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

// NormalizeTime parses HH:MM or HH:MM:SS. Seconds are accepted and dropped.
// Single digit fields, offsets and 12-hour forms are rejected.
func NormalizeTime(raw string) (TimeOfDay, error) {
	switch len(raw) {
	case 5:
	case 8:
		if raw[5] != ':' {
			return 0, ErrInvalidTime
		}
		sec, ok := twoDigits(raw[6:8])
		if !ok || sec > 59 {
			return 0, ErrInvalidTime
		}
	default:
		return 0, ErrInvalidTime
	}
	if raw[2] != ':' {
		return 0, ErrInvalidTime
	}
	hour, ok := twoDigits(raw[0:2])
	if !ok {
		return 0, ErrInvalidTime
	}
	minute, ok := twoDigits(raw[3:5])
	if !ok {
		return 0, ErrInvalidTime
	}
	return NewTimeOfDay(hour, minute)
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 {
		return 0, false
	}
	d0, d1 := s[0], s[1]
	if d0 < '0' || d0 > '9' || d1 < '0' || d1 > '9' {
		return 0, false
	}
	return int(d0-'0')*10 + int(d1-'0'), true
}

// Date is a civil calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// NormalizeDate parses a strict YYYY-MM-DD string naming a real date.
func NormalizeDate(raw string) (Date, error) {
	if len(raw) != len(dateLayout) || raw[4] != '-' || raw[7] != '-' {
		return Date{}, ErrInvalidDate
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

// DateOf returns the date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns the instant at clock time t on d in loc.
func (d Date) In(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }

func (d Date) After(o Date) bool { return d.Time().After(o.Time()) }

// DaysUntil returns the number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}
