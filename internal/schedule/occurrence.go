package schedule

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts only zero-padded 24-hour "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' || !isDigits(s[0:2]) || !isDigits(s[3:5]) {
		return ClockTime{}, fmt.Errorf("time %q is not in HH:MM form", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return ClockTime{}, fmt.Errorf("time %q is out of range", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) Before(o ClockTime) bool {
	return c.Minutes() < o.Minutes()
}

// Date is a civil calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q is not in YYYY-MM-DD form", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Weekday uses the 0 = Sunday ... 6 = Saturday numbering of Medication.Days.
func (d Date) Weekday() time.Weekday {
	return d.midnight(time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight(time.UTC).AddDate(0, 0, n))
}

// At combines the date with a clock time in loc.
func (d Date) At(c ClockTime, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// OccurrenceKey identifies one dose of one medication: "<YYYY-MM-DD>T<HH:MM>".
type OccurrenceKey struct {
	Date Date
	Time ClockTime
}

func NewOccurrenceKey(d Date, c ClockTime) OccurrenceKey {
	return OccurrenceKey{Date: d, Time: c}
}

func ParseOccurrenceKey(s string) (OccurrenceKey, error) {
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return OccurrenceKey{}, fmt.Errorf("occurrence key %q has no 'T' separator", s)
	}
	d, err := ParseDate(datePart)
	if err != nil {
		return OccurrenceKey{}, fmt.Errorf("occurrence key %q: %w", s, err)
	}
	c, err := ParseClockTime(timePart)
	if err != nil {
		return OccurrenceKey{}, fmt.Errorf("occurrence key %q: %w", s, err)
	}
	return OccurrenceKey{Date: d, Time: c}, nil
}

func (k OccurrenceKey) String() string {
	return k.Date.String() + "T" + k.Time.String()
}

// Clock is injected wherever "now" matters.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// FixedClock always reports the same instant.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
