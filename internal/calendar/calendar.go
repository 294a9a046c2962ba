package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateFormat is the wire format for dates: date-only, no timezone offset.
const DateFormat = "2006-01-02"

// Date is a calendar day with no time-of-day component. Tasks are keyed by
// the day they belong to, so all comparisons ignore clock time.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date for the given year, month and day.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// Today returns the current date in the host's local calendar.
func Today() Date {
	return New(time.Now().Date())
}

// FromTime truncates t to its calendar day in t's own location.
func FromTime(t time.Time) Date {
	return New(t.Date())
}

// time returns the canonical representation of the day: midnight UTC.
func (d Date) time() time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC)
}

// Time returns the day at midnight UTC.
func (d Date) Time() time.Time { return d.time() }

func (d Date) Year() int         { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int          { return d.d }

// Weekday returns the day of the week (Sunday = 0).
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date { return New(d.y, d.m, d.d+n) }

// After reports whether d falls after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// Before reports whether d falls before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

func (d Date) Equal(x Date) bool { return d == x }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.time().Format(DateFormat) }

// Parse reads a YYYY-MM-DD date string.
func Parse(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, want %s: %w", s, DateFormat, err)
	}
	return New(t.Date()), nil
}

// MustParse is Parse that panics on error. For tests and fixed fixtures.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var _ json.Marshaler = Date{}
var _ json.Unmarshaler = (*Date)(nil)
