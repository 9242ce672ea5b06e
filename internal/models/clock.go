package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// clockPattern accepts H:MM or HH:MM on a 24-hour clock.
var clockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" (seconds are accepted and dropped when given as "HH:MM:SS").
func ParseClock(s string) (Clock, error) {
	if len(s) == 8 && s[5] == ':' {
		s = s[:5]
	}
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return Clock(h*60 + mins), nil
}

// ValidClock reports whether s is a well-formed HH:MM time.
func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Duration returns the offset from midnight.
func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// Microseconds returns the offset from midnight in microseconds (the unit of PostgreSQL TIME).
func (c Clock) Microseconds() int64 {
	return int64(c) * int64(time.Minute/time.Microsecond)
}

// ClockFromMicroseconds converts a PostgreSQL TIME value back to a Clock.
func ClockFromMicroseconds(us int64) Clock {
	return Clock(us / int64(time.Minute/time.Microsecond))
}

// PgTime converts the clock to a PostgreSQL TIME value.
func (c Clock) PgTime() pgtype.Time {
	return pgtype.Time{Microseconds: c.Microseconds(), Valid: true}
}

// ClockFromPgTime converts a scanned PostgreSQL TIME value to a Clock.
func ClockFromPgTime(t pgtype.Time) Clock {
	return ClockFromMicroseconds(t.Microseconds)
}

// MarshalJSON encodes the clock as "HH:MM".
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes "HH:MM".
func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Date is a calendar date without time of day, held at UTC midnight.
type Date struct {
	time.Time
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

// NewDate truncates t to its calendar date.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// At combines the date with a wall-clock time (UTC).
func (d Date) At(c Clock) time.Time {
	return d.Time.Add(c.Duration())
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
