package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for slot dates.
const DateLayout = time.DateOnly

// ErrInvalidDate is returned when a calendar date cannot be parsed.
var ErrInvalidDate = errors.New("clock: invalid date")

// ErrUnknownWeekday is returned for weekday names outside monday..sunday.
var ErrUnknownWeekday = errors.New("clock: unknown weekday")

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Location returns the *time.Location for an IANA name, falling back to UTC.
func Location(tz string) *time.Location {
	if strings.TrimSpace(tz) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidLocation reports whether tz names a loadable timezone. Empty means UTC.
func ValidLocation(tz string) bool {
	if strings.TrimSpace(tz) == "" {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ParseDate reads a "YYYY-MM-DD" calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Combine converts a stylist-local date and wall-clock time into an absolute instant.
func Combine(date time.Time, t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// Split converts an absolute instant into the local calendar date and wall-clock time.
func Split(instant time.Time, loc *time.Location) (string, TimeOfDay) {
	if loc == nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	return local.Format(DateLayout), TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}
}

// ParseWeekday maps a case-insensitive weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
	}
	return wd, nil
}

// WeekdayName returns the lowercase key used in schedules ("monday").
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// SameLocalDate reports whether two instants fall on the same calendar date in loc.
func SameLocalDate(a, b time.Time, loc *time.Location) bool {
	return LocalDate(a, loc) == LocalDate(b, loc)
}

// LocalDate returns the "YYYY-MM-DD" date of an instant in loc.
func LocalDate(instant time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return instant.In(loc).Format(DateLayout)
}
