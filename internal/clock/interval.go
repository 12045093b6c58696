package clock

import "fmt"

// Interval is a half-open [Start, End) range in minutes from local midnight.
// End may exceed MinutesPerDay when a service runs past midnight.
type Interval struct {
	Start int
	End   int
}

// NewInterval builds the interval a service of the given duration occupies.
func NewInterval(start TimeOfDay, durationMinutes int) Interval {
	return Interval{Start: start.Minutes(), End: start.Minutes() + durationMinutes}
}

// Between builds an interval from two wall-clock times on the same day.
func Between(start, end TimeOfDay) Interval {
	return Interval{Start: start.Minutes(), End: end.Minutes()}
}

// Overlaps reports whether two half-open intervals intersect. Touching ends do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// Extend pushes the end of the interval out by the given minutes.
func (i Interval) Extend(minutes int) Interval {
	return Interval{Start: i.Start, End: i.End + minutes}
}

// Duration returns the length of the interval in minutes.
func (i Interval) Duration() int {
	return i.End - i.Start
}

// Empty reports whether the interval has no length.
func (i Interval) Empty() bool {
	return i.End <= i.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("%s-%s", FromMinutes(i.Start), FromMinutes(i.End))
}
