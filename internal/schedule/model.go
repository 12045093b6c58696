// Package schedule owns a stylist's recurring availability: per-weekday work
// hours, named breaks and buffer policy. All times are stylist-local wall clock.
package schedule

import (
	"slices"
	"strings"
	"time"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/clock"
)

// WorkDay describes the bookable window for one weekday.
type WorkDay struct {
	IsEnabled bool            `json:"isEnabled"`
	Start     clock.TimeOfDay `json:"start"`
	End       clock.TimeOfDay `json:"end"`
}

// Break is a recurring unavailable interval tagged with the weekdays it applies to.
type Break struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Start clock.TimeOfDay `json:"start"`
	End   clock.TimeOfDay `json:"end"`
	Days  []string        `json:"days"`
}

// Buffer is padding in minutes around booked intervals.
type Buffer struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// Schedule is the single availability record kept per stylist.
type Schedule struct {
	StylistID  string             `json:"stylistId"`
	Name       string             `json:"name"`
	Email      string             `json:"email,omitempty"`
	Phone      string             `json:"phone,omitempty"`
	Timezone   string             `json:"timezone"`
	WorkHours  map[string]WorkDay `json:"workHours"`
	Breaks     []Break            `json:"breaks"`
	BufferTime Buffer             `json:"bufferTime"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Default returns the schedule a stylist starts with at onboarding:
// weekdays 09:00-17:00, weekends off, no breaks, no buffer.
func Default(stylistID string) *Schedule {
	hours := make(map[string]WorkDay, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		day := WorkDay{Start: clock.At(9, 0), End: clock.At(17, 0)}
		day.IsEnabled = wd != time.Saturday && wd != time.Sunday
		hours[clock.WeekdayName(wd)] = day
	}
	return &Schedule{
		StylistID: stylistID,
		Timezone:  "UTC",
		WorkHours: hours,
		Breaks:    []Break{},
	}
}

// Day returns the work hours for wd. A missing entry is reported as disabled.
func (s *Schedule) Day(wd time.Weekday) WorkDay {
	if s == nil {
		return WorkDay{}
	}
	day, ok := s.WorkHours[clock.WeekdayName(wd)]
	if !ok {
		return WorkDay{}
	}
	return day
}

// BreaksOn returns the breaks tagged with wd.
func (s *Schedule) BreaksOn(wd time.Weekday) []Break {
	if s == nil {
		return nil
	}
	name := clock.WeekdayName(wd)
	var out []Break
	for _, b := range s.Breaks {
		if slices.ContainsFunc(b.Days, func(d string) bool { return strings.EqualFold(d, name) }) {
			out = append(out, b)
		}
	}
	return out
}

// HasBuffer reports whether any buffer policy is configured.
func (s *Schedule) HasBuffer() bool {
	return s != nil && (s.BufferTime.Before > 0 || s.BufferTime.After > 0)
}

// Location resolves the stylist's timezone, falling back to UTC.
func (s *Schedule) Location() *time.Location {
	if s == nil {
		return time.UTC
	}
	return clock.Location(s.Timezone)
}

// Validate rejects malformed schedules before they are persisted.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.StylistID) == "" {
		return apperr.Invalid("stylistId", "required")
	}
	if !clock.ValidLocation(s.Timezone) {
		return apperr.Invalid("timezone", "unknown timezone %q", s.Timezone)
	}
	for key, day := range s.WorkHours {
		if _, err := clock.ParseWeekday(key); err != nil {
			return apperr.Invalid("workHours", "unknown weekday %q", key)
		}
		if !day.Start.Valid() || !day.End.Valid() {
			return apperr.Invalid("workHours."+key, "hour or minute out of range")
		}
		if day.IsEnabled && !day.Start.Before(day.End) {
			return apperr.Invalid("workHours."+key, "start must be before end")
		}
	}
	for i, b := range s.Breaks {
		if !b.Start.Valid() || !b.End.Valid() || !b.Start.Before(b.End) {
			return apperr.Invalid("breaks", "break %d (%s) must start before it ends", i, b.Name)
		}
		if len(b.Days) == 0 {
			return apperr.Invalid("breaks", "break %d (%s) has no days", i, b.Name)
		}
		for _, d := range b.Days {
			if _, err := clock.ParseWeekday(d); err != nil {
				return apperr.Invalid("breaks", "unknown weekday %q", d)
			}
		}
	}
	if s.BufferTime.Before < 0 || s.BufferTime.After < 0 {
		return apperr.Invalid("bufferTime", "must not be negative")
	}
	return nil
}

// Normalize lowercases weekday keys so lookups by WeekdayName succeed.
func (s *Schedule) Normalize() {
	if s.WorkHours != nil {
		hours := make(map[string]WorkDay, len(s.WorkHours))
		for k, v := range s.WorkHours {
			hours[strings.ToLower(strings.TrimSpace(k))] = v
		}
		s.WorkHours = hours
	}
	for i := range s.Breaks {
		for j, d := range s.Breaks[i].Days {
			s.Breaks[i].Days[j] = strings.ToLower(strings.TrimSpace(d))
		}
	}
	if s.Breaks == nil {
		s.Breaks = []Break{}
	}
	if strings.TrimSpace(s.Timezone) == "" {
		s.Timezone = "UTC"
	}
}
