package realtime

import (
	"sort"
	"time"

	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/internal/clock"
)

// Entry is one appointment as a particular viewer sees it: times in the
// viewer's zone, the viewer's side and the rendered status.
type Entry struct {
	appointments.Appointment
	ViewerRole    appointments.Role `json:"viewerRole"`
	DisplayStatus string            `json:"displayStatus"`
	LocalDate     string            `json:"localDate"`
}

// Merge combines the client-side and stylist-side sets into one list for
// viewerID. Duplicates keep the higher version, then the later update. The
// result is ordered by last update, newest first, with id breaking ties.
// Merging is idempotent and independent of argument order.
func Merge(clientSide, stylistSide []appointments.Appointment, viewerID string, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.UTC
	}
	latest := make(map[string]appointments.Appointment, len(clientSide)+len(stylistSide))
	for _, side := range [][]appointments.Appointment{clientSide, stylistSide} {
		for _, a := range side {
			if prev, ok := latest[a.ID]; !ok || newer(a, prev) {
				latest[a.ID] = a
			}
		}
	}

	out := make([]Entry, 0, len(latest))
	for _, a := range latest {
		local := a.Clone()
		local.DateTime = local.DateTime.In(loc)
		if local.RescheduleProposal != nil {
			local.RescheduleProposal.ProposedDateTime = local.RescheduleProposal.ProposedDateTime.In(loc)
		}
		role, _ := a.RoleOf(viewerID)
		out = append(out, Entry{
			Appointment:   *local,
			ViewerRole:    role,
			DisplayStatus: a.Display(),
			LocalDate:     clock.LocalDate(a.DateTime, loc),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newer(a, b appointments.Appointment) bool {
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// ByRole keeps the entries where the viewer is on side role.
func ByRole(entries []Entry, role appointments.Role) []Entry {
	return filter(entries, func(e Entry) bool { return e.ViewerRole == role })
}

// ByStatus keeps the entries in any of the given statuses.
func ByStatus(entries []Entry, statuses ...appointments.Status) []Entry {
	return filter(entries, func(e Entry) bool {
		for _, s := range statuses {
			if e.Status == s {
				return true
			}
		}
		return false
	})
}

// Today keeps the entries on now's local date, earliest first.
func Today(entries []Entry, now time.Time) []Entry {
	out := filter(entries, func(e Entry) bool { return e.LocalDate == today(e, now) })
	sortByStart(out, true)
	return out
}

// Upcoming keeps the entries on or after now's local date, earliest first.
func Upcoming(entries []Entry, now time.Time) []Entry {
	out := filter(entries, func(e Entry) bool { return e.LocalDate >= today(e, now) })
	sortByStart(out, true)
	return out
}

// Past keeps the entries before now's local date, most recent first.
func Past(entries []Entry, now time.Time) []Entry {
	out := filter(entries, func(e Entry) bool { return e.LocalDate < today(e, now) })
	sortByStart(out, false)
	return out
}

// today is now's date in the zone the entry was localized to.
func today(e Entry, now time.Time) string {
	return clock.LocalDate(now, e.DateTime.Location())
}

func filter(entries []Entry, keep func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func sortByStart(entries []Entry, ascending bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if ascending {
			return entries[i].DateTime.Before(entries[j].DateTime)
		}
		return entries[i].DateTime.After(entries[j].DateTime)
	})
}
