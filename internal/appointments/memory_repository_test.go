package appointments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryRepository is an in-process Repository with the same write-time
// checks as the real stores.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]*Appointment
	applied []Action
	getErr  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: map[string]*Appointment{}}
}

func (m *memoryRepository) slotTaken(stylistID, date, slot, excludeID string) bool {
	for _, r := range m.records {
		if r.ID != excludeID && r.StylistID == stylistID && r.SlotDate == date && r.SlotTime == slot && r.Status.HoldsSlot() {
			return true
		}
	}
	return false
}

func (m *memoryRepository) Create(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[appt.ID]; ok {
		return fmt.Errorf("duplicate id %s", appt.ID)
	}
	if m.slotTaken(appt.StylistID, appt.SlotDate, appt.SlotTime, "") {
		return ErrSlotTaken
	}
	m.records[appt.ID] = appt.Clone()
	return nil
}

func (m *memoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("appointments: %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (m *memoryRepository) ListForStylistDate(_ context.Context, stylistID, date, excludeID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, r := range m.records {
		if r.StylistID == stylistID && r.SlotDate == date && r.ID != excludeID && r.Status.HoldsSlot() {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotTime < out[j].SlotTime })
	return out, nil
}

func (m *memoryRepository) ListByParty(_ context.Context, role Role, partyID string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, r := range m.records {
		if (role == RoleClient && r.ClientID == partyID) || (role == RoleStylist && r.StylistID == partyID) {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryRepository) ApplyTransition(_ context.Context, current, next *Appointment, action Action) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, action)
	stored, ok := m.records[current.ID]
	if !ok || stored.Status != current.Status || stored.PaymentStatus != current.PaymentStatus || stored.Version != current.Version {
		return nil, ErrVersionMismatch
	}
	moved := next.SlotDate != stored.SlotDate || next.SlotTime != stored.SlotTime
	if next.Status.HoldsSlot() && (moved || !stored.Status.HoldsSlot()) && m.slotTaken(next.StylistID, next.SlotDate, next.SlotTime, next.ID) {
		return nil, ErrSlotTaken
	}
	saved := next.Clone()
	saved.Version = stored.Version + 1
	m.records[saved.ID] = saved
	return saved.Clone(), nil
}

func (m *memoryRepository) ListSweepCandidates(_ context.Context, kind SweepKind, cutoff time.Time, limit int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, r := range m.records {
		var match bool
		switch kind {
		case SweepStalePending:
			match = r.Status == StatusPending && r.CreatedAt.Before(cutoff)
		case SweepAuthorization:
			match = r.PaymentStatus == PaymentPending && (r.Status == StatusPending || r.Status == StatusConfirmed) && r.CreatedAt.Before(cutoff)
		case SweepCompletion:
			match = r.Status == StatusConfirmed && r.EndsAt().Before(cutoff)
		}
		if match {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepository) stored(id string) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return r.Clone()
	}
	return nil
}

func (m *memoryRepository) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}
