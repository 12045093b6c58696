package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/salon-booking/internal/appointments"
)

type fakeSub struct {
	updates chan []appointments.Appointment
	once    sync.Once
	closed  bool
}

func newFakeSub(initial []appointments.Appointment) *fakeSub {
	s := &fakeSub{updates: make(chan []appointments.Appointment, 1)}
	s.updates <- initial
	return s
}

func (s *fakeSub) Updates() <-chan []appointments.Appointment { return s.updates }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.closed = true
		close(s.updates)
	})
	return nil
}

type fakeFeed struct {
	mu      sync.Mutex
	subs    map[appointments.Role]*fakeSub
	initial map[appointments.Role][]appointments.Appointment
	failOn  appointments.Role
}

func (f *fakeFeed) Subscribe(_ context.Context, filter Filter) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter.Field == f.failOn {
		return nil, errors.New("subscribe refused")
	}
	if f.subs == nil {
		f.subs = map[appointments.Role]*fakeSub{}
	}
	s := newFakeSub(f.initial[filter.Field])
	f.subs[filter.Field] = s
	return s, nil
}

func (f *fakeFeed) sub(role appointments.Role) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[role]
}

func TestViewMergesBothSides(t *testing.T) {
	mine := appt("c-1", 1, time.Minute)
	theirs := appt("s-1", 1, 2*time.Minute)
	theirs.StylistID, theirs.ClientID = "u-1", "cli-2"
	feed := &fakeFeed{initial: map[appointments.Role][]appointments.Appointment{
		appointments.RoleClient:  {mine},
		appointments.RoleStylist: {theirs},
	}}

	view, err := OpenView(context.Background(), feed, "u-1", time.UTC)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	defer view.Close()

	snap := receive(t, view.Updates())
	for len(snap) < 2 {
		snap = receive(t, view.Updates())
	}
	if snap[0].ID != "s-1" || snap[0].ViewerRole != appointments.RoleStylist || snap[1].ViewerRole != appointments.RoleClient {
		t.Fatalf("unexpected merged view %+v", snap)
	}

	moved := theirs
	moved.Version = 2
	moved.UpdatedAt = base.Add(time.Hour)
	moved.Status = appointments.StatusConfirmed
	feed.sub(appointments.RoleStylist).updates <- []appointments.Appointment{moved}

	snap = receive(t, view.Updates())
	if len(snap) != 2 || snap[0].Version != 2 || snap[0].DisplayStatus != "Confirmed" {
		t.Fatalf("expected stylist-side change to republish, got %+v", snap)
	}
}

func TestViewCloseReleasesBoth(t *testing.T) {
	feed := &fakeFeed{}
	view, err := OpenView(context.Background(), feed, "u-1", nil)
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	if err := view.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !feed.sub(appointments.RoleClient).closed || !feed.sub(appointments.RoleStylist).closed {
		t.Fatal("expected both subscriptions released")
	}
	for range view.Updates() {
	}
}

func TestViewReleasesFirstWhenSecondFails(t *testing.T) {
	feed := &fakeFeed{failOn: appointments.RoleStylist}
	if _, err := OpenView(context.Background(), feed, "u-1", nil); err == nil {
		t.Fatal("expected open to fail")
	}
	if !feed.sub(appointments.RoleClient).closed {
		t.Fatal("expected client subscription to be released")
	}
}
