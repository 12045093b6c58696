package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/salon-booking/internal/appointments"
)

// View is a viewer's live, merged appointment list. It owns one subscription
// per side and emits a fresh snapshot whenever either side changes.
type View struct {
	viewerID string
	loc      *time.Location

	mu    sync.Mutex
	sides map[appointments.Role][]appointments.Appointment
	seen  map[appointments.Role]bool

	subs    []Subscription
	updates chan []Entry
	wg      sync.WaitGroup
}

// OpenView subscribes to both sides for viewerID. If the second subscription
// fails the first is released.
func OpenView(ctx context.Context, feed Feed, viewerID string, loc *time.Location) (*View, error) {
	if loc == nil {
		loc = time.UTC
	}
	clientSub, err := feed.Subscribe(ctx, Filter{Field: appointments.RoleClient, Value: viewerID})
	if err != nil {
		return nil, err
	}
	stylistSub, err := feed.Subscribe(ctx, Filter{Field: appointments.RoleStylist, Value: viewerID})
	if err != nil {
		return nil, errors.Join(err, clientSub.Close())
	}

	v := &View{
		viewerID: viewerID,
		loc:      loc,
		sides:    map[appointments.Role][]appointments.Appointment{},
		seen:     map[appointments.Role]bool{},
		subs:     []Subscription{clientSub, stylistSub},
		updates:  make(chan []Entry, 1),
	}
	v.wg.Add(2)
	go v.pump(appointments.RoleClient, clientSub)
	go v.pump(appointments.RoleStylist, stylistSub)
	go func() {
		v.wg.Wait()
		close(v.updates)
	}()
	return v, nil
}

// Updates delivers merged snapshots, latest wins. The first snapshot waits
// until both sides have reported. The channel closes after Close.
func (v *View) Updates() <-chan []Entry {
	return v.updates
}

// Close releases both subscriptions.
func (v *View) Close() error {
	var errs []error
	for _, s := range v.subs {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (v *View) pump(role appointments.Role, sub Subscription) {
	defer v.wg.Done()
	for snap := range sub.Updates() {
		v.mu.Lock()
		v.sides[role] = snap
		v.seen[role] = true
		if v.seen[appointments.RoleClient] && v.seen[appointments.RoleStylist] {
			v.offer(Merge(v.sides[appointments.RoleClient], v.sides[appointments.RoleStylist], v.viewerID, v.loc))
		}
		v.mu.Unlock()
	}
}

// offer must be called with mu held.
func (v *View) offer(entries []Entry) {
	for {
		select {
		case v.updates <- entries:
			return
		default:
		}
		select {
		case <-v.updates:
		default:
		}
	}
}
