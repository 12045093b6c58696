// Package realtime keeps a viewer's appointment list live. A viewer may be the
// client on some appointments and the stylist on others, so every view is fed
// by two subscriptions and reduced into one list.
package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

const channelPrefix = "appointments:"

// Filter selects the appointments where Value is the party on side Field.
type Filter struct {
	Field appointments.Role
	Value string
}

func (f Filter) validate() error {
	if f.Field != appointments.RoleClient && f.Field != appointments.RoleStylist {
		return fmt.Errorf("realtime: unknown filter field %q", f.Field)
	}
	if strings.TrimSpace(f.Value) == "" {
		return fmt.Errorf("realtime: filter value required")
	}
	return nil
}

// Channel is the pub/sub channel carrying change notices for the filter.
func (f Filter) Channel() string {
	return channelPrefix + string(f.Field) + ":" + f.Value
}

// Subscription delivers the full matching set on every change. Only the most
// recent set is kept for a slow reader. Updates is closed after Close.
type Subscription interface {
	Updates() <-chan []appointments.Appointment
	Close() error
}

// Feed opens live queries.
type Feed interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

// Lister is the read side of the record store used for snapshots.
type Lister interface {
	ListByParty(ctx context.Context, role appointments.Role, partyID string) ([]appointments.Appointment, error)
}

// RedisFeed answers subscriptions from the record store and refreshes them
// when a change notice arrives on the filter's Redis channel.
type RedisFeed struct {
	client redis.UniversalClient
	lister Lister
	logger *logging.Logger
	tracer trace.Tracer
}

func NewRedisFeed(client redis.UniversalClient, lister Lister, logger *logging.Logger) *RedisFeed {
	if client == nil {
		panic("realtime: redis client required")
	}
	if lister == nil {
		panic("realtime: lister required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisFeed{client: client, lister: lister, logger: logger, tracer: otel.Tracer("salon.internal.realtime")}
}

// Subscribe listens first and snapshots second, so a change committed between
// the two is never missed.
func (f *RedisFeed) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	ps := f.client.Subscribe(ctx, filter.Channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", filter.Channel(), err)
	}
	initial, err := f.fetch(ctx, filter)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		updates: make(chan []appointments.Appointment, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	sub.offer(initial)
	go f.run(runCtx, ps, filter, sub)
	return sub, nil
}

func (f *RedisFeed) run(ctx context.Context, ps *redis.PubSub, filter Filter, sub *subscription) {
	defer close(sub.done)
	defer close(sub.updates)
	defer ps.Close()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			drain(msgs)
			snap, err := f.fetch(ctx, filter)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Warn("realtime: refetch failed", "error", err, "channel", filter.Channel())
				continue
			}
			sub.offer(snap)
		}
	}
}

func (f *RedisFeed) fetch(ctx context.Context, filter Filter) ([]appointments.Appointment, error) {
	ctx, span := f.tracer.Start(ctx, "realtime.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("salon.filter_field", string(filter.Field)))

	appts, err := f.lister.ListByParty(ctx, filter.Field, filter.Value)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("realtime: list %s: %w", filter.Channel(), err)
	}
	if appts == nil {
		appts = []appointments.Appointment{}
	}
	return appts, nil
}

// drain collapses a burst of notices into one refetch.
func drain(msgs <-chan *redis.Message) {
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

type subscription struct {
	updates chan []appointments.Appointment
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Updates() <-chan []appointments.Appointment {
	return s.updates
}

// Close stops the listener and waits for it to exit.
func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// offer replaces any undelivered set with snap. Only the owning goroutine sends.
func (s *subscription) offer(snap []appointments.Appointment) {
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}
