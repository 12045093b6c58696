package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	selectProcessedSQL = `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	insertProcessedSQL = `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING
	`
)

var errMissingEventKey = errors.New("events: provider and event id are required")

type processedDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore remembers which payment-gateway webhook deliveries have
// already been applied to an appointment, keyed by (provider, event id).
type ProcessedStore struct {
	db processedDB
}

// NewProcessedStore panics on a nil executor.
func NewProcessedStore(db processedDB) *ProcessedStore {
	if db == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: db}
}

// AlreadyProcessed reports whether the gateway delivery was applied before.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	provider, eventID, err := eventKey(provider, eventID)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRow(ctx, selectProcessedSQL, provider, eventID).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("events: lookup %s event %s: %w", provider, eventID, err)
	}
	return true, nil
}

// MarkProcessed records the delivery. It returns false when another webhook
// retry recorded it first.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	provider, eventID, err := eventKey(provider, eventID)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, insertProcessedSQL, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: record %s event %s: %w", provider, eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func eventKey(provider, eventID string) (string, string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return "", "", errMissingEventKey
	}
	return provider, eventID, nil
}
