package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/salon-booking/internal/apperr"
	"github.com/wolfman30/salon-booking/internal/clock"
)

// Reader is the read side consumed by the availability resolver.
type Reader interface {
	Get(ctx context.Context, stylistID string) (*Schedule, error)
}

// PostgresStore persists schedules in stylist_schedules and schedule_breaks.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a schedule store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("schedule: sql db required")
	}
	return &PostgresStore{db: db}
}

// Get loads a schedule and its breaks. Missing schedules return apperr.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, stylistID string) (*Schedule, error) {
	var (
		sch       Schedule
		workHours []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT stylist_id, name, email, phone, timezone, work_hours, buffer_before, buffer_after, updated_at
		FROM stylist_schedules WHERE stylist_id = $1`, stylistID).Scan(
		&sch.StylistID, &sch.Name, &sch.Email, &sch.Phone, &sch.Timezone, &workHours,
		&sch.BufferTime.Before, &sch.BufferTime.After, &sch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule: %s: %w", stylistID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: get: %w", err)
	}
	if err := json.Unmarshal(workHours, &sch.WorkHours); err != nil {
		return nil, fmt.Errorf("schedule: decode work hours: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_time, end_time, days
		FROM schedule_breaks WHERE stylist_id = $1
		ORDER BY position`, stylistID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list breaks: %w", err)
	}
	defer rows.Close()

	sch.Breaks = []Break{}
	for rows.Next() {
		var (
			b          Break
			start, end string
		)
		if err := rows.Scan(&b.ID, &b.Name, &start, &end, pq.Array(&b.Days)); err != nil {
			return nil, fmt.Errorf("schedule: scan break: %w", err)
		}
		if b.Start, err = clock.Parse(start); err != nil {
			return nil, fmt.Errorf("schedule: break %s start: %w", b.ID, err)
		}
		if b.End, err = clock.Parse(end); err != nil {
			return nil, fmt.Errorf("schedule: break %s end: %w", b.ID, err)
		}
		sch.Breaks = append(sch.Breaks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate breaks: %w", err)
	}
	return &sch, nil
}

// Save upserts the schedule and replaces its breaks in one transaction.
func (s *PostgresStore) Save(ctx context.Context, sch *Schedule) error {
	sch.Normalize()
	if err := sch.Validate(); err != nil {
		return err
	}
	workHours, err := json.Marshal(sch.WorkHours)
	if err != nil {
		return fmt.Errorf("schedule: encode work hours: %w", err)
	}
	sch.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schedule: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stylist_schedules (stylist_id, name, email, phone, timezone, work_hours, buffer_before, buffer_after, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stylist_id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			timezone = EXCLUDED.timezone, work_hours = EXCLUDED.work_hours,
			buffer_before = EXCLUDED.buffer_before, buffer_after = EXCLUDED.buffer_after,
			updated_at = EXCLUDED.updated_at`,
		sch.StylistID, sch.Name, sch.Email, sch.Phone, sch.Timezone, workHours,
		sch.BufferTime.Before, sch.BufferTime.After, sch.UpdatedAt); err != nil {
		return fmt.Errorf("schedule: upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_breaks WHERE stylist_id = $1`, sch.StylistID); err != nil {
		return fmt.Errorf("schedule: clear breaks: %w", err)
	}
	for i := range sch.Breaks {
		b := &sch.Breaks[i]
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_breaks (id, stylist_id, name, start_time, end_time, days, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.ID, sch.StylistID, b.Name, b.Start.String(), b.End.String(), pq.Array(b.Days), i); err != nil {
			return fmt.Errorf("schedule: insert break: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schedule: commit: %w", err)
	}
	return nil
}
