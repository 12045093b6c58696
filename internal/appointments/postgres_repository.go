package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/salon-booking/internal/events"
)

const (
	uniqueViolation    = "23505"
	slotUniqueIndex    = "ux_appointments_slot"
	appointmentColumns = `id, client_id, stylist_id, client, stylist, date_time, slot_date, slot_time,
		service, payment_type, payment_amount, total_amount, deposit_amount, status, payment_status,
		reschedule_proposal, payment_failed_at, payment_failure_reason, payment_requested_at,
		version, created_at, updated_at`
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in Postgres. Slot uniqueness is the
// partial unique index ux_appointments_slot over slot-holding statuses.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository accepts a *pgxpool.Pool or any compatible handle.
func NewPostgresRepository(db db) *PostgresRepository {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	client, stylist, service, proposal, err := encodeDocuments(appt)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO appointments (` + appointmentColumns + `, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err = tx.Exec(ctx, query,
		appt.ID, appt.ClientID, appt.StylistID, client, stylist, appt.DateTime, appt.SlotDate, appt.SlotTime,
		service, string(appt.PaymentType), appt.PaymentAmount, appt.TotalAmount, appt.DepositAmount,
		string(appt.Status), string(appt.PaymentStatus),
		proposal, appt.PaymentFailedAt, appt.PaymentFailureReason, appt.PaymentRequestedAt,
		appt.Version, appt.CreatedAt, appt.UpdatedAt, appt.Service.DurationMinutes,
	)
	if err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	if err := appendChange(ctx, tx, ActionBook, appt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("appointments: %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) ListForStylistDate(ctx context.Context, stylistID, date, excludeID string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE stylist_id = $1 AND slot_date = $2 AND status = ANY($3) AND id::text <> $4
		ORDER BY slot_time
	`
	return r.list(ctx, query, stylistID, date, statusStrings(SlotHolding), excludeID)
}

func (r *PostgresRepository) ListByParty(ctx context.Context, role Role, partyID string) ([]Appointment, error) {
	column := "client_id"
	if role == RoleStylist {
		column = "stylist_id"
	}
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + column + ` = $1
		ORDER BY updated_at DESC, id
	`
	return r.list(ctx, query, partyID)
}

func (r *PostgresRepository) ListSweepCandidates(ctx context.Context, kind SweepKind, cutoff time.Time, limit int) ([]Appointment, error) {
	var where string
	switch kind {
	case SweepStalePending:
		where = `status = 'pending' AND created_at < $1`
	case SweepAuthorization:
		where = `payment_status = 'pending' AND status IN ('pending', 'confirmed') AND created_at < $1`
	case SweepCompletion:
		where = `status = 'confirmed' AND date_time + make_interval(mins => duration_minutes) < $1`
	default:
		return nil, fmt.Errorf("appointments: unknown sweep %q", kind)
	}
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + where + `
		ORDER BY created_at
		LIMIT $2
	`
	return r.list(ctx, query, cutoff, limit)
}

func (r *PostgresRepository) ApplyTransition(ctx context.Context, current, next *Appointment, action Action) (*Appointment, error) {
	_, _, _, proposal, err := encodeDocuments(next)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE appointments
		SET status = $5, payment_status = $6, date_time = $7, slot_date = $8, slot_time = $9,
			reschedule_proposal = $10, payment_failed_at = $11, payment_failure_reason = $12,
			payment_requested_at = $13, updated_at = $14, version = version + 1
		WHERE id = $1 AND status = $2 AND payment_status = $3 AND version = $4
		RETURNING version
	`
	var version int64
	err = tx.QueryRow(ctx, query,
		current.ID, string(current.Status), string(current.PaymentStatus), current.Version,
		string(next.Status), string(next.PaymentStatus), next.DateTime, next.SlotDate, next.SlotTime,
		proposal, next.PaymentFailedAt, next.PaymentFailureReason, next.PaymentRequestedAt, next.UpdatedAt,
	).Scan(&version)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrVersionMismatch
		case isSlotViolation(err):
			return nil, ErrSlotTaken
		default:
			return nil, fmt.Errorf("appointments: update: %w", err)
		}
	}

	saved := next.Clone()
	saved.Version = version
	if err := appendChange(ctx, tx, action, saved); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit transition: %w", err)
	}
	return saved, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt                               Appointment
		client, stylist, service, proposal []byte
		paymentType, status, paymentStatus string
		failureReason                      *string
	)
	err := row.Scan(
		&appt.ID, &appt.ClientID, &appt.StylistID, &client, &stylist, &appt.DateTime, &appt.SlotDate, &appt.SlotTime,
		&service, &paymentType, &appt.PaymentAmount, &appt.TotalAmount, &appt.DepositAmount, &status, &paymentStatus,
		&proposal, &appt.PaymentFailedAt, &failureReason, &appt.PaymentRequestedAt,
		&appt.Version, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.PaymentType = PaymentType(paymentType)
	appt.Status = Status(status)
	appt.PaymentStatus = PaymentStatus(paymentStatus)
	if failureReason != nil {
		appt.PaymentFailureReason = *failureReason
	}
	if err := json.Unmarshal(client, &appt.Client); err != nil {
		return nil, fmt.Errorf("decode client: %w", err)
	}
	if err := json.Unmarshal(stylist, &appt.Stylist); err != nil {
		return nil, fmt.Errorf("decode stylist: %w", err)
	}
	if err := json.Unmarshal(service, &appt.Service); err != nil {
		return nil, fmt.Errorf("decode service: %w", err)
	}
	if len(proposal) > 0 && string(proposal) != "null" {
		var p RescheduleProposal
		if err := json.Unmarshal(proposal, &p); err != nil {
			return nil, fmt.Errorf("decode reschedule proposal: %w", err)
		}
		appt.RescheduleProposal = &p
	}
	appt.DateTime = appt.DateTime.UTC()
	return &appt, nil
}

func encodeDocuments(appt *Appointment) (client, stylist, service, proposal []byte, err error) {
	if client, err = json.Marshal(appt.Client); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("appointments: encode client: %w", err)
	}
	if stylist, err = json.Marshal(appt.Stylist); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("appointments: encode stylist: %w", err)
	}
	if service, err = json.Marshal(appt.Service); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("appointments: encode service: %w", err)
	}
	if appt.RescheduleProposal != nil {
		if proposal, err = json.Marshal(appt.RescheduleProposal); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("appointments: encode proposal: %w", err)
		}
	}
	return client, stylist, service, proposal, nil
}

func appendChange(ctx context.Context, exec events.Execer, action Action, appt *Appointment) error {
	evt, err := changeEvent(action, appt)
	if err != nil {
		return fmt.Errorf("appointments: build change event: %w", err)
	}
	if _, err := events.AppendCanonicalEvent(ctx, exec, events.AppointmentAggregate(appt.ID), "", evt); err != nil {
		return fmt.Errorf("appointments: append outbox: %w", err)
	}
	return nil
}

func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (pgErr.ConstraintName == "" || pgErr.ConstraintName == slotUniqueIndex)
}

func statusStrings(set []Status) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
