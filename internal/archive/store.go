package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/salon-booking/internal/events"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives closed appointments to S3. It is an outbox delivery handler:
// change events for appointments that are still open are ignored.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: time.Now}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Handle archives the snapshot carried by a closing change event.
func (s *Store) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if !s.Enabled() || entry.Type != events.AppointmentChangedType {
		return nil
	}
	env, err := events.DecodeEnvelope(entry.Payload)
	if err != nil {
		return err
	}
	var change events.AppointmentChangedV1
	if err := json.Unmarshal(env.Payload, &change); err != nil {
		return fmt.Errorf("archive: decode change: %w", err)
	}
	if !change.Closed {
		return nil
	}
	return s.Archive(ctx, &AppointmentRecord{
		Version:       recordVersion,
		AppointmentID: change.AppointmentID,
		ClientID:      change.ClientID,
		StylistID:     change.StylistID,
		FinalStatus:   change.Status,
		PaymentStatus: change.PaymentStatus,
		LastAction:    change.Action,
		DateTime:      change.DateTime,
		ClosedAt:      change.OccurredAt,
		EventID:       entry.ID.String(),
		Appointment:   change.Snapshot,
	})
}

// Archive writes a record as JSON to S3 and appends it to the manifest.
func (s *Store) Archive(ctx context.Context, record *AppointmentRecord) error {
	if !s.Enabled() {
		return nil
	}
	if record.ArchivedAt.IsZero() {
		record.ArchivedAt = s.now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	key := RecordKey(record.AppointmentID, record.DateTime)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archive: appointment archived",
		"appointment_id", record.AppointmentID,
		"s3_key", key,
		"final_status", record.FinalStatus,
	)

	entry := ManifestEntry{
		AppointmentID: record.AppointmentID,
		S3Key:         key,
		FinalStatus:   record.FinalStatus,
		StylistID:     record.StylistID,
		ClosedAt:      record.ClosedAt.UTC().Format(time.RFC3339),
		ArchivedAt:    record.ArchivedAt.Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The record itself is stored; a missing manifest line is recoverable.
		s.logger.Warn("archive: failed to append manifest", "error", err, "appointment_id", record.AppointmentID)
	}
	return nil
}

// Load reads an archived record back.
func (s *Store) Load(ctx context.Context, appointmentID string, startsAt time.Time) (*AppointmentRecord, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("archive: not configured")
	}
	key := RecordKey(appointmentID, startsAt)
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()

	var record AppointmentRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &record, nil
}

// RecordKey partitions records by the appointment's UTC start date. Writes
// for the same appointment overwrite each other, so redelivery is harmless.
func RecordKey(appointmentID string, startsAt time.Time) string {
	d := startsAt.UTC()
	return fmt.Sprintf("appointments/v1/by-date/%d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), appointmentID)
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := s.now().UTC()
	manifestKey := fmt.Sprintf("appointments/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNotFound(err):
		s.logger.Debug("archive: manifest not found, creating new", "key", manifestKey)
	default:
		return fmt.Errorf("archive: s3 get manifest: %w", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}

var _ events.DeliveryHandler = (*Store)(nil)
