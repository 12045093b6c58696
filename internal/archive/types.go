package archive

import (
	"encoding/json"
	"time"
)

const recordVersion = "1.0"

// AppointmentRecord is the history document written when an appointment closes.
type AppointmentRecord struct {
	Version       string          `json:"version"`
	AppointmentID string          `json:"appointment_id"`
	ClientID      string          `json:"client_id"`
	StylistID     string          `json:"stylist_id"`
	FinalStatus   string          `json:"final_status"`
	PaymentStatus string          `json:"payment_status"`
	LastAction    string          `json:"last_action"`
	DateTime      time.Time       `json:"date_time"`
	ClosedAt      time.Time       `json:"closed_at"`
	ArchivedAt    time.Time       `json:"archived_at"`
	EventID       string          `json:"event_id"`
	Appointment   json.RawMessage `json:"appointment"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	AppointmentID string `json:"appointment_id"`
	S3Key         string `json:"s3_key"`
	FinalStatus   string `json:"final_status"`
	StylistID     string `json:"stylist_id"`
	ClosedAt      string `json:"closed_at"`
	ArchivedAt    string `json:"archived_at"`
}
