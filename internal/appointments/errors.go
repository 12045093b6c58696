package appointments

import (
	"errors"

	"github.com/wolfman30/salon-booking/internal/apperr"
)

type (
	ValidationError = apperr.ValidationError
	ConflictError   = apperr.ConflictError
	StaleStateError = apperr.StaleStateError
	UpstreamError   = apperr.UpstreamError
)

var (
	ErrNotFound  = apperr.ErrNotFound
	ErrForbidden = apperr.ErrForbidden

	// ErrSlotTaken is returned by a repository when the write-time uniqueness
	// check rejects a slot.
	ErrSlotTaken = errors.New("appointments: slot was just booked")

	// ErrVersionMismatch is returned by a repository when the conditional update
	// finds the record changed since it was read.
	ErrVersionMismatch = errors.New("appointments: record changed since read")
)

const slotTakenReason = "slot was just booked"
