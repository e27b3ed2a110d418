package appointment

import (
	"errors"
	"fmt"

	"github.com/prempal04/AyurSutra/internal/availability"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrAppointmentConflict     = errors.New("appointment time slot is already booked")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrStatusChanged           = errors.New("appointment status was changed by another request")
	ErrScheduledInPast         = errors.New("cannot schedule appointment in the past")
	ErrInvalidDuration         = errors.New("appointment duration must be between 5 and 480 minutes")
	ErrInvalidAppointmentType  = errors.New("invalid appointment type")
	ErrInvalidPriority         = errors.New("invalid appointment priority")
	ErrOutsideWorkingHours     = errors.New("appointment is outside the practitioner's working hours")
	ErrBeyondAdvanceWindow     = errors.New("appointment is too far in the future")
)

// ConflictError carries the bookings that block a requested slot. It matches
// ErrAppointmentConflict under errors.Is.
type ConflictError struct {
	Conflicts []availability.BookingWindow
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%d conflicting)", ErrAppointmentConflict, len(e.Conflicts))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrAppointmentConflict
}
