package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create re-checks the slot against the practitioner's occupying
	// appointments and inserts in one atomic step. ID and AppointmentNumber
	// are assigned when empty. Returns *ConflictError on overlap.
	Create(ctx context.Context, a *Appointment) error

	// Reschedule writes a moved appointment after the same atomic re-check,
	// ignoring the appointment itself. The write only applies while the
	// stored status is still from; otherwise it returns ErrStatusChanged.
	Reschedule(ctx context.Context, a *Appointment, from Status) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// ListForDay returns every live appointment of a practitioner on date,
	// in any status, ordered by start minute.
	ListForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]*Appointment, error)

	// UpdateStatus persists the status and lifecycle fields of a, provided
	// the stored status is still from. Returns ErrStatusChanged otherwise.
	UpdateStatus(ctx context.Context, a *Appointment, from Status) error

	SoftDelete(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error

	// ListOverdue returns scheduled or confirmed appointments whose slot ended
	// at or before endMinute on day, or on any earlier day.
	ListOverdue(ctx context.Context, day time.Time, endMinute int, limit int) ([]*Appointment, error)
}
