package availability

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a booking.
//
//	scheduled → confirmed → in-progress → completed
//	scheduled | confirmed → cancelled
//	scheduled | confirmed → no-show
//	any state before completed → rescheduled
//
// Transitions are enforced by the booking store; this package only reads the
// current value.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in-progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no-show"
	StatusRescheduled Status = "rescheduled"
)

// OccupyingStatuses reserve their slot.
var OccupyingStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress, StatusRescheduled}

// TerminalStatuses release their slot.
var TerminalStatuses = []Status{StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// IsOccupying reports whether a booking in status s blocks its slot.
func IsOccupying(s Status) bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusRescheduled:
		return true
	}
	return false
}

// BookingWindow is the part of a stored booking the resolver reasons about.
type BookingWindow struct {
	BookingID      uuid.UUID `json:"booking_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Date           time.Time `json:"date"`
	Slot           TimeSlot  `json:"slot"`
	Status         Status    `json:"status"`
}

// Partitioned splits bookings into those holding a slot and those that do not.
type Partitioned struct {
	Occupying []BookingWindow
	Terminal  []BookingWindow
}

// Partition places every booking in exactly one group, keeping input order
// within each group.
func Partition(bookings []BookingWindow) Partitioned {
	var p Partitioned
	for _, b := range bookings {
		if IsOccupying(b.Status) {
			p.Occupying = append(p.Occupying, b)
		} else {
			p.Terminal = append(p.Terminal, b)
		}
	}
	return p
}

// Occupying returns the bookings that still reserve their slot.
func Occupying(bookings []BookingWindow) []BookingWindow {
	return Partition(bookings).Occupying
}
