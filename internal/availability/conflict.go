package availability

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of a conflict check. Conflicts lists the occupying
// bookings that overlap the candidate, in input order.
type Result struct {
	Available bool            `json:"available"`
	Conflicts []BookingWindow `json:"conflicts"`
}

// Check decides whether candidate is bookable for practitionerID on date
// given the existing bookings. Windows belonging to another practitioner or
// another day are ignored, as are bookings in a terminal status. Back-to-back
// bookings are allowed.
func Check(candidate TimeSlot, practitionerID uuid.UUID, date time.Time, bookings []BookingWindow) (Result, error) {
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}
	return check(candidate, practitionerID, date, bookings), nil
}

func check(candidate TimeSlot, practitionerID uuid.UUID, date time.Time, bookings []BookingWindow) Result {
	res := Result{Available: true}
	for _, b := range bookings {
		if !relevant(b, practitionerID, date) {
			continue
		}
		if candidate.Overlaps(b.Slot) {
			res.Available = false
			res.Conflicts = append(res.Conflicts, b)
		}
	}
	return res
}

func relevant(b BookingWindow, practitionerID uuid.UUID, date time.Time) bool {
	return b.PractitionerID == practitionerID && SameDay(b.Date, date) && IsOccupying(b.Status)
}
