package availability

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
)

// WorkingDay is a practitioner's bookable window for one date, quantized into
// slots of GranularityMinutes. A Closed day has no bookable slots and its
// other fields are ignored.
type WorkingDay struct {
	StartMinute        int  `json:"start_minute"`
	EndMinute          int  `json:"end_minute"`
	GranularityMinutes int  `json:"granularity_minutes"`
	Closed             bool `json:"closed"`
}

// NewWorkingDay returns a validated open working day.
func NewWorkingDay(start, end, granularity int) (WorkingDay, error) {
	d := WorkingDay{StartMinute: start, EndMinute: end, GranularityMinutes: granularity}
	if err := d.Validate(); err != nil {
		return WorkingDay{}, err
	}
	return d, nil
}

// ClosedDay is a working day with nothing to book.
func ClosedDay() WorkingDay {
	return WorkingDay{Closed: true}
}

func (d WorkingDay) Validate() error {
	if d.Closed {
		return nil
	}
	switch {
	case d.GranularityMinutes <= 0:
		return fmt.Errorf("%w: granularity must be positive, got %d", ErrInvalidWorkingDay, d.GranularityMinutes)
	case d.StartMinute < 0 || d.EndMinute > MinutesPerDay:
		return fmt.Errorf("%w: hours [%d,%d) fall outside the day", ErrInvalidWorkingDay, d.StartMinute, d.EndMinute)
	case d.EndMinute <= d.StartMinute:
		return fmt.Errorf("%w: end %d must be after start %d", ErrInvalidWorkingDay, d.EndMinute, d.StartMinute)
	}
	return nil
}

// Hours returns the working window as a slot. Meaningless for a closed day.
func (d WorkingDay) Hours() TimeSlot {
	return TimeSlot{Start: d.StartMinute, End: d.EndMinute}
}

// Grid yields every full slot of the day's granularity. A trailing remainder
// shorter than the granularity is dropped.
func (d WorkingDay) Grid() iter.Seq[TimeSlot] {
	return func(yield func(TimeSlot) bool) {
		if d.Closed || d.GranularityMinutes <= 0 {
			return
		}
		for start := d.StartMinute; start+d.GranularityMinutes <= d.EndMinute; start += d.GranularityMinutes {
			if !yield(TimeSlot{Start: start, End: start + d.GranularityMinutes}) {
				return
			}
		}
	}
}

// FreeSlots returns the grid slots of day that no occupying booking of
// practitionerID on date overlaps. The sequence holds no cursor state and can
// be ranged over any number of times.
func FreeSlots(day WorkingDay, practitionerID uuid.UUID, date time.Time, bookings []BookingWindow) (iter.Seq[TimeSlot], error) {
	if err := day.Validate(); err != nil {
		return nil, err
	}

	var busy []BookingWindow
	for _, b := range bookings {
		if relevant(b, practitionerID, date) {
			busy = append(busy, b)
		}
	}

	return func(yield func(TimeSlot) bool) {
		for slot := range day.Grid() {
			if !check(slot, practitionerID, date, busy).Available {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}, nil
}

// ListFreeSlots collects FreeSlots into a slice. The result is never nil.
func ListFreeSlots(day WorkingDay, practitionerID uuid.UUID, date time.Time, bookings []BookingWindow) ([]TimeSlot, error) {
	seq, err := FreeSlots(day, practitionerID, date, bookings)
	if err != nil {
		return nil, err
	}
	slots := slices.Collect(seq)
	if slots == nil {
		slots = []TimeSlot{}
	}
	return slots, nil
}
