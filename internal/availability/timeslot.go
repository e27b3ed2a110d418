// Package availability decides whether a practitioner is free for a given
// interval of a calendar day and enumerates the free slots of a working day.
//
// Times of day are minute-of-day integers in [0, 1440]. Nothing in this
// package parses or formats wall-clock strings, touches storage, or holds
// state between calls.
package availability

import (
	"fmt"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a minute-of-day value and the
// largest valid slot end.
const MinutesPerDay = 24 * 60

// TimeSlot is the half-open interval [Start, End) on a single day.
type TimeSlot struct {
	Start int `json:"start_minute"`
	End   int `json:"end_minute"`
}

// NewTimeSlot validates start and end and returns the slot unchanged.
func NewTimeSlot(start, end int) (TimeSlot, error) {
	s := TimeSlot{Start: start, End: end}
	if err := s.Validate(); err != nil {
		return TimeSlot{}, err
	}
	return s, nil
}

// Validate reports ErrInvalidInterval unless 0 <= Start < End <= 1440.
func (s TimeSlot) Validate() error {
	switch {
	case s.Start < 0:
		return fmt.Errorf("%w: start %d is before midnight", ErrInvalidInterval, s.Start)
	case s.End > MinutesPerDay:
		return fmt.Errorf("%w: end %d is past the end of the day", ErrInvalidInterval, s.End)
	case s.Start >= s.End:
		return fmt.Errorf("%w: start %d must be before end %d", ErrInvalidInterval, s.Start, s.End)
	}
	return nil
}

// Overlaps reports whether the two slots share at least one minute.
// Touching slots such as [540,600) and [600,660) do not overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start < other.End && s.End > other.Start
}

// Within reports whether s lies entirely inside outer.
func (s TimeSlot) Within(outer TimeSlot) bool {
	return s.Start >= outer.Start && s.End <= outer.End
}

func (s TimeSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

// On returns the absolute start and end instants of the slot on date, in loc.
func (s TimeSlot) On(date time.Time, loc *time.Location) (time.Time, time.Time) {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(s.Start) * time.Minute), midnight.Add(time.Duration(s.End) * time.Minute)
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Day truncates t to its calendar day, expressed as midnight UTC. Booking
// dates are compared and stored in this form.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay compares the calendar day of a and b, ignoring time and zone.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
