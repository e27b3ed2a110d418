// Package memory keeps appointments in process memory. It backs
// DB_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
)

type AppointmentRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*appointment.Appointment
	seq  int64
	now  func() time.Time
}

func NewAppointmentRepository() *AppointmentRepository {
	return &AppointmentRepository{
		rows: make(map[uuid.UUID]*appointment.Appointment),
		now:  time.Now,
	}
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func (r *AppointmentRepository) Create(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLocked(a, uuid.Nil); err != nil {
		return err
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, exists := r.rows[a.ID]; exists {
		return appointment.ErrAppointmentConflict
	}
	if a.AppointmentNumber == "" {
		r.seq++
		a.AppointmentNumber = appointment.FormatNumber(r.seq)
	}
	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now
	a.Date = availability.Day(a.Date)

	r.rows[a.ID] = clone(a)
	return nil
}

func (r *AppointmentRepository) Reschedule(_ context.Context, a *appointment.Appointment, from appointment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.liveLocked(a.ID)
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	if row.Status != from {
		return appointment.ErrStatusChanged
	}
	if err := r.checkLocked(a, a.ID); err != nil {
		return err
	}
	a.UpdatedAt = r.now()
	a.Date = availability.Day(a.Date)
	r.rows[a.ID] = clone(a)
	return nil
}

// checkLocked reports a *ConflictError when a would overlap a live,
// occupying appointment other than exclude.
func (r *AppointmentRepository) checkLocked(a *appointment.Appointment, exclude uuid.UUID) error {
	var windows []availability.BookingWindow
	for id, row := range r.rows {
		if id == exclude || row.DeletedAt != nil {
			continue
		}
		windows = append(windows, row.Window())
	}
	res, err := availability.Check(a.Slot(), a.PractitionerID, a.Date, windows)
	if err != nil {
		return err
	}
	if !res.Available {
		sortWindows(res.Conflicts)
		return &appointment.ConflictError{Conflicts: res.Conflicts}
	}
	return nil
}

func (r *AppointmentRepository) liveLocked(id uuid.UUID) (*appointment.Appointment, bool) {
	row, ok := r.rows[id]
	if !ok || row.DeletedAt != nil {
		return nil, false
	}
	return row, true
}

func (r *AppointmentRepository) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.liveLocked(id)
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return clone(row), nil
}

func (r *AppointmentRepository) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	q.Normalize()

	r.mu.RLock()
	var matched []*appointment.Appointment
	for _, row := range r.rows {
		if row.DeletedAt == nil && matches(row, q) {
			matched = append(matched, clone(row))
		}
	}
	r.mu.RUnlock()

	sortAppointments(matched)
	total := int64(len(matched))
	from := min(q.Offset(), len(matched))
	to := min(from+q.PageSize, len(matched))
	return appointment.NewPage(matched[from:to], total, q), nil
}

func matches(a *appointment.Appointment, q *appointment.ListAppointmentsQuery) bool {
	switch {
	case q.PatientID != nil && a.PatientID != *q.PatientID:
		return false
	case q.PractitionerID != nil && a.PractitionerID != *q.PractitionerID:
		return false
	case q.Status != nil && a.Status != *q.Status:
		return false
	case q.Type != nil && a.Type != *q.Type:
		return false
	case q.DateFrom != nil && a.Date.Before(availability.Day(*q.DateFrom)):
		return false
	case q.DateTo != nil && a.Date.After(availability.Day(*q.DateTo)):
		return false
	}
	return true
}

func (r *AppointmentRepository) ListForDay(_ context.Context, practitionerID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*appointment.Appointment{}
	for _, row := range r.rows {
		if row.DeletedAt == nil && row.PractitionerID == practitionerID && availability.SameDay(row.Date, date) {
			out = append(out, clone(row))
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *AppointmentRepository) UpdateStatus(_ context.Context, a *appointment.Appointment, from appointment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.liveLocked(a.ID)
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	if row.Status != from {
		return appointment.ErrStatusChanged
	}
	// The slot itself only changes through Reschedule.
	a.Date, a.StartMinute, a.EndMinute = row.Date, row.StartMinute, row.EndMinute
	a.UpdatedAt = r.now()
	r.rows[a.ID] = clone(a)
	return nil
}

func (r *AppointmentRepository) SoftDelete(_ context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.liveLocked(id)
	if !ok {
		return appointment.ErrAppointmentNotFound
	}
	now := r.now()
	row.DeletedAt = &now
	row.UpdatedBy = &deletedBy
	return nil
}

func (r *AppointmentRepository) ListOverdue(_ context.Context, day time.Time, endMinute int, limit int) ([]*appointment.Appointment, error) {
	day = availability.Day(day)

	r.mu.RLock()
	var out []*appointment.Appointment
	for _, row := range r.rows {
		if row.DeletedAt != nil {
			continue
		}
		if row.Status != appointment.StatusScheduled && row.Status != appointment.StatusConfirmed {
			continue
		}
		if row.Date.Before(day) || (row.Date.Equal(day) && row.EndMinute <= endMinute) {
			out = append(out, clone(row))
		}
	}
	r.mu.RUnlock()

	sortAppointments(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortAppointments(list []*appointment.Appointment) {
	slices.SortFunc(list, func(a, b *appointment.Appointment) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if a.StartMinute != b.StartMinute {
			return a.StartMinute - b.StartMinute
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func sortWindows(list []availability.BookingWindow) {
	slices.SortFunc(list, func(a, b availability.BookingWindow) int {
		return a.Slot.Start - b.Slot.Start
	})
}

func clone(a *appointment.Appointment) *appointment.Appointment {
	c := *a
	return &c
}
