package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/availability"
)

type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeTreatment    AppointmentType = "treatment"
	TypeFollowUp     AppointmentType = "follow-up"
	TypeEmergency    AppointmentType = "emergency"
)

func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsultation, TypeTreatment, TypeFollowUp, TypeEmergency:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Status values are shared with the availability resolver so that a stored
// appointment can be handed to it without translation.
type Status = availability.Status

const (
	StatusScheduled   = availability.StatusScheduled
	StatusConfirmed   = availability.StatusConfirmed
	StatusInProgress  = availability.StatusInProgress
	StatusCompleted   = availability.StatusCompleted
	StatusCancelled   = availability.StatusCancelled
	StatusNoShow      = availability.StatusNoShow
	StatusRescheduled = availability.StatusRescheduled
)

// State transitions:
//
//	scheduled   → confirmed | cancelled | no-show | rescheduled
//	confirmed   → in-progress | cancelled | no-show | rescheduled
//	in-progress → completed | rescheduled
//	rescheduled → confirmed | in-progress | cancelled | no-show | rescheduled
//
// completed, cancelled and no-show have no exits.
var transitions = map[Status][]Status{
	StatusScheduled:   {StatusConfirmed, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusConfirmed:   {StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusInProgress:  {StatusCompleted, StatusRescheduled},
	StatusRescheduled: {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusNoShow:      {},
}

type Appointment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	// Human-readable reference, e.g. APT000042
	AppointmentNumber string `gorm:"column:appointment_number;type:varchar(20);uniqueIndex;not null"`

	PatientID      uuid.UUID  `gorm:"column:patient_id;type:uuid;not null;index"`
	PractitionerID uuid.UUID  `gorm:"column:practitioner_id;type:uuid;not null;index"`
	TreatmentID    *uuid.UUID `gorm:"column:treatment_id;type:uuid"`

	// Date is the calendar day at UTC midnight; the minutes are wall-clock
	// minutes in the clinic timezone.
	Date        time.Time `gorm:"column:date;type:date;not null;index"`
	StartMinute int       `gorm:"column:start_minute;not null"`
	EndMinute   int       `gorm:"column:end_minute;not null"`

	Type     AppointmentType `gorm:"column:type;type:varchar(30);not null;index"`
	Priority Priority        `gorm:"column:priority;type:varchar(10);not null;default:'normal'"`
	Status   Status          `gorm:"column:status;type:varchar(20);not null;default:'scheduled';index"`

	Notes string `gorm:"column:notes;type:text"`
	Room  string `gorm:"column:room;type:varchar(50)"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	StartedAt   *time.Time `gorm:"column:started_at"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`

	// Slot held before the most recent reschedule
	OriginalDate        *time.Time `gorm:"column:original_date;type:date"`
	OriginalStartMinute *int       `gorm:"column:original_start_minute"`
	OriginalEndMinute   *int       `gorm:"column:original_end_minute"`
	RescheduleReason    string     `gorm:"column:reschedule_reason;type:text"`
	RescheduledBy       *uuid.UUID `gorm:"column:rescheduled_by;type:uuid"`
	RescheduledAt       *time.Time `gorm:"column:rescheduled_at"`
	RescheduleCount     int        `gorm:"column:reschedule_count;not null;default:0"`

	CompletedAt     *time.Time `gorm:"column:completed_at"`
	CompletionNotes string     `gorm:"column:completion_notes;type:text"`
	NoShowAt        *time.Time `gorm:"column:no_show_at"`

	CreatedBy uuid.UUID  `gorm:"column:created_by;type:uuid;not null"`
	UpdatedBy *uuid.UUID `gorm:"column:updated_by;type:uuid"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

func (a *Appointment) Slot() availability.TimeSlot {
	return availability.TimeSlot{Start: a.StartMinute, End: a.EndMinute}
}

// Window is the view of the appointment the availability resolver works with.
func (a *Appointment) Window() availability.BookingWindow {
	return availability.BookingWindow{
		BookingID:      a.ID,
		PractitionerID: a.PractitionerID,
		Date:           a.Date,
		Slot:           a.Slot(),
		Status:         a.Status,
	}
}

// Windows converts a list of appointments for the resolver.
func Windows(list []*Appointment) []availability.BookingWindow {
	out := make([]availability.BookingWindow, 0, len(list))
	for _, a := range list {
		out = append(out, a.Window())
	}
	return out
}

// StartsAt and EndsAt place the slot on the clock of loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	start, _ := a.Slot().On(a.Date, loc)
	return start
}

func (a *Appointment) EndsAt(loc *time.Location) time.Time {
	_, end := a.Slot().On(a.Date, loc)
	return end
}

func (a *Appointment) IsOccupying() bool {
	return availability.IsOccupying(a.Status)
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	for _, s := range transitions[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

func (a *Appointment) transition(to Status, by uuid.UUID) error {
	if !a.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, a.Status, to)
	}
	a.Status = to
	a.UpdatedBy = &by
	return nil
}

func (a *Appointment) Confirm(by uuid.UUID, at time.Time) error {
	if err := a.transition(StatusConfirmed, by); err != nil {
		return err
	}
	a.ConfirmedAt = &at
	return nil
}

func (a *Appointment) Start(by uuid.UUID, at time.Time) error {
	if err := a.transition(StatusInProgress, by); err != nil {
		return err
	}
	a.StartedAt = &at
	return nil
}

func (a *Appointment) Complete(notes string, by uuid.UUID, at time.Time) error {
	if err := a.transition(StatusCompleted, by); err != nil {
		return err
	}
	a.CompletedAt = &at
	a.CompletionNotes = notes
	return nil
}

func (a *Appointment) Cancel(reason string, by uuid.UUID, at time.Time) error {
	if err := a.transition(StatusCancelled, by); err != nil {
		return err
	}
	a.CancelledAt = &at
	a.CancellationReason = reason
	a.CancelledBy = &by
	return nil
}

func (a *Appointment) MarkNoShow(by uuid.UUID, at time.Time) error {
	if err := a.transition(StatusNoShow, by); err != nil {
		return err
	}
	a.NoShowAt = &at
	return nil
}

// Reschedule moves the appointment to slot on date. The slot it held before
// is kept in the Original* fields.
func (a *Appointment) Reschedule(date time.Time, slot availability.TimeSlot, reason string, by uuid.UUID, at time.Time) error {
	if err := slot.Validate(); err != nil {
		return err
	}
	prevDate, prevStart, prevEnd := a.Date, a.StartMinute, a.EndMinute
	if err := a.transition(StatusRescheduled, by); err != nil {
		return err
	}
	a.OriginalDate = &prevDate
	a.OriginalStartMinute = &prevStart
	a.OriginalEndMinute = &prevEnd
	a.Date = availability.Day(date)
	a.StartMinute = slot.Start
	a.EndMinute = slot.End
	a.RescheduleReason = reason
	a.RescheduledBy = &by
	a.RescheduledAt = &at
	a.RescheduleCount++
	return nil
}

// FormatNumber renders the n-th appointment reference.
func FormatNumber(n int64) string {
	return fmt.Sprintf("APT%06d", n)
}

type CreateAppointmentCommand struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	TreatmentID    *uuid.UUID
	Date           time.Time
	Slot           availability.TimeSlot
	Type           AppointmentType
	Priority       Priority
	Notes          string
	Room           string
}

type RescheduleAppointmentCommand struct {
	Date   time.Time
	Slot   availability.TimeSlot
	Reason string
}

type UpdateStatusCommand struct {
	Status Status
	Notes  string
	Reason string
}

type ListAppointmentsQuery struct {
	PatientID      *uuid.UUID
	PractitionerID *uuid.UUID
	Status         *Status
	Type           *AppointmentType
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
}

func (q *ListAppointmentsQuery) Normalize() {
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
}

func (q *ListAppointmentsQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}

// NewPage fills in the paging totals for one page of results.
func NewPage(list []*Appointment, total int64, q *ListAppointmentsQuery) *PagedAppointments {
	pages := 0
	if q.PageSize > 0 {
		pages = int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	}
	return &PagedAppointments{
		Appointments: list,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   pages,
	}
}
