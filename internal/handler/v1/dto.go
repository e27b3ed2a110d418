package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/clock"
)

type slotResponse struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

func toSlot(s availability.TimeSlot) slotResponse {
	return slotResponse{
		Start:       clock.Format(s.Start),
		End:         clock.Format(s.End),
		StartMinute: s.Start,
		EndMinute:   s.End,
	}
}

func toSlots(slots []availability.TimeSlot) []slotResponse {
	out := make([]slotResponse, len(slots))
	for i, s := range slots {
		out[i] = toSlot(s)
	}
	return out
}

type conflictResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Date          string    `json:"date"`
	Status        string    `json:"status"`
	slotResponse
}

func toConflicts(windows []availability.BookingWindow) []conflictResponse {
	out := make([]conflictResponse, len(windows))
	for i, w := range windows {
		out[i] = conflictResponse{
			AppointmentID: w.BookingID,
			Date:          clock.FormatDate(w.Date),
			Status:        string(w.Status),
			slotResponse:  toSlot(w.Slot),
		}
	}
	return out
}

type freeSlotsResponse struct {
	PractitionerID uuid.UUID      `json:"practitioner_id"`
	Date           string         `json:"date"`
	Slots          []slotResponse `json:"slots"`
}

type checkResponse struct {
	Available bool               `json:"available"`
	Slot      slotResponse       `json:"slot"`
	Conflicts []conflictResponse `json:"conflicts"`
}

type daySummaryResponse struct {
	PractitionerID uuid.UUID     `json:"practitioner_id"`
	Date           string        `json:"date"`
	Closed         bool          `json:"closed"`
	Hours          *slotResponse `json:"hours,omitempty"`
	Granularity    int           `json:"granularity_minutes,omitempty"`
	Occupying      int           `json:"occupying"`
	Terminal       int           `json:"terminal"`
	FreeSlots      int           `json:"free_slots"`
	TotalSlots     int           `json:"total_slots"`
	FullyBooked    bool          `json:"fully_booked"`
}

func toDaySummary(s *service.DaySummary) daySummaryResponse {
	out := daySummaryResponse{
		PractitionerID: s.PractitionerID,
		Date:           clock.FormatDate(s.Date),
		Closed:         s.WorkingDay.Closed,
		Occupying:      s.Occupying,
		Terminal:       s.Terminal,
		FreeSlots:      s.FreeSlots,
		TotalSlots:     s.TotalSlots,
		FullyBooked:    s.FullyBooked,
	}
	if !s.WorkingDay.Closed {
		hours := toSlot(s.WorkingDay.Hours())
		out.Hours = &hours
		out.Granularity = s.WorkingDay.GranularityMinutes
	}
	return out
}

type createAppointmentRequest struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	PractitionerID uuid.UUID  `json:"practitioner_id"`
	TreatmentID    *uuid.UUID `json:"treatment_id"`
	Date           string     `json:"date" binding:"required"`
	Start          string     `json:"start" binding:"required"`
	End            string     `json:"end" binding:"required"`
	Type           string     `json:"type"`
	Priority       string     `json:"priority"`
	Notes          string     `json:"notes" binding:"max=2000"`
	Room           string     `json:"room" binding:"max=50"`
}

type rescheduleRequest struct {
	Date   string `json:"date" binding:"required"`
	Start  string `json:"start" binding:"required"`
	End    string `json:"end" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes" binding:"max=2000"`
	Reason string `json:"reason" binding:"max=500"`
}

type appointmentResponse struct {
	ID                uuid.UUID  `json:"id"`
	AppointmentNumber string     `json:"appointment_number"`
	PatientID         uuid.UUID  `json:"patient_id"`
	PractitionerID    uuid.UUID  `json:"practitioner_id"`
	TreatmentID       *uuid.UUID `json:"treatment_id,omitempty"`
	Date              string     `json:"date"`
	slotResponse
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
	Notes    string `json:"notes,omitempty"`
	Room     string `json:"room,omitempty"`

	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CompletionNotes    string     `json:"completion_notes,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	NoShowAt           *time.Time `json:"no_show_at,omitempty"`

	Rescheduled *rescheduleInfo `json:"rescheduled,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type rescheduleInfo struct {
	OriginalDate string       `json:"original_date"`
	Original     slotResponse `json:"original"`
	Reason       string       `json:"reason,omitempty"`
	At           *time.Time   `json:"at,omitempty"`
	Count        int          `json:"count"`
}

func toAppointment(a *appointment.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:                 a.ID,
		AppointmentNumber:  a.AppointmentNumber,
		PatientID:          a.PatientID,
		PractitionerID:     a.PractitionerID,
		TreatmentID:        a.TreatmentID,
		Date:               clock.FormatDate(a.Date),
		slotResponse:       toSlot(a.Slot()),
		Type:               string(a.Type),
		Priority:           string(a.Priority),
		Status:             string(a.Status),
		Notes:              a.Notes,
		Room:               a.Room,
		ConfirmedAt:        a.ConfirmedAt,
		StartedAt:          a.StartedAt,
		CompletedAt:        a.CompletedAt,
		CompletionNotes:    a.CompletionNotes,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		NoShowAt:           a.NoShowAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if a.OriginalDate != nil && a.OriginalStartMinute != nil && a.OriginalEndMinute != nil {
		out.Rescheduled = &rescheduleInfo{
			OriginalDate: clock.FormatDate(*a.OriginalDate),
			Original:     toSlot(availability.TimeSlot{Start: *a.OriginalStartMinute, End: *a.OriginalEndMinute}),
			Reason:       a.RescheduleReason,
			At:           a.RescheduledAt,
			Count:        a.RescheduleCount,
		}
	}
	return out
}

type pageResponse struct {
	Appointments []appointmentResponse `json:"appointments"`
	TotalCount   int64                 `json:"total_count"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
	TotalPages   int                   `json:"total_pages"`
}

func toPage(p *appointment.PagedAppointments) pageResponse {
	out := pageResponse{
		Appointments: make([]appointmentResponse, len(p.Appointments)),
		TotalCount:   p.TotalCount,
		Page:         p.Page,
		PageSize:     p.PageSize,
		TotalPages:   p.TotalPages,
	}
	for i, a := range p.Appointments {
		out.Appointments[i] = toAppointment(a)
	}
	return out
}
