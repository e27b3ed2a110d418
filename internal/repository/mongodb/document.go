package mongodb

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
)

const dateLayout = time.DateOnly

// appointmentDoc is the stored shape of an appointment. Identifiers are kept
// as strings and dates as YYYY-MM-DD so that documents sort and compare
// naturally in queries.
type appointmentDoc struct {
	ID                string `bson:"_id"`
	AppointmentNumber string `bson:"appointmentNumber"`
	PatientID         string `bson:"patientId"`
	PractitionerID    string `bson:"practitionerId"`
	TreatmentID       string `bson:"treatmentId,omitempty"`

	Date        string `bson:"date"`
	StartMinute int    `bson:"startMinute"`
	EndMinute   int    `bson:"endMinute"`
	// HoldsSlot is true while the appointment is live and occupying; the
	// partial unique index keys on it.
	HoldsSlot bool `bson:"holdsSlot"`

	Type     string `bson:"type"`
	Priority string `bson:"priority"`
	Status   string `bson:"status"`
	Notes    string `bson:"notes,omitempty"`
	Room     string `bson:"room,omitempty"`

	ConfirmedAt *time.Time `bson:"confirmedAt,omitempty"`
	StartedAt   *time.Time `bson:"startedAt,omitempty"`

	CancelledAt        *time.Time `bson:"cancelledAt,omitempty"`
	CancellationReason string     `bson:"cancellationReason,omitempty"`
	CancelledBy        string     `bson:"cancelledBy,omitempty"`

	OriginalDate        string     `bson:"originalDate,omitempty"`
	OriginalStartMinute *int       `bson:"originalStartMinute,omitempty"`
	OriginalEndMinute   *int       `bson:"originalEndMinute,omitempty"`
	RescheduleReason    string     `bson:"rescheduleReason,omitempty"`
	RescheduledBy       string     `bson:"rescheduledBy,omitempty"`
	RescheduledAt       *time.Time `bson:"rescheduledAt,omitempty"`
	RescheduleCount     int        `bson:"rescheduleCount"`

	CompletedAt     *time.Time `bson:"completedAt,omitempty"`
	CompletionNotes string     `bson:"completionNotes,omitempty"`
	NoShowAt        *time.Time `bson:"noShowAt,omitempty"`

	CreatedBy string     `bson:"createdBy"`
	UpdatedBy string     `bson:"updatedBy,omitempty"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty"`
}

func toDoc(a *appointment.Appointment) *appointmentDoc {
	d := &appointmentDoc{
		ID:                  a.ID.String(),
		AppointmentNumber:   a.AppointmentNumber,
		PatientID:           a.PatientID.String(),
		PractitionerID:      a.PractitionerID.String(),
		TreatmentID:         optionalID(a.TreatmentID),
		Date:                formatDate(a.Date),
		StartMinute:         a.StartMinute,
		EndMinute:           a.EndMinute,
		HoldsSlot:           a.DeletedAt == nil && a.IsOccupying(),
		Type:                string(a.Type),
		Priority:            string(a.Priority),
		Status:              string(a.Status),
		Notes:               a.Notes,
		Room:                a.Room,
		ConfirmedAt:         a.ConfirmedAt,
		StartedAt:           a.StartedAt,
		CancelledAt:         a.CancelledAt,
		CancellationReason:  a.CancellationReason,
		CancelledBy:         optionalID(a.CancelledBy),
		OriginalStartMinute: a.OriginalStartMinute,
		OriginalEndMinute:   a.OriginalEndMinute,
		RescheduleReason:    a.RescheduleReason,
		RescheduledBy:       optionalID(a.RescheduledBy),
		RescheduledAt:       a.RescheduledAt,
		RescheduleCount:     a.RescheduleCount,
		CompletedAt:         a.CompletedAt,
		CompletionNotes:     a.CompletionNotes,
		NoShowAt:            a.NoShowAt,
		CreatedBy:           a.CreatedBy.String(),
		UpdatedBy:           optionalID(a.UpdatedBy),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
		DeletedAt:           a.DeletedAt,
	}
	if a.OriginalDate != nil {
		d.OriginalDate = formatDate(*a.OriginalDate)
	}
	return d
}

func (d *appointmentDoc) toDomain() (*appointment.Appointment, error) {
	a := &appointment.Appointment{
		AppointmentNumber:   d.AppointmentNumber,
		StartMinute:         d.StartMinute,
		EndMinute:           d.EndMinute,
		Type:                appointment.AppointmentType(d.Type),
		Priority:            appointment.Priority(d.Priority),
		Status:              availability.Status(d.Status),
		Notes:               d.Notes,
		Room:                d.Room,
		ConfirmedAt:         d.ConfirmedAt,
		StartedAt:           d.StartedAt,
		CancelledAt:         d.CancelledAt,
		CancellationReason:  d.CancellationReason,
		OriginalStartMinute: d.OriginalStartMinute,
		OriginalEndMinute:   d.OriginalEndMinute,
		RescheduleReason:    d.RescheduleReason,
		RescheduledAt:       d.RescheduledAt,
		RescheduleCount:     d.RescheduleCount,
		CompletedAt:         d.CompletedAt,
		CompletionNotes:     d.CompletionNotes,
		NoShowAt:            d.NoShowAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		DeletedAt:           d.DeletedAt,
	}

	var err error
	if a.ID, err = uuid.Parse(d.ID); err != nil {
		return nil, fmt.Errorf("decoding appointment id %q: %w", d.ID, err)
	}
	if a.PatientID, err = uuid.Parse(d.PatientID); err != nil {
		return nil, fmt.Errorf("decoding patient id of %s: %w", d.ID, err)
	}
	if a.PractitionerID, err = uuid.Parse(d.PractitionerID); err != nil {
		return nil, fmt.Errorf("decoding practitioner id of %s: %w", d.ID, err)
	}
	if a.CreatedBy, err = uuid.Parse(d.CreatedBy); err != nil {
		return nil, fmt.Errorf("decoding creator of %s: %w", d.ID, err)
	}
	if a.Date, err = time.Parse(dateLayout, d.Date); err != nil {
		return nil, fmt.Errorf("decoding date of %s: %w", d.ID, err)
	}
	if d.OriginalDate != "" {
		od, err := time.Parse(dateLayout, d.OriginalDate)
		if err != nil {
			return nil, fmt.Errorf("decoding original date of %s: %w", d.ID, err)
		}
		a.OriginalDate = &od
	}
	a.TreatmentID = parseOptionalID(d.TreatmentID)
	a.CancelledBy = parseOptionalID(d.CancelledBy)
	a.RescheduledBy = parseOptionalID(d.RescheduledBy)
	a.UpdatedBy = parseOptionalID(d.UpdatedBy)
	return a, nil
}

func formatDate(t time.Time) string {
	return availability.Day(t).Format(dateLayout)
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func parseOptionalID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
