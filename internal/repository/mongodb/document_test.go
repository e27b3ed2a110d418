package mongodb

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
)

func TestToDoc_HoldsSlot(t *testing.T) {
	a := &appointment.Appointment{
		ID:             uuid.New(),
		PractitionerID: uuid.New(),
		PatientID:      uuid.New(),
		CreatedBy:      uuid.New(),
		Date:           time.Date(2026, 10, 15, 18, 30, 0, 0, time.UTC),
		StartMinute:    600,
		EndMinute:      660,
	}
	cases := []struct {
		status  availability.Status
		deleted bool
		want    bool
	}{
		{appointment.StatusScheduled, false, true},
		{appointment.StatusRescheduled, false, true},
		{appointment.StatusInProgress, false, true},
		{appointment.StatusCancelled, false, false},
		{appointment.StatusNoShow, false, false},
		{appointment.StatusConfirmed, true, false},
	}
	for _, tc := range cases {
		a.Status = tc.status
		a.DeletedAt = nil
		if tc.deleted {
			now := time.Now()
			a.DeletedAt = &now
		}
		if got := toDoc(a).HoldsSlot; got != tc.want {
			t.Errorf("status=%s deleted=%v: holdsSlot=%v, want %v", tc.status, tc.deleted, got, tc.want)
		}
	}
}

func TestDoc_RestoresAppointment(t *testing.T) {
	by := uuid.New()
	orig := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	start, end := 540, 570
	a := &appointment.Appointment{
		ID:                  uuid.New(),
		AppointmentNumber:   "APT000007",
		PractitionerID:      uuid.New(),
		PatientID:           uuid.New(),
		CreatedBy:           by,
		Date:                time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
		StartMinute:         600,
		EndMinute:           660,
		Type:                appointment.TypeTreatment,
		Priority:            appointment.PriorityHigh,
		Status:              appointment.StatusRescheduled,
		OriginalDate:        &orig,
		OriginalStartMinute: &start,
		OriginalEndMinute:   &end,
		RescheduledBy:       &by,
	}

	d := toDoc(a)
	if d.Date != "2026-10-15" || d.OriginalDate != "2026-10-14" || d.TreatmentID != "" {
		t.Errorf("unexpected document %+v", d)
	}

	got, err := d.toDomain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != a.ID || !got.Date.Equal(a.Date) || got.Slot() != a.Slot() || got.Status != a.Status {
		t.Errorf("restored %+v", got)
	}
	if got.OriginalDate == nil || !got.OriginalDate.Equal(orig) || got.RescheduledBy == nil || *got.RescheduledBy != by {
		t.Errorf("reschedule fields lost: %+v", got)
	}
	if got.TreatmentID != nil || got.CancelledBy != nil {
		t.Errorf("empty optional ids decoded as set")
	}
}

func TestDoc_BadID(t *testing.T) {
	d := &appointmentDoc{ID: "not-a-uuid", Date: "2026-10-15"}
	if _, err := d.toDomain(); err == nil {
		t.Error("expected an error")
	}
}
