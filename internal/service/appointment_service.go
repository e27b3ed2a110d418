package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

const (
	minDurationMins = 5
	maxDurationMins = 480
)

type AppointmentService struct {
	repo     appointment.Repository
	avail    *AvailabilityService
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewAppointmentService(
	repo appointment.Repository,
	avail *AvailabilityService,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{repo: repo, avail: avail, auditSvc: auditSvc, metrics: m, log: log}
}

func (s *AppointmentService) ScheduleAppointment(ctx context.Context, cmd *appointment.CreateAppointmentCommand, caller Caller) (*appointment.Appointment, error) {
	ctx, span := s.avail.tracer.Start(ctx, "AppointmentService.ScheduleAppointment", dayAttrs(cmd.PractitionerID, cmd.Date))
	defer span.End()

	if caller.Role == domain.RolePatient && !caller.isPatient(cmd.PatientID) {
		return nil, ErrForbidden
	}

	// -------- Input Validation -----------
	if cmd.Type == "" {
		cmd.Type = appointment.TypeConsultation
	}
	if cmd.Priority == "" {
		cmd.Priority = appointment.PriorityNormal
	}
	if !cmd.Type.IsValid() {
		return nil, appointment.ErrInvalidAppointmentType
	}
	if !cmd.Priority.IsValid() {
		return nil, appointment.ErrInvalidPriority
	}
	var fields []string
	if cmd.PatientID == uuid.Nil {
		fields = append(fields, "patient_id is required")
	}
	if cmd.PractitionerID == uuid.Nil {
		fields = append(fields, "practitioner_id is required")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if err := s.validateSlot(cmd.PractitionerID, cmd.Date, cmd.Slot); err != nil {
		return nil, err
	}

	// Descriptive pre-check; the store repeats it atomically on insert.
	res, err := s.avail.CheckAvailability(ctx, cmd.PractitionerID, cmd.Date, cmd.Slot)
	if err != nil {
		return nil, fmt.Errorf("checking availability: %w", err)
	}
	if !res.Available {
		s.metrics.BookingConflicts.Inc()
		return nil, &appointment.ConflictError{Conflicts: res.Conflicts}
	}

	a := &appointment.Appointment{
		PatientID:      cmd.PatientID,
		PractitionerID: cmd.PractitionerID,
		TreatmentID:    cmd.TreatmentID,
		Date:           availability.Day(cmd.Date),
		StartMinute:    cmd.Slot.Start,
		EndMinute:      cmd.Slot.End,
		Type:           cmd.Type,
		Priority:       cmd.Priority,
		Status:         appointment.StatusScheduled,
		Notes:          cmd.Notes,
		Room:           cmd.Room,
		CreatedBy:      caller.UserID,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, appointment.ErrAppointmentConflict) {
			s.metrics.BookingConflicts.Inc()
			return nil, err
		}
		span.RecordError(err)
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	span.SetAttributes(attribute.String("appointment.id", a.ID.String()))
	s.avail.invalidate(ctx, a.PractitionerID, a.Date)
	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	s.auditSvc.LogAsync(ctx, caller.audit(domain.ActionCreate, a.ID.String(), map[string]any{
		"number": a.AppointmentNumber,
		"date":   a.Date.Format(time.DateOnly),
		"slot":   a.Slot().String(),
	}))
	s.log.Info("appointment scheduled",
		zap.String("appointment_id", a.ID.String()),
		zap.String("number", a.AppointmentNumber),
		zap.String("practitioner_id", a.PractitionerID.String()),
		zap.Stringer("slot", a.Slot()),
	)

	return a, nil
}

// validateSlot applies the booking rules that do not depend on other
// bookings: a well-formed interval of sane length, not in the past, inside
// the advance window and inside the practitioner's hours on an open day.
func (s *AppointmentService) validateSlot(practitionerID uuid.UUID, date time.Time, slot availability.TimeSlot) error {
	if err := slot.Validate(); err != nil {
		return err
	}
	if mins := slot.End - slot.Start; mins < minDurationMins || mins > maxDurationMins {
		return appointment.ErrInvalidDuration
	}

	now := s.avail.now()
	day := availability.Day(date)
	if start, _ := slot.On(day, s.avail.schedule.Location()); start.Before(now) {
		return appointment.ErrScheduledInPast
	}
	if day.After(s.avail.schedule.Today(now).AddDate(0, 0, s.avail.schedule.MaxAdvanceDays())) {
		return appointment.ErrBeyondAdvanceWindow
	}

	wd := s.avail.schedule.WorkingDay(practitionerID, day)
	if wd.Closed || !slot.Within(wd.Hours()) {
		return appointment.ErrOutsideWorkingHours
	}
	return nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id uuid.UUID, caller Caller) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, a) {
		return nil, ErrForbidden
	}

	s.auditSvc.LogAsync(ctx, caller.audit(domain.ActionRead, id.String(), nil))
	return a, nil
}

func (s *AppointmentService) ListAppointments(ctx context.Context, q *appointment.ListAppointmentsQuery, caller Caller) (*appointment.PagedAppointments, error) {
	switch caller.Role {
	case domain.RolePatient:
		// Patients can only see their own appointments
		if caller.PatientID == nil {
			return nil, ErrForbidden
		}
		q.PatientID = caller.PatientID
	case domain.RoleDoctor:
		if caller.StaffID == nil {
			return nil, ErrForbidden
		}
		q.PractitionerID = caller.StaffID
	}
	q.Normalize()
	return s.repo.List(ctx, q)
}

func canView(c Caller, a *appointment.Appointment) bool {
	switch c.Role {
	case domain.RoleAdmin, domain.RoleReceptionist:
		return true
	case domain.RoleDoctor:
		return c.isPractitioner(a.PractitionerID)
	case domain.RolePatient:
		return c.isPatient(a.PatientID)
	}
	return false
}

// canManage covers every change except a patient cancelling their own booking.
func canManage(c Caller, a *appointment.Appointment) bool {
	return c.Role != domain.RolePatient && canView(c, a)
}

// transition loads an appointment, applies change and persists the result.
func (s *AppointmentService) transition(
	ctx context.Context,
	id uuid.UUID,
	caller Caller,
	allowed func(Caller, *appointment.Appointment) bool,
	change func(*appointment.Appointment, time.Time) error,
	details map[string]any,
) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(caller, a) {
		return nil, ErrForbidden
	}

	from := a.Status
	if err := change(a, s.avail.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, a, from); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	if !a.IsOccupying() {
		s.avail.invalidate(ctx, a.PractitionerID, a.Date)
	}
	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()

	changes := map[string]any{"from": from, "to": a.Status}
	for k, v := range details {
		changes[k] = v
	}
	s.auditSvc.LogAsync(ctx, caller.audit(domain.ActionUpdate, id.String(), changes))
	s.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(a.Status)),
	)
	return a, nil
}

func (s *AppointmentService) ConfirmAppointment(ctx context.Context, id uuid.UUID, caller Caller) (*appointment.Appointment, error) {
	return s.transition(ctx, id, caller, canManage, func(a *appointment.Appointment, now time.Time) error {
		return a.Confirm(caller.UserID, now)
	}, nil)
}

func (s *AppointmentService) StartAppointment(ctx context.Context, id uuid.UUID, caller Caller) (*appointment.Appointment, error) {
	return s.transition(ctx, id, caller, canManage, func(a *appointment.Appointment, now time.Time) error {
		return a.Start(caller.UserID, now)
	}, nil)
}

func (s *AppointmentService) CompleteAppointment(ctx context.Context, id uuid.UUID, notes string, caller Caller) (*appointment.Appointment, error) {
	return s.transition(ctx, id, caller, canManage, func(a *appointment.Appointment, now time.Time) error {
		return a.Complete(notes, caller.UserID, now)
	}, nil)
}

// CancelAppointment is open to patients for their own appointments.
func (s *AppointmentService) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, caller Caller) (*appointment.Appointment, error) {
	return s.transition(ctx, id, caller, canView, func(a *appointment.Appointment, now time.Time) error {
		return a.Cancel(reason, caller.UserID, now)
	}, map[string]any{"reason": reason})
}

func (s *AppointmentService) MarkNoShow(ctx context.Context, id uuid.UUID, caller Caller) (*appointment.Appointment, error) {
	return s.transition(ctx, id, caller, canManage, func(a *appointment.Appointment, now time.Time) error {
		return a.MarkNoShow(caller.UserID, now)
	}, nil)
}

// UpdateStatus dispatches a requested status to the matching transition.
// Moving an appointment goes through RescheduleAppointment instead.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id uuid.UUID, cmd *appointment.UpdateStatusCommand, caller Caller) (*appointment.Appointment, error) {
	switch cmd.Status {
	case appointment.StatusConfirmed:
		return s.ConfirmAppointment(ctx, id, caller)
	case appointment.StatusInProgress:
		return s.StartAppointment(ctx, id, caller)
	case appointment.StatusCompleted:
		return s.CompleteAppointment(ctx, id, cmd.Notes, caller)
	case appointment.StatusCancelled:
		return s.CancelAppointment(ctx, id, cmd.Reason, caller)
	case appointment.StatusNoShow:
		return s.MarkNoShow(ctx, id, caller)
	case appointment.StatusRescheduled:
		return nil, &ValidationError{Fields: []string{"status: use the reschedule endpoint with a new date and time"}}
	case appointment.StatusScheduled:
		return nil, fmt.Errorf("%w: cannot return to %s", appointment.ErrInvalidStatusTransition, cmd.Status)
	}
	return nil, &ValidationError{Fields: []string{fmt.Sprintf("status: unknown value %q", cmd.Status)}}
}

func (s *AppointmentService) RescheduleAppointment(ctx context.Context, id uuid.UUID, cmd *appointment.RescheduleAppointmentCommand, caller Caller) (*appointment.Appointment, error) {
	ctx, span := s.avail.tracer.Start(ctx, "AppointmentService.RescheduleAppointment", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer span.End()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(caller, a) {
		return nil, ErrForbidden
	}
	if !a.CanTransitionTo(appointment.StatusRescheduled) {
		return nil, fmt.Errorf("%w: %s to %s", appointment.ErrInvalidStatusTransition, a.Status, appointment.StatusRescheduled)
	}
	if err := s.validateSlot(a.PractitionerID, cmd.Date, cmd.Slot); err != nil {
		return nil, err
	}

	res, err := s.avail.CheckAvailability(ctx, a.PractitionerID, cmd.Date, cmd.Slot)
	if err != nil {
		return nil, fmt.Errorf("checking availability: %w", err)
	}
	if conflicts := withoutBooking(res.Conflicts, a.ID); len(conflicts) > 0 {
		s.metrics.BookingConflicts.Inc()
		return nil, &appointment.ConflictError{Conflicts: conflicts}
	}

	oldDate, from := a.Date, a.Status
	if err := a.Reschedule(cmd.Date, cmd.Slot, cmd.Reason, caller.UserID, s.avail.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Reschedule(ctx, a, from); err != nil {
		if errors.Is(err, appointment.ErrAppointmentConflict) {
			s.metrics.BookingConflicts.Inc()
			return nil, err
		}
		span.RecordError(err)
		return nil, fmt.Errorf("rescheduling appointment: %w", err)
	}

	s.avail.invalidate(ctx, a.PractitionerID, oldDate, a.Date)
	s.metrics.AppointmentsTotal.WithLabelValues(string(a.Status)).Inc()
	s.auditSvc.LogAsync(ctx, caller.audit(domain.ActionReschedule, id.String(), map[string]any{
		"from_date": oldDate.Format(time.DateOnly),
		"from_slot": fmt.Sprintf("[%d,%d)", *a.OriginalStartMinute, *a.OriginalEndMinute),
		"to_date":   a.Date.Format(time.DateOnly),
		"to_slot":   a.Slot().String(),
		"reason":    cmd.Reason,
	}))
	return a, nil
}

func withoutBooking(conflicts []availability.BookingWindow, id uuid.UUID) []availability.BookingWindow {
	out := conflicts[:0:0]
	for _, c := range conflicts {
		if c.BookingID != id {
			out = append(out, c)
		}
	}
	return out
}

// DeleteAppointment soft-deletes; reserved for admins and the appointment's
// practitioner.
func (s *AppointmentService) DeleteAppointment(ctx context.Context, id uuid.UUID, caller Caller) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if caller.Role != domain.RoleAdmin && !caller.isPractitioner(a.PractitionerID) {
		return ErrForbidden
	}
	if err := s.repo.SoftDelete(ctx, id, caller.UserID); err != nil {
		return err
	}

	s.avail.invalidate(ctx, a.PractitionerID, a.Date)
	s.auditSvc.LogAsync(ctx, caller.audit(domain.ActionDelete, id.String(), nil))
	return nil
}
