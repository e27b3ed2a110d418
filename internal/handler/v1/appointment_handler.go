package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/internal/service"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
	log *zap.Logger
}

func NewAppointmentHandler(svc *service.AppointmentService, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, log: log}
}

// Create godoc
// POST /api/v1/appointments
func (h *AppointmentHandler) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}
	date, ok := parseDate(c, req.Date, "date")
	if !ok {
		return
	}
	slot, ok := parseSlot(c, req.Start, req.End)
	if !ok {
		return
	}

	a, err := h.svc.ScheduleAppointment(c.Request.Context(), &appointment.CreateAppointmentCommand{
		PatientID:      req.PatientID,
		PractitionerID: req.PractitionerID,
		TreatmentID:    req.TreatmentID,
		Date:           date,
		Slot:           slot,
		Type:           appointment.AppointmentType(req.Type),
		Priority:       appointment.Priority(req.Priority),
		Notes:          req.Notes,
		Room:           req.Room,
	}, caller)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondCreated(c, toAppointment(a))
}

// List godoc
// GET /api/v1/appointments
func (h *AppointmentHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	for key, dst := range map[string]**uuid.UUID{"patient_id": &q.PatientID, "practitioner_id": &q.PractitionerID} {
		if raw := c.Query(key); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid "+key+": must be a valid UUID")
				return
			}
			*dst = &id
		}
	}
	if raw := c.Query("status"); raw != "" {
		status := appointment.Status(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status")
			return
		}
		q.Status = &status
	}
	if raw := c.Query("type"); raw != "" {
		typ := appointment.AppointmentType(raw)
		if !typ.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid type")
			return
		}
		q.Type = &typ
	}
	if raw := c.Query("date"); raw != "" {
		d, ok := parseDate(c, raw, "date")
		if !ok {
			return
		}
		q.DateFrom, q.DateTo = &d, &d
	}
	if raw := c.Query("date_from"); raw != "" {
		d, ok := parseDate(c, raw, "date_from")
		if !ok {
			return
		}
		q.DateFrom = &d
	}
	if raw := c.Query("date_to"); raw != "" {
		d, ok := parseDate(c, raw, "date_to")
		if !ok {
			return
		}
		q.DateTo = &d
	}

	page, err := h.svc.ListAppointments(c.Request.Context(), q, caller)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, toPage(page))
}

// Get godoc
// GET /api/v1/appointments/:id
func (h *AppointmentHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.GetAppointment(c.Request.Context(), id, caller)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, toAppointment(a))
}

// Reschedule godoc
// PUT /api/v1/appointments/:id/reschedule
func (h *AppointmentHandler) Reschedule(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	date, ok := parseDate(c, req.Date, "date")
	if !ok {
		return
	}
	slot, ok := parseSlot(c, req.Start, req.End)
	if !ok {
		return
	}

	a, err := h.svc.RescheduleAppointment(c.Request.Context(), id, &appointment.RescheduleAppointmentCommand{
		Date:   date,
		Slot:   slot,
		Reason: req.Reason,
	}, caller)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, toAppointment(a))
}

// UpdateStatus godoc
// PATCH /api/v1/appointments/:id/status
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.UpdateStatus(c.Request.Context(), id, &appointment.UpdateStatusCommand{
		Status: appointment.Status(req.Status),
		Notes:  req.Notes,
		Reason: req.Reason,
	}, caller)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, toAppointment(a))
}

// Delete godoc
// DELETE /api/v1/appointments/:id
func (h *AppointmentHandler) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteAppointment(c.Request.Context(), id, caller); err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
