package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/clock"
)

type AvailabilityHandler struct {
	svc *service.AvailabilityService
	log *zap.Logger
}

func NewAvailabilityHandler(svc *service.AvailabilityService, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, log: log}
}

func (h *AvailabilityHandler) practitionerDay(c *gin.Context) (uuid.UUID, string, bool) {
	pid, ok := parseUUID(c, "practitionerId")
	if !ok {
		return uuid.Nil, "", false
	}
	return pid, c.Param("date"), true
}

// FreeSlots godoc
// GET /api/v1/availability/:practitionerId/:date
func (h *AvailabilityHandler) FreeSlots(c *gin.Context) {
	pid, raw, ok := h.practitionerDay(c)
	if !ok {
		return
	}
	date, ok := parseDate(c, raw, "date")
	if !ok {
		return
	}

	slots, err := h.svc.ListFreeSlots(c.Request.Context(), pid, date)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, freeSlotsResponse{
		PractitionerID: pid,
		Date:           clock.FormatDate(date),
		Slots:          toSlots(slots),
	})
}

// Check godoc
// GET /api/v1/availability/:practitionerId/:date/check?start=HH:MM&end=HH:MM
func (h *AvailabilityHandler) Check(c *gin.Context) {
	pid, raw, ok := h.practitionerDay(c)
	if !ok {
		return
	}
	date, ok := parseDate(c, raw, "date")
	if !ok {
		return
	}
	slot, ok := parseSlot(c, c.Query("start"), c.Query("end"))
	if !ok {
		return
	}

	res, err := h.svc.CheckAvailability(c.Request.Context(), pid, date, slot)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, checkResponse{
		Available: res.Available,
		Slot:      toSlot(slot),
		Conflicts: toConflicts(res.Conflicts),
	})
}

// Summary godoc
// GET /api/v1/availability/:practitionerId/:date/summary
func (h *AvailabilityHandler) Summary(c *gin.Context) {
	pid, raw, ok := h.practitionerDay(c)
	if !ok {
		return
	}
	date, ok := parseDate(c, raw, "date")
	if !ok {
		return
	}

	sum, err := h.svc.DaySummary(c.Request.Context(), pid, date)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}
	respondOK(c, toDaySummary(sum))
}
