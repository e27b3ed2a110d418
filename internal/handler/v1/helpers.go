package v1

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/internal/middleware"
	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/clock"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

type ConflictErrorResponse struct {
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	Conflicts []conflictResponse `json:"conflicts"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	var conflictErr *appointment.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, ConflictErrorResponse{
			Error:     appointment.ErrAppointmentConflict.Error(),
			Code:      "SLOT_CONFLICT",
			Conflicts: toConflicts(conflictErr.Conflicts),
		})
		return
	}

	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, appointment.ErrAppointmentConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "SLOT_CONFLICT"})

	case errors.Is(err, appointment.ErrStatusChanged):
		c.JSON(http.StatusConflict, ErrorResponse{Error: appointment.ErrStatusChanged.Error(), Code: "STATUS_CHANGED"})

	case errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, availability.ErrInvalidWorkingDay),
		errors.Is(err, clock.ErrInvalidClock),
		errors.Is(err, clock.ErrInvalidDate),
		errors.Is(err, appointment.ErrScheduledInPast),
		errors.Is(err, appointment.ErrInvalidDuration),
		errors.Is(err, appointment.ErrInvalidStatusTransition),
		errors.Is(err, appointment.ErrInvalidAppointmentType),
		errors.Is(err, appointment.ErrInvalidPriority),
		errors.Is(err, appointment.ErrOutsideWorkingHours),
		errors.Is(err, appointment.ErrBeyondAdvanceWindow):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	default:
		log.Error("unhandled service error",
			zap.Error(err),
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.RequestIDFrom(c)),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(c *gin.Context, raw, name string) (time.Time, bool) {
	d, err := clock.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name + ": expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

// parseSlot reads a start/end pair of "HH:MM" strings into a slot.
func parseSlot(c *gin.Context, start, end string) (availability.TimeSlot, bool) {
	s, err := clock.Parse(start)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid start: expected HH:MM")
		return availability.TimeSlot{}, false
	}
	e, err := clock.Parse(end)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid end: expected HH:MM")
		return availability.TimeSlot{}, false
	}
	return availability.TimeSlot{Start: s, End: e}, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

func callerFrom(c *gin.Context) (service.Caller, bool) {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return service.Caller{}, false
	}
	return service.CallerFromClaims(claims, c.ClientIP(), middleware.RequestIDFrom(c)), true
}
