package service

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/domain"
)

var ErrForbidden = errors.New("forbidden: insufficient permissions")

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// Caller is the authenticated principal on whose behalf a service method runs.
type Caller struct {
	UserID    uuid.UUID
	Role      domain.Role
	StaffID   *uuid.UUID
	PatientID *uuid.UUID
	IP        string
	RequestID string
}

func CallerFromClaims(c *domain.Claims, ip, requestID string) Caller {
	return Caller{
		UserID:    c.UserID,
		Role:      c.Role,
		StaffID:   c.StaffID,
		PatientID: c.PatientID,
		IP:        ip,
		RequestID: requestID,
	}
}

// roleSystem marks audit entries written by background jobs.
const roleSystem domain.Role = "system"

var systemCaller = Caller{Role: roleSystem}

func (c Caller) isPatient(patientID uuid.UUID) bool {
	return c.Role == domain.RolePatient && c.PatientID != nil && *c.PatientID == patientID
}

func (c Caller) isPractitioner(practitionerID uuid.UUID) bool {
	return c.Role == domain.RoleDoctor && c.StaffID != nil && *c.StaffID == practitionerID
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     domain.Role
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	Changes      map[string]any
}

func (c Caller) audit(action domain.AuditAction, resourceID string, changes map[string]any) AuditEntry {
	return AuditEntry{
		UserID:       c.UserID,
		UserRole:     c.Role,
		Action:       action,
		ResourceType: "appointment",
		ResourceID:   resourceID,
		IPAddress:    c.IP,
		RequestID:    c.RequestID,
		Changes:      changes,
	}
}
