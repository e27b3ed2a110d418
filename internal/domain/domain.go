package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RolePatient      Role = "patient"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleReceptionist, RolePatient:
		return true
	}
	return false
}

// IsStaff reports whether r works at the clinic rather than visiting it.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleDoctor || r == RoleReceptionist
}

type AuditAction string

const (
	ActionCreate     AuditAction = "create"
	ActionRead       AuditAction = "read"
	ActionUpdate     AuditAction = "update"
	ActionDelete     AuditAction = "delete"
	ActionReschedule AuditAction = "reschedule"
	ActionSweep      AuditAction = "sweep"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who. UserID is uuid.Nil for system jobs.
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(30);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID string `gorm:"column:request_id;type:varchar(50);index"`

	Changes string `gorm:"column:changes;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

// Claims is the verified identity carried by an access token.
type Claims struct {
	UserID    uuid.UUID  `json:"sub"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	StaffID   *uuid.UUID `json:"staff_id,omitempty"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
}

// PractitionerID is the staff record of a doctor, or nil for other roles.
func (c *Claims) PractitionerID() *uuid.UUID {
	if c.Role != RoleDoctor {
		return nil
	}
	return c.StaffID
}
