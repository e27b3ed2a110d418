package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/prempal04/AyurSutra/internal/domain"
)

type auditDoc struct {
	ID           string    `bson:"_id"`
	OccurredAt   time.Time `bson:"occurredAt"`
	UserID       string    `bson:"userId"`
	UserRole     string    `bson:"userRole"`
	IPAddress    string    `bson:"ipAddress,omitempty"`
	Action       string    `bson:"action"`
	ResourceType string    `bson:"resourceType"`
	ResourceID   string    `bson:"resourceId,omitempty"`
	RequestID    string    `bson:"requestId,omitempty"`
	Changes      string    `bson:"changes,omitempty"`
}

type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection("audit_logs")}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	doc := auditDoc{
		ID:           entry.ID.String(),
		OccurredAt:   entry.OccurredAt,
		UserID:       entry.UserID.String(),
		UserRole:     string(entry.UserRole),
		IPAddress:    entry.IPAddress,
		Action:       string(entry.Action),
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		RequestID:    entry.RequestID,
		Changes:      entry.Changes,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}
