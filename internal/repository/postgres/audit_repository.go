package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/prempal04/AyurSutra/internal/domain"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if entry.Changes == "" {
		entry.Changes = "{}"
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}
