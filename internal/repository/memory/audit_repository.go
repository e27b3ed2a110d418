package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/domain"
)

type AuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	r.entries = append(r.entries, *entry)
	return nil
}

// Entries returns a copy of everything written so far, oldest first.
func (r *AuditRepository) Entries() []domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditLog(nil), r.entries...)
}
