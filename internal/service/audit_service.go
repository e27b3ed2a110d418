package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

type AuditService struct {
	repo    AuditRepository
	log     *zap.Logger
	metrics *metrics.Collector
	entries chan *domain.AuditLog
	done    chan struct{}
}

const auditBufferSize = 10_000

func NewAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger) *AuditService {
	return newAuditService(repo, m, log, auditBufferSize)
}

func newAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger, size int) *AuditService {
	svc := &AuditService{
		repo:    repo,
		log:     log,
		metrics: m,
		entries: make(chan *domain.AuditLog, size),
		done:    make(chan struct{}),
	}
	go svc.worker()
	return svc
}

// LogAsync enqueues an audit entry for async persistence.
// If the buffer is full, the entry is dropped and a warning is emitted.
func (s *AuditService) LogAsync(_ context.Context, entry AuditEntry) {
	al := &domain.AuditLog{
		UserID:       entry.UserID,
		UserRole:     entry.UserRole,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		Changes:      "{}",
	}
	if len(entry.Changes) > 0 {
		if raw, err := json.Marshal(entry.Changes); err == nil {
			al.Changes = string(raw)
		}
	}

	select {
	case s.entries <- al:
	default:
		s.metrics.AuditBufferDropped.Inc()
		s.log.Warn("audit log buffer full, dropping entry",
			zap.String("action", string(entry.Action)),
			zap.String("resource", entry.ResourceType),
		)
	}
}

// Shutdown drains the buffer. LogAsync must not be called afterwards.
func (s *AuditService) Shutdown() {
	close(s.entries)
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("audit service shutdown timed out; some entries may be lost")
	}
}

func (s *AuditService) worker() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Error("failed to persist audit log", zap.Error(err))
		} else {
			s.metrics.AuditEntriesTotal.Inc()
		}
		cancel()
	}
}
