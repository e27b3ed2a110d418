package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/pkg/clock"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

const sweepBatchSize = 500

// NoShowSweeper marks scheduled or confirmed appointments that ended more
// than grace ago as no-shows.
type NoShowSweeper struct {
	repo     appointment.Repository
	avail    *AvailabilityService
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
	grace    time.Duration
}

func NewNoShowSweeper(
	repo appointment.Repository,
	avail *AvailabilityService,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
	grace time.Duration,
) *NoShowSweeper {
	return &NoShowSweeper{repo: repo, avail: avail, auditSvc: auditSvc, metrics: m, log: log, grace: grace}
}

// Sweep runs one pass and returns how many appointments it marked.
func (s *NoShowSweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := s.avail.tracer.Start(ctx, "NoShowSweeper.Sweep")
	defer span.End()

	cutoff := s.avail.now().Add(-s.grace).In(s.avail.schedule.Location())
	day := s.avail.schedule.Today(cutoff)

	overdue, err := s.repo.ListOverdue(ctx, day, clock.MinuteOf(cutoff), sweepBatchSize)
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues("error").Inc()
		span.RecordError(err)
		return 0, fmt.Errorf("listing overdue appointments: %w", err)
	}

	marked := 0
	for _, a := range overdue {
		if err := ctx.Err(); err != nil {
			break
		}
		from := a.Status
		if err := a.MarkNoShow(systemCaller.UserID, s.avail.now()); err != nil {
			s.log.Debug("skipping appointment in no-show sweep",
				zap.String("appointment_id", a.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if err := s.repo.UpdateStatus(ctx, a, from); errors.Is(err, appointment.ErrStatusChanged) {
			s.log.Debug("appointment changed before it could be marked as no-show",
				zap.String("appointment_id", a.ID.String()),
			)
			continue
		} else if err != nil {
			s.log.Warn("failed to mark appointment as no-show",
				zap.String("appointment_id", a.ID.String()),
				zap.Error(err),
			)
			continue
		}
		marked++
		s.avail.invalidate(ctx, a.PractitionerID, a.Date)
		s.auditSvc.LogAsync(ctx, systemCaller.audit(domain.ActionSweep, a.ID.String(), map[string]any{
			"from": from,
			"to":   a.Status,
		}))
	}

	s.metrics.NoShowsMarked.Add(float64(marked))
	s.metrics.SweepRuns.WithLabelValues("ok").Inc()
	if marked > 0 {
		s.log.Info("no-show sweep finished", zap.Int("marked", marked), zap.Int("overdue", len(overdue)))
	}
	return marked, nil
}
