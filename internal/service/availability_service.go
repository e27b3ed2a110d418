package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/pkg/cache"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

// WorkingHours is the clinic schedule as the services see it.
type WorkingHours interface {
	WorkingDay(practitionerID uuid.UUID, date time.Time) availability.WorkingDay
	Location() *time.Location
	MaxAdvanceDays() int
	Today(now time.Time) time.Time
}

type AvailabilityService struct {
	repo     appointment.Repository
	schedule WorkingHours
	cache    cache.SlotCache
	metrics  *metrics.Collector
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewAvailabilityService(
	repo appointment.Repository,
	schedule WorkingHours,
	slotCache cache.SlotCache,
	m *metrics.Collector,
	log *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		repo:     repo,
		schedule: schedule,
		cache:    slotCache,
		metrics:  m,
		log:      log,
		tracer:   otel.Tracer("github.com/prempal04/AyurSutra/internal/service"),
		now:      time.Now,
	}
}

func dayAttrs(practitionerID uuid.UUID, date time.Time) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("practitioner.id", practitionerID.String()),
		attribute.String("booking.date", availability.Day(date).Format(time.DateOnly)),
	)
}

// CheckAvailability reports whether slot is free for practitionerID on date
// and, if not, which bookings are in the way.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, practitionerID uuid.UUID, date time.Time, slot availability.TimeSlot) (availability.Result, error) {
	ctx, span := s.tracer.Start(ctx, "AvailabilityService.CheckAvailability", dayAttrs(practitionerID, date))
	defer span.End()

	if err := slot.Validate(); err != nil {
		s.metrics.AvailabilityChecks.WithLabelValues("invalid").Inc()
		return availability.Result{}, err
	}

	bookings, err := s.repo.ListForDay(ctx, practitionerID, date)
	if err != nil {
		span.RecordError(err)
		return availability.Result{}, fmt.Errorf("loading bookings: %w", err)
	}

	res, err := availability.Check(slot, practitionerID, date, appointment.Windows(bookings))
	if err != nil {
		return availability.Result{}, err
	}
	if res.Available {
		s.metrics.AvailabilityChecks.WithLabelValues("available").Inc()
	} else {
		s.metrics.AvailabilityChecks.WithLabelValues("conflict").Inc()
	}
	return res, nil
}

// ListFreeSlots returns the bookable grid slots of practitionerID on date.
// Past dates, dates beyond the advance booking window and closed days have no
// slots; for today, slots that have already started are left out.
func (s *AvailabilityService) ListFreeSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]availability.TimeSlot, error) {
	ctx, span := s.tracer.Start(ctx, "AvailabilityService.ListFreeSlots", dayAttrs(practitionerID, date))
	defer span.End()

	now := s.now()
	day := availability.Day(date)
	today := s.schedule.Today(now)
	if day.Before(today) || day.After(today.AddDate(0, 0, s.schedule.MaxAdvanceDays())) {
		return []availability.TimeSlot{}, nil
	}

	wd := s.schedule.WorkingDay(practitionerID, day)
	if wd.Closed {
		return []availability.TimeSlot{}, nil
	}

	slots, err := s.freeSlotsForDay(ctx, wd, practitionerID, day)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if day.Equal(today) {
		loc := s.schedule.Location()
		upcoming := make([]availability.TimeSlot, 0, len(slots))
		for _, slot := range slots {
			if start, _ := slot.On(day, loc); !start.Before(now) {
				upcoming = append(upcoming, slot)
			}
		}
		slots = upcoming
	}

	s.metrics.FreeSlotsListed.Observe(float64(len(slots)))
	span.SetAttributes(attribute.Int("slots.free", len(slots)))
	return slots, nil
}

// freeSlotsForDay is the whole-day free list, served from the slot cache when
// possible.
func (s *AvailabilityService) freeSlotsForDay(ctx context.Context, wd availability.WorkingDay, practitionerID uuid.UUID, day time.Time) ([]availability.TimeSlot, error) {
	if slots, ok := s.cache.Get(ctx, practitionerID, day); ok {
		return slots, nil
	}

	// Read before loading: a booking written meanwhile invalidates the day
	// and the stale list below is not stored.
	version := s.cache.Version(ctx, practitionerID, day)
	bookings, err := s.repo.ListForDay(ctx, practitionerID, day)
	if err != nil {
		return nil, fmt.Errorf("loading bookings: %w", err)
	}
	slots, err := availability.ListFreeSlots(wd, practitionerID, day, appointment.Windows(bookings))
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, practitionerID, day, version, slots)
	return slots, nil
}

type DaySummary struct {
	PractitionerID uuid.UUID               `json:"practitioner_id"`
	Date           time.Time               `json:"date"`
	WorkingDay     availability.WorkingDay `json:"working_day"`
	Occupying      int                     `json:"occupying"`
	Terminal       int                     `json:"terminal"`
	FreeSlots      int                     `json:"free_slots"`
	TotalSlots     int                     `json:"total_slots"`
	FullyBooked    bool                    `json:"fully_booked"`
}

// DaySummary counts the bookings of a practitioner-day and its free grid
// slots, ignoring the clock.
func (s *AvailabilityService) DaySummary(ctx context.Context, practitionerID uuid.UUID, date time.Time) (*DaySummary, error) {
	ctx, span := s.tracer.Start(ctx, "AvailabilityService.DaySummary", dayAttrs(practitionerID, date))
	defer span.End()

	day := availability.Day(date)
	wd := s.schedule.WorkingDay(practitionerID, day)

	bookings, err := s.repo.ListForDay(ctx, practitionerID, day)
	if err != nil {
		return nil, fmt.Errorf("loading bookings: %w", err)
	}
	windows := appointment.Windows(bookings)
	parts := availability.Partition(windows)

	sum := &DaySummary{
		PractitionerID: practitionerID,
		Date:           day,
		WorkingDay:     wd,
		Occupying:      len(parts.Occupying),
		Terminal:       len(parts.Terminal),
	}
	if wd.Closed {
		return sum, nil
	}

	free, err := availability.ListFreeSlots(wd, practitionerID, day, windows)
	if err != nil {
		return nil, err
	}
	for range wd.Grid() {
		sum.TotalSlots++
	}
	sum.FreeSlots = len(free)
	sum.FullyBooked = sum.FreeSlots == 0
	return sum, nil
}

// invalidate drops cached free slots of every day in dates.
func (s *AvailabilityService) invalidate(ctx context.Context, practitionerID uuid.UUID, dates ...time.Time) {
	for _, d := range dates {
		s.cache.Invalidate(ctx, practitionerID, d)
	}
}
