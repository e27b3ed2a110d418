package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/internal/repository/memory"
	"github.com/prempal04/AyurSutra/pkg/cache"
)

// versionedCache keeps entries in a map with the same version rules as the
// redis cache.
type versionedCache struct {
	mu       sync.Mutex
	entries  map[string][]availability.TimeSlot
	versions map[string]int64
}

func newVersionedCache() *versionedCache {
	return &versionedCache{entries: map[string][]availability.TimeSlot{}, versions: map[string]int64{}}
}

func (c *versionedCache) Get(_ context.Context, id uuid.UUID, date time.Time) ([]availability.TimeSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.entries[cache.Key(id, date)]
	return slots, ok
}

func (c *versionedCache) Version(_ context.Context, id uuid.UUID, date time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[cache.Key(id, date)]
}

func (c *versionedCache) Set(_ context.Context, id uuid.UUID, date time.Time, version int64, slots []availability.TimeSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cache.Key(id, date)
	if c.versions[key] == version {
		c.entries[key] = slots
	}
}

func (c *versionedCache) Invalidate(_ context.Context, id uuid.UUID, date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cache.Key(id, date)
	c.versions[key]++
	delete(c.entries, key)
}

// bookingDuringLoad books the 09:00 slot right after the first day load, the
// way a concurrent request would.
type bookingDuringLoad struct {
	*memory.AppointmentRepository
	cache *versionedCache
	once  sync.Once
}

func (r *bookingDuringLoad) ListForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	list, err := r.AppointmentRepository.ListForDay(ctx, practitionerID, date)
	if err != nil {
		return nil, err
	}
	var createErr error
	r.once.Do(func() {
		createErr = r.Create(ctx, &appointment.Appointment{
			PatientID:      uuid.New(),
			PractitionerID: practitionerID,
			Date:           date,
			StartMinute:    540,
			EndMinute:      570,
			Type:           appointment.TypeConsultation,
			Priority:       appointment.PriorityNormal,
			Status:         appointment.StatusScheduled,
			CreatedBy:      uuid.New(),
		})
		r.cache.Invalidate(ctx, practitionerID, date)
	})
	return list, createErr
}

func TestListFreeSlots_DoesNotCacheListOutdatedByConcurrentBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := newVersionedCache()
	repo := &bookingDuringLoad{AppointmentRepository: f.repo, cache: c}

	avail := NewAvailabilityService(repo, f.avail.schedule, c, f.metrics, f.avail.log)
	avail.now = f.avail.now

	first, err := avail.ListFreeSlots(ctx, practitioner, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 18 {
		t.Fatalf("first listing = %d slots, want 18", len(first))
	}
	if _, ok := c.Get(ctx, practitioner, tomorrow); ok {
		t.Fatal("list computed before the booking was cached")
	}

	second, err := avail.ListFreeSlots(ctx, practitioner, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 17 || second[0].Start != 570 {
		t.Errorf("second listing = %v, want 17 slots from 09:30", second)
	}
	if cached, ok := c.Get(ctx, practitioner, tomorrow); !ok || len(cached) != 17 {
		t.Errorf("cached = %v (hit %v), want the 17-slot list", cached, ok)
	}
}
