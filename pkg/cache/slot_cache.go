// Package cache keeps computed free-slot lists for a practitioner-day.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/availability"
)

type SlotCache interface {
	Get(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]availability.TimeSlot, bool)

	// Version is the generation of a practitioner-day. Every Invalidate moves
	// it on. A negative version means it could not be read.
	Version(ctx context.Context, practitionerID uuid.UUID, date time.Time) int64

	// Set stores slots computed at version. It is a no-op when the day was
	// invalidated after version was read.
	Set(ctx context.Context, practitionerID uuid.UUID, date time.Time, version int64, slots []availability.TimeSlot)

	Invalidate(ctx context.Context, practitionerID uuid.UUID, date time.Time)
}

// versionTTL outlives any slot entry so a day's generation is not reset
// while a list computed from it can still be stored.
const versionTTL = 24 * time.Hour

// Key is the redis key of one practitioner-day.
func Key(practitionerID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("ayursutra:slots:%s:%s", practitionerID, availability.Day(date).Format(time.DateOnly))
}

// VersionKey holds the generation counter of one practitioner-day.
func VersionKey(practitionerID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("ayursutra:slots-version:%s:%s", practitionerID, availability.Day(date).Format(time.DateOnly))
}

// RedisSlotCache never returns errors; a failing redis behaves like a miss.
type RedisSlotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
	stats  Stats
}

// Stats receives hit and miss events, typically prometheus counters.
type Stats interface {
	Hit()
	Miss()
}

type noStats struct{}

func (noStats) Hit()  {}
func (noStats) Miss() {}

func NewRedisSlotCache(client *redis.Client, ttl time.Duration, log *zap.Logger, stats Stats) *RedisSlotCache {
	if stats == nil {
		stats = noStats{}
	}
	return &RedisSlotCache{client: client, ttl: ttl, log: log, stats: stats}
}

func (c *RedisSlotCache) Get(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]availability.TimeSlot, bool) {
	key := Key(practitionerID, date)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("slot cache read failed", zap.String("key", key), zap.Error(err))
		}
		c.stats.Miss()
		return nil, false
	}

	var slots []availability.TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.log.Warn("slot cache entry unreadable", zap.String("key", key), zap.Error(err))
		c.stats.Miss()
		return nil, false
	}
	c.stats.Hit()
	return slots, true
}

func (c *RedisSlotCache) Version(ctx context.Context, practitionerID uuid.UUID, date time.Time) int64 {
	v, err := readVersion(ctx, c.client, VersionKey(practitionerID, date))
	if err != nil {
		c.log.Warn("slot cache version read failed", zap.String("key", VersionKey(practitionerID, date)), zap.Error(err))
		return -1
	}
	return v
}

func readVersion(ctx context.Context, r redis.StringCmdable, key string) (int64, error) {
	v, err := r.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

var errStaleVersion = errors.New("slot cache version moved")

func (c *RedisSlotCache) Set(ctx context.Context, practitionerID uuid.UUID, date time.Time, version int64, slots []availability.TimeSlot) {
	if version < 0 {
		return
	}
	key, versionKey := Key(practitionerID, date), VersionKey(practitionerID, date)
	raw, err := json.Marshal(slots)
	if err != nil {
		c.log.Warn("slot cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	// WATCH aborts the write when Invalidate bumps the version before EXEC.
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, versionKey)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleVersion
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleVersion), errors.Is(err, redis.TxFailedErr):
		c.log.Debug("slot cache write skipped, day changed", zap.String("key", key))
	default:
		c.log.Warn("slot cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisSlotCache) Invalidate(ctx context.Context, practitionerID uuid.UUID, date time.Time) {
	key, versionKey := Key(practitionerID, date), VersionKey(practitionerID, date)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, versionKey)
		p.Expire(ctx, versionKey, versionTTL)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		c.log.Warn("slot cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// NopSlotCache is used when redis is disabled.
type NopSlotCache struct{}

func (NopSlotCache) Get(context.Context, uuid.UUID, time.Time) ([]availability.TimeSlot, bool) {
	return nil, false
}
func (NopSlotCache) Version(context.Context, uuid.UUID, time.Time) int64                     { return 0 }
func (NopSlotCache) Set(context.Context, uuid.UUID, time.Time, int64, []availability.TimeSlot) {}
func (NopSlotCache) Invalidate(context.Context, uuid.UUID, time.Time)                          {}

// NewRedisClient opens and pings a client for the slot cache.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return client, nil
}
