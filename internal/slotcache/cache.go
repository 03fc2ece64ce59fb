// Package slotcache keeps recently computed free slots in Redis so slot
// listings do not hit the store on every request. Booking never reads
// from it: free slots are always recomputed inside the slot lock.
package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

// SlotSource computes free slots. *appointment.Service satisfies it.
type SlotSource interface {
	GetAvailableSlots(ctx context.Context, doctorID, date string) ([]availability.TimeSlot, error)
}

type Cache struct {
	client *redis.Client
	source SlotSource
	ttl    time.Duration
	log    zerolog.Logger
}

func New(client *redis.Client, source SlotSource, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "slotcache").Logger(),
	}
}

// Key names the cache entry for one doctor-day.
func Key(doctorID uuid.UUID, date calendar.Date) string {
	return fmt.Sprintf("slots:v1:%s:%s", doctorID, date)
}

type cachedSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GetAvailableSlots serves from Redis when it can and falls back to the
// source on a miss or a Redis failure. Errors are never cached.
func (c *Cache) GetAvailableSlots(ctx context.Context, doctorID, date string) ([]availability.TimeSlot, error) {
	id, idErr := uuid.Parse(strings.TrimSpace(doctorID))
	d, dateErr := calendar.NormalizeDate(date)
	if idErr != nil || dateErr != nil {
		// Let the source produce the validation error.
		return c.source.GetAvailableSlots(ctx, doctorID, date)
	}
	key := Key(id, d)

	if slots, ok := c.read(ctx, key); ok {
		return slots, nil
	}

	slots, err := c.source.GetAvailableSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, slots)
	return slots, nil
}

// Invalidate drops the entry for a doctor-day after a booking or
// cancellation changed it.
func (c *Cache) Invalidate(ctx context.Context, doctorID uuid.UUID, date calendar.Date) error {
	if err := c.client.Del(ctx, Key(doctorID, date)).Err(); err != nil {
		return fmt.Errorf("invalidate slot cache: %w", err)
	}
	return nil
}

func (c *Cache) read(ctx context.Context, key string) ([]availability.TimeSlot, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("slot cache read failed")
		}
		return nil, false
	}

	var entries []cachedSlot
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable slot cache entry")
		return nil, false
	}

	slots := make([]availability.TimeSlot, 0, len(entries))
	for _, e := range entries {
		start, err := calendar.NormalizeTime(e.Start)
		if err != nil {
			return nil, false
		}
		end, err := calendar.NormalizeTime(e.End)
		if err != nil {
			return nil, false
		}
		slots = append(slots, availability.TimeSlot{Start: start, End: end})
	}
	return slots, true
}

func (c *Cache) write(ctx context.Context, key string, slots []availability.TimeSlot) {
	entries := make([]cachedSlot, 0, len(slots))
	for _, s := range slots {
		entries = append(entries, cachedSlot{Start: s.Start.String(), End: s.End.String()})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("slot cache write failed")
	}
}
