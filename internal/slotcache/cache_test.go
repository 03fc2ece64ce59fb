package slotcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

type countingSource struct {
	calls atomic.Int32
	slots []availability.TimeSlot
	err   error
}

func (s *countingSource) GetAvailableSlots(context.Context, string, string) ([]availability.TimeSlot, error) {
	s.calls.Add(1)
	return s.slots, s.err
}

func slot(start, end string) availability.TimeSlot {
	return availability.TimeSlot{Start: calendar.MustTimeOfDay(start), End: calendar.MustTimeOfDay(end)}
}

func newCache(t *testing.T, source SlotSource) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, source, 10*time.Second, zerolog.Nop()), mr
}

func TestCache_HitAfterMiss(t *testing.T) {
	source := &countingSource{slots: []availability.TimeSlot{slot("09:00", "09:30"), slot("10:30", "11:00")}}
	cache, mr := newCache(t, source)
	doctorID := uuid.New()
	ctx := context.Background()

	first, err := cache.GetAvailableSlots(ctx, doctorID.String(), "2026-10-19")
	require.NoError(t, err)
	second, err := cache.GetAvailableSlots(ctx, doctorID.String(), "2026-10-19")
	require.NoError(t, err)

	assert.Equal(t, source.slots, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())

	key := Key(doctorID, calendar.Date{Year: 2026, Month: time.October, Day: 19})
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 10*time.Second, mr.TTL(key))

	mr.FastForward(11 * time.Second)
	_, err = cache.GetAvailableSlots(ctx, doctorID.String(), "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCache_EmptyListIsCached(t *testing.T) {
	source := &countingSource{slots: []availability.TimeSlot{}}
	cache, _ := newCache(t, source)
	ctx := context.Background()
	doctorID := uuid.NewString()

	for i := 0; i < 2; i++ {
		slots, err := cache.GetAvailableSlots(ctx, doctorID, "2026-10-20")
		require.NoError(t, err)
		assert.NotNil(t, slots)
		assert.Empty(t, slots)
	}
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestCache_Invalidate(t *testing.T) {
	source := &countingSource{slots: []availability.TimeSlot{slot("09:00", "09:30")}}
	cache, mr := newCache(t, source)
	ctx := context.Background()
	doctorID := uuid.New()
	date := calendar.Date{Year: 2026, Month: time.October, Day: 19}

	_, err := cache.GetAvailableSlots(ctx, doctorID.String(), date.String())
	require.NoError(t, err)
	require.True(t, mr.Exists(Key(doctorID, date)))

	require.NoError(t, cache.Invalidate(ctx, doctorID, date))
	assert.False(t, mr.Exists(Key(doctorID, date)))

	_, err = cache.GetAvailableSlots(ctx, doctorID.String(), date.String())
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	boom := errors.New("store down")
	source := &countingSource{err: boom}
	cache, mr := newCache(t, source)
	doctorID := uuid.New()

	_, err := cache.GetAvailableSlots(context.Background(), doctorID.String(), "2026-10-19")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestCache_InvalidInputGoesToSource(t *testing.T) {
	source := &countingSource{err: errors.New("invalid input")}
	cache, mr := newCache(t, source)

	_, err := cache.GetAvailableSlots(context.Background(), "nope", "2026-10-19")
	assert.Error(t, err)
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Empty(t, mr.Keys())
}

func TestCache_FallsBackWhenRedisDown(t *testing.T) {
	source := &countingSource{slots: []availability.TimeSlot{slot("09:00", "09:30")}}
	cache, mr := newCache(t, source)
	mr.Close()

	slots, err := cache.GetAvailableSlots(context.Background(), uuid.NewString(), "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, source.slots, slots)
}

func TestCache_CorruptEntryIsRecomputed(t *testing.T) {
	source := &countingSource{slots: []availability.TimeSlot{slot("09:00", "09:30")}}
	cache, mr := newCache(t, source)
	doctorID := uuid.New()
	date := calendar.Date{Year: 2026, Month: time.October, Day: 19}
	require.NoError(t, mr.Set(Key(doctorID, date), "not json"))

	slots, err := cache.GetAvailableSlots(context.Background(), doctorID.String(), date.String())
	require.NoError(t, err)
	assert.Equal(t, source.slots, slots)
	assert.Equal(t, int32(1), source.calls.Load())
}
