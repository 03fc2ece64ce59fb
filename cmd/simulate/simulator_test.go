package main

import (
	"context"
	"math/rand"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/api"
	"github.com/hackgods/doctor-appointment-scheduling/internal/bootstrap"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
)

func newTestServer(t *testing.T) (*httptest.Server, *DataPool, *identity.Tokens) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := config.Config{
		Env:                "dev",
		StoreDriver:        config.DriverSQLite,
		SQLitePath:         db.MemoryPath,
		RedisAddr:          mr.Addr(),
		Location:           time.UTC,
		SlotDuration:       30 * time.Minute,
		LookaheadDays:      7,
		BookingHorizonDays: 60,
		MaxDailyBookings:   3,
		AppointmentTTL:     time.Hour,
		LockTTL:            5 * time.Second,
		SlotCacheTTL:       time.Second,
		BreakerFailures:    5,
		BreakerTimeout:     time.Second,
	}

	app, err := bootstrap.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	now := db.FormatSQLiteTime(time.Now())
	doctorID := uuid.New()
	_, err = app.SQLDB.Exec(`INSERT INTO doctors (id, name, created_at, updated_at) VALUES (?, 'Dr. Sim', ?, ?)`,
		doctorID.String(), now, now)
	require.NoError(t, err)
	for _, day := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		_, err = app.SQLDB.Exec(`INSERT INTO doctor_weekly_hours (doctor_id, weekday, start_time, end_time) VALUES (?, ?, '09:00', '12:00')`,
			doctorID.String(), day)
		require.NoError(t, err)
	}

	pool := &DataPool{Doctors: []uuid.UUID{doctorID}}
	for i := 0; i < 8; i++ {
		id := uuid.New()
		_, err = app.SQLDB.Exec(`INSERT INTO patients (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			id.String(), "Patient", now, now)
		require.NoError(t, err)
		pool.Patients = append(pool.Patients, id)
	}

	tokens := identity.NewTokens([]byte("sim-secret"), "sim")
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Service:     app.Service,
		Slots:       app.SlotCache,
		Invalidator: app.SlotCache,
		Tokens:      tokens,
		Checks:      app.Checks,
		Logger:      zerolog.Nop(),
		Env:         "test",
	}))
	t.Cleanup(srv.Close)

	return srv, pool, tokens
}

func TestRaceRound_SingleWinner(t *testing.T) {
	srv, pool, tokens := newTestServer(t)

	sim := NewSimulator(SimConfig{APIBaseURL: srv.URL, RaceContenders: 8}, pool, tokens, zerolog.Nop())

	race, err := sim.RaceRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, race.Contenders)
	assert.Equal(t, 1, race.Winners)
	assert.Equal(t, 7, race.Conflicts)
	assert.Zero(t, race.Errors)
	assert.True(t, race.OK())

	appt, ok := pool.GetRandomAppointment(rand.New(rand.NewSource(1)))
	require.True(t, ok)
	assert.Equal(t, pool.Doctors[0], appt.DoctorID)
}

func TestRun_MixedWorkload(t *testing.T) {
	srv, pool, tokens := newTestServer(t)

	sim := NewSimulator(SimConfig{
		APIBaseURL:   srv.URL,
		Duration:     500 * time.Millisecond,
		Workers:      2,
		BookingRatio: 0.5,
		ConfirmRatio: 0.2,
		CancelRatio:  0.1,
		ReadRatio:    0.2,
	}, pool, tokens, zerolog.Nop())

	sim.Run()

	assert.Positive(t, atomic.LoadInt64(&sim.metrics.Booking.Success))
	assert.Positive(t, atomic.LoadInt64(&sim.metrics.Slots.Success))
}

func TestOperationMetrics_Stats(t *testing.T) {
	var om OperationMetrics
	for i := 1; i <= 100; i++ {
		om.Record(time.Duration(i)*time.Millisecond, i%10 != 0, i%10 == 0)
	}

	avg, lo, hi, p50, p95 := om.Stats()
	assert.Equal(t, int64(100), om.Total)
	assert.Equal(t, int64(90), om.Success)
	assert.Equal(t, int64(10), om.Conflict)
	assert.Equal(t, 50500*time.Microsecond, avg)
	assert.Equal(t, time.Millisecond, lo)
	assert.Equal(t, 100*time.Millisecond, hi)
	assert.Equal(t, 51*time.Millisecond, p50)
	assert.Equal(t, 96*time.Millisecond, p95)
}

func TestLoadConfig_NormalizesRatios(t *testing.T) {
	t.Setenv("SIM_BOOKING_RATIO", "2")
	t.Setenv("SIM_CONFIRM_RATIO", "1")
	t.Setenv("SIM_CANCEL_RATIO", "1")
	t.Setenv("SIM_READ_RATIO", "0")

	cfg := loadConfig()
	assert.InDelta(t, 0.5, cfg.BookingRatio, 1e-9)
	assert.InDelta(t, 0.25, cfg.ConfirmRatio, 1e-9)
	assert.InDelta(t, 0.25, cfg.CancelRatio, 1e-9)
	assert.Zero(t, cfg.ReadRatio)
}
