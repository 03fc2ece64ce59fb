package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
)

func sqliteConfig() config.Config {
	return config.Config{
		Env:                "dev",
		StoreDriver:        config.DriverSQLite,
		SQLitePath:         db.MemoryPath,
		Location:           time.UTC,
		SlotDuration:       30 * time.Minute,
		LookaheadDays:      14,
		BookingHorizonDays: 60,
		MaxDailyBookings:   3,
		AppointmentTTL:     24 * time.Hour,
		LockTTL:            5 * time.Second,
		SlotCacheTTL:       10 * time.Second,
		BreakerFailures:    5,
		BreakerTimeout:     30 * time.Second,
	}
}

func TestOpen_SQLiteWithoutRedis(t *testing.T) {
	app, err := Open(context.Background(), sqliteConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.SQLDB)
	assert.Nil(t, app.PgPool)
	assert.Nil(t, app.Redis)
	assert.Nil(t, app.SlotCache)
	assert.NotNil(t, app.Service)
	require.Len(t, app.Checks, 1)
	assert.Equal(t, "sqlite", app.Checks[0].Name)
	assert.True(t, app.Checks[0].Critical)

	var n int
	require.NoError(t, app.SQLDB.QueryRow(`SELECT COUNT(*) FROM appointments`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpen_SQLiteWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig()
	cfg.RedisAddr = mr.Addr()

	app, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Redis)
	assert.NotNil(t, app.SlotCache)
	require.Len(t, app.Checks, 2)
	assert.Equal(t, "redis", app.Checks[1].Name)
	assert.False(t, app.Checks[1].Critical)
}

func TestOpen_CacheDisabledByTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.SlotCacheTTL = 0

	app, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Redis)
	assert.Nil(t, app.SlotCache)
}

func TestOpen_Failures(t *testing.T) {
	t.Run("unknown driver", func(t *testing.T) {
		cfg := sqliteConfig()
		cfg.StoreDriver = "mysql"
		app, err := Open(context.Background(), cfg, zerolog.Nop())
		assert.Error(t, err)
		assert.Nil(t, app)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := sqliteConfig()
		cfg.RedisAddr = "127.0.0.1:1"
		app, err := Open(context.Background(), cfg, zerolog.Nop())
		assert.ErrorContains(t, err, "redis connection")
		assert.Nil(t, app)
	})
}

func TestClose_NilApp(t *testing.T) {
	var app *App
	assert.NotPanics(t, app.Close)
}
