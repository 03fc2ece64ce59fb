package availability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
)

func newProviderDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.OpenSQLite(ctx, db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, sqlDB))
	return sqlDB
}

func insertDoctor(t *testing.T, sqlDB *sql.DB, slotMinutes any, hours [][3]string, blocked ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	ts := db.FormatSQLiteTime(time.Now())

	_, err := sqlDB.ExecContext(ctx, `
		INSERT INTO doctors (id, name, slot_minutes, created_at, updated_at) VALUES (?, 'Dr P', ?, ?, ?)
	`, id.String(), slotMinutes, ts, ts)
	require.NoError(t, err)

	for _, h := range hours {
		_, err := sqlDB.ExecContext(ctx, `
			INSERT INTO doctor_weekly_hours (doctor_id, weekday, start_time, end_time) VALUES (?, ?, ?, ?)
		`, id.String(), h[0], h[1], h[2])
		require.NoError(t, err)
	}
	for _, b := range blocked {
		_, err := sqlDB.ExecContext(ctx, `
			INSERT INTO doctor_blocked_dates (doctor_id, blocked_date) VALUES (?, ?)
		`, id.String(), b)
		require.NoError(t, err)
	}
	return id
}

func TestSQLiteProvider_GetAvailability(t *testing.T) {
	sqlDB := newProviderDB(t)
	id := insertDoctor(t, sqlDB, 20, [][3]string{
		{"monday", "13:00", "17:00"},
		{"Monday", "09:00", "12:00"},
		{"friday", "08:00:00", "10:00:00"},
	}, "2026-10-26")

	av, err := NewSQLiteProvider(sqlDB).GetAvailability(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, av.DoctorID)
	require.NotNil(t, av.SlotDuration)
	assert.Equal(t, 20*time.Minute, *av.SlotDuration)

	require.Len(t, av.Weekly[time.Monday], 2)
	assert.Equal(t, "09:00-12:00", av.Weekly[time.Monday][0].String())
	assert.Equal(t, "08:00-10:00", av.Weekly[time.Friday][0].String())
	assert.Empty(t, av.Weekly[time.Tuesday])

	assert.True(t, av.Blocked.Contains(date(t, "2026-10-26")))
	assert.False(t, av.Blocked.Contains(date(t, "2026-10-19")))
}

func TestSQLiteProvider_NoSlotOverride(t *testing.T) {
	sqlDB := newProviderDB(t)
	id := insertDoctor(t, sqlDB, nil, nil)

	av, err := NewSQLiteProvider(sqlDB).GetAvailability(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, av.SlotDuration)
	assert.Empty(t, av.Weekly)
}

func TestSQLiteProvider_Errors(t *testing.T) {
	sqlDB := newProviderDB(t)
	provider := NewSQLiteProvider(sqlDB)

	_, err := provider.GetAvailability(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	tests := []struct {
		name    string
		hours   [][3]string
		blocked []string
	}{
		{"unpadded time", [][3]string{{"monday", "9:00", "12:00"}}, nil},
		{"unknown weekday", [][3]string{{"mon", "09:00", "12:00"}}, nil},
		{"overlapping", [][3]string{{"monday", "09:00", "12:00"}, {"monday", "11:00", "13:00"}}, nil},
		{"inverted", [][3]string{{"monday", "12:00", "09:00"}}, nil},
		{"bad blocked date", nil, []string{"26/10/2026"}},
		{"truncated blocked date", nil, []string{"2026-10-2"}},
		{"hours ending at midnight", [][3]string{{"friday", "22:00", "24:00"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := insertDoctor(t, sqlDB, nil, tt.hours, tt.blocked...)
			_, err := provider.GetAvailability(context.Background(), id)
			assert.ErrorIs(t, err, ErrMalformedAvailability)
		})
	}
}
