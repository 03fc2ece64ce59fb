package main

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
)

var seedToday = calendar.DateOf(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))

func TestGenerateDoctor_ValidTemplate(t *testing.T) {
	f := gofakeit.New(42)

	for i := 0; i < 200; i++ {
		d := generateDoctor(f, seedToday)

		weekly := make(availability.WeeklyTemplate)
		days := make(map[string]bool)
		for _, w := range d.Weekly {
			day, err := availability.ParseWeekday(w.Weekday)
			require.NoError(t, err)
			days[w.Weekday] = true
			weekly[day] = append(weekly[day], availability.WorkingInterval{
				Start: calendar.MustTimeOfDay(w.Start),
				End:   calendar.MustTimeOfDay(w.End),
			})
		}
		require.NoError(t, weekly.Validate())
		assert.GreaterOrEqual(t, len(days), 3)
		assert.LessOrEqual(t, len(days), 5)
		assert.NotContains(t, days, "sunday")

		for _, b := range d.Blocked {
			assert.True(t, b.After(seedToday))
			assert.LessOrEqual(t, seedToday.DaysUntil(b), 30)
		}
		if d.SlotMinutes != nil {
			assert.Contains(t, []int{15, 20, 45, 60}, *d.SlotMinutes)
		}
		assert.Contains(t, specialties, d.Specialty)
	}
}

func TestSeed_SQLite(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.OpenSQLite(ctx, db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, sqlDB))

	store := &sqliteSeedStore{db: sqlDB, now: time.Now}
	var batches []string
	err = seed(ctx, store, gofakeit.New(7), seedToday, 3, 501, func(kind string, done, total int) {
		batches = append(batches, kind)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doctors", "patients", "patients"}, batches)

	var doctors, patients int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM doctors`).Scan(&doctors))
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM patients`).Scan(&patients))
	assert.Equal(t, 3, doctors)
	assert.Equal(t, 501, patients)

	// Every seeded doctor loads through the provider without normalization errors.
	rows, err := sqlDB.Query(`SELECT id FROM doctors`)
	require.NoError(t, err)
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Close())

	provider := availability.NewSQLiteProvider(sqlDB)
	for _, raw := range ids {
		av, err := provider.GetAvailability(ctx, uuid.MustParse(raw))
		require.NoError(t, err)
		assert.NotEmpty(t, av.Weekly)
	}
}
