package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_MigratesInMemory(t *testing.T) {
	ctx := context.Background()

	sqlDB, err := OpenSQLite(ctx, MemoryPath)
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, MigrateSQLite(ctx, sqlDB))
	// Migrations are idempotent.
	require.NoError(t, MigrateSQLite(ctx, sqlDB))

	for _, table := range []string{"doctors", "patients", "doctor_weekly_hours", "doctor_blocked_dates", "appointments", "event_logs"} {
		var name string
		err := sqlDB.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpenSQLite_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "appointments.db")

	sqlDB, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, MigrateSQLite(ctx, sqlDB))
	assert.FileExists(t, path)
}

func TestActiveSlotIndexIgnoresCanceled(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := OpenSQLite(ctx, MemoryPath)
	require.NoError(t, err)
	defer sqlDB.Close()
	require.NoError(t, MigrateSQLite(ctx, sqlDB))

	_, err = sqlDB.ExecContext(ctx, `
		INSERT INTO doctors (id, name, created_at, updated_at) VALUES ('d1', 'Dr A', 'x', 'x');
		INSERT INTO patients (id, name, created_at, updated_at) VALUES ('p1', 'Pat', 'x', 'x');
	`)
	require.NoError(t, err)

	insert := func(id, status string) error {
		_, err := sqlDB.ExecContext(ctx, `
			INSERT INTO appointments (id, doctor_id, patient_id, appt_date, start_time, end_time, status, appt_type, created_at, updated_at)
			VALUES (?, 'd1', 'p1', '2026-10-19', '09:00', '09:30', ?, 'video', 'x', 'x')
		`, id, status)
		return err
	}

	require.NoError(t, insert("a1", "canceled"))
	require.NoError(t, insert("a2", "pending"))
	assert.Error(t, insert("a3", "confirmed"))
}
