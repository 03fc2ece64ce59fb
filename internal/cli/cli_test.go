package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
)

func testApp(t *testing.T) *App {
	t.Helper()
	return &App{
		Config: config.Config{
			Env:                "test",
			StoreDriver:        config.DriverSQLite,
			SQLitePath:         filepath.Join(t.TempDir(), "sched.db"),
			JWTSecret:          "cli-secret",
			JWTIssuer:          "schedctl-test",
			Location:           time.UTC,
			SlotDuration:       30 * time.Minute,
			LookaheadDays:      7,
			BookingHorizonDays: 60,
			MaxDailyBookings:   3,
			AppointmentTTL:     time.Hour,
			LockTTL:            5 * time.Second,
			BreakerFailures:    5,
			BreakerTimeout:     time.Second,
		},
		Log: zerolog.Nop(),
	}
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seedDoctor migrates the store and adds a doctor working 09:00-10:00 every day.
func seedDoctor(t *testing.T, app *App) uuid.UUID {
	t.Helper()

	_, err := run(t, app, "migrate")
	require.NoError(t, err)

	sqlDB, err := db.OpenSQLite(context.Background(), app.Config.SQLitePath)
	require.NoError(t, err)
	defer sqlDB.Close()

	now := db.FormatSQLiteTime(time.Now())
	id := uuid.New()
	_, err = sqlDB.Exec(`INSERT INTO doctors (id, name, created_at, updated_at) VALUES (?, 'Dr. Cli', ?, ?)`, id.String(), now, now)
	require.NoError(t, err)
	for _, day := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		_, err = sqlDB.Exec(`INSERT INTO doctor_weekly_hours (doctor_id, weekday, start_time, end_time) VALUES (?, ?, '09:00', '10:00')`, id.String(), day)
		require.NoError(t, err)
	}
	return id
}

func TestMigrate(t *testing.T) {
	app := testApp(t)
	out, err := run(t, app, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied (sqlite)")
}

func TestToken(t *testing.T) {
	app := testApp(t)
	user := uuid.New()

	out, err := run(t, app, "token", "--role", "doctor", "--user", user.String(), "--ttl", "5m")
	require.NoError(t, err)

	p, err := identity.NewTokens([]byte("cli-secret"), "schedctl-test").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, user, p.UserID)
	assert.Equal(t, identity.RoleDoctor, p.Role)
}

func TestToken_BadInput(t *testing.T) {
	app := testApp(t)

	_, err := run(t, app, "token", "--role", "superuser")
	assert.ErrorIs(t, err, identity.ErrUnknownRole)

	_, err = run(t, app, "token", "--user", "not-a-uuid")
	assert.ErrorContains(t, err, "--user must be a UUID")
}

func TestDatesAndSlots(t *testing.T) {
	app := testApp(t)
	doctor := seedDoctor(t, app)

	out, err := run(t, app, "dates", "--doctor", doctor.String(), "--days", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "[x] "), l)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	out, err = run(t, app, "slots", "--doctor", doctor.String(), "--date", tomorrow)
	require.NoError(t, err)
	assert.Equal(t, "09:00-09:30\n09:30-10:00\n", out)
}

func TestDates_Validation(t *testing.T) {
	app := testApp(t)
	_, err := run(t, app, "dates", "--doctor", "nope")

	var verr *appointment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "doctor_id")

	_, err = run(t, app, "slots", "--doctor", uuid.NewString())
	assert.ErrorContains(t, err, `required flag(s) "date" not set`)
}

func TestExpireAndCancel(t *testing.T) {
	app := testApp(t)
	doctor := seedDoctor(t, app)

	a, err := app.open(context.Background())
	require.NoError(t, err)

	now := db.FormatSQLiteTime(time.Now())
	patient := uuid.New()
	_, err = a.SQLDB.Exec(`INSERT INTO patients (id, name, created_at, updated_at) VALUES (?, 'Pat', ?, ?)`, patient.String(), now, now)
	require.NoError(t, err)

	ctx := identity.WithPrincipal(context.Background(), identity.Principal{UserID: patient, Role: identity.RolePatient})
	appt, err := a.Service.BookAppointment(ctx, appointment.BookingRequest{
		DoctorID:  doctor.String(),
		PatientID: patient.String(),
		Date:      time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02"),
		StartTime: "09:00",
		EndTime:   "09:30",
		Type:      "video",
	})
	require.NoError(t, err)
	a.Close()

	out, err := run(t, app, "expire")
	require.NoError(t, err)
	assert.Equal(t, "expired 0 appointment(s)\n", out)

	out, err = run(t, app, "cancel", appt.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "appointment "+appt.ID.String()+" is canceled\n", out)

	_, err = run(t, app, "cancel", appt.ID.String())
	var apptErr *appointment.AppointmentError
	require.ErrorAs(t, err, &apptErr)
	assert.Equal(t, appointment.CodeInvalidTransition, apptErr.Code)
}
