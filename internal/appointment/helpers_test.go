package appointment

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

// Sunday 2026-10-18, 10:00 UTC. Tomorrow is Monday 2026-10-19.
var testNow = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// passthroughLocker runs fn without locking so tests can exercise the
// store as the only arbiter.
type passthroughLocker struct{}

func (passthroughLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		Location:           time.UTC,
		SlotDuration:       30 * time.Minute,
		LookaheadDays:      14,
		BookingHorizonDays: 60,
		MaxDailyBookings:   3,
		AppointmentTTL:     24 * time.Hour,
		LockTTL:            5 * time.Second,
		BreakerFailures:    5,
		BreakerTimeout:     30 * time.Second,
	}
}

type testEnv struct {
	db        *sql.DB
	repo      *SQLiteRepository
	svc       *Service
	clock     *testClock
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, cfg config.Config, locker redisclient.Locker) *testEnv {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := db.OpenSQLite(ctx, db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, sqlDB))

	if locker == nil {
		locker = redisclient.NewLocalLocker(cfg.LockTTL)
	}

	clock := &testClock{t: testNow}
	repo := NewSQLiteRepository(sqlDB)
	repo.now = clock.Now
	pub := &recordingPublisher{}

	svc := NewService(repo, availability.NewSQLiteProvider(sqlDB), locker, pub, cfg, zerolog.Nop()).
		WithClock(clock.Now)

	return &testEnv{db: sqlDB, repo: repo, svc: svc, clock: clock, publisher: pub}
}

// seedDoctor inserts a doctor with weekly hours keyed by weekday name and
// the given blocked dates.
func (e *testEnv) seedDoctor(t *testing.T, slotMinutes *int, weekly map[string][][2]string, blocked ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	ts := db.FormatSQLiteTime(testNow)

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO doctors (id, name, specialty, slot_minutes, created_at, updated_at)
		VALUES (?, 'Dr Test', 'general', ?, ?, ?)
	`, id.String(), slotMinutes, ts, ts)
	require.NoError(t, err)

	for day, intervals := range weekly {
		for _, iv := range intervals {
			_, err := e.db.ExecContext(ctx, `
				INSERT INTO doctor_weekly_hours (doctor_id, weekday, start_time, end_time)
				VALUES (?, ?, ?, ?)
			`, id.String(), day, iv[0], iv[1])
			require.NoError(t, err)
		}
	}
	for _, d := range blocked {
		_, err := e.db.ExecContext(ctx, `
			INSERT INTO doctor_blocked_dates (doctor_id, blocked_date) VALUES (?, ?)
		`, id.String(), d)
		require.NoError(t, err)
	}
	return id
}

func (e *testEnv) seedPatient(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	ts := db.FormatSQLiteTime(testNow)
	_, err := e.db.ExecContext(context.Background(), `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES (?, 'Pat Test', NULL, ?, ?)
	`, id.String(), ts, ts)
	require.NoError(t, err)
	return id
}

func (e *testEnv) countAppointments(t *testing.T, doctorID uuid.UUID, status AppointmentStatus) int {
	t.Helper()
	var n int
	err := e.db.QueryRowContext(context.Background(), `
		SELECT count(*) FROM appointments WHERE doctor_id = ? AND status = ?
	`, doctorID.String(), string(status)).Scan(&n)
	require.NoError(t, err)
	return n
}

func asPatient(id uuid.UUID) context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{UserID: id, Role: identity.RolePatient})
}

func asDoctor(id uuid.UUID) context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{UserID: id, Role: identity.RoleDoctor})
}

var mondayMorning = map[string][][2]string{
	"monday": {{"09:00", "12:00"}},
}

func booking(doctorID uuid.UUID, date, start, end string) BookingRequest {
	return BookingRequest{
		DoctorID:  doctorID.String(),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Type:      string(TypeInPerson),
	}
}

func slotStrings(slots []availability.TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}
