package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

type weeklyRow struct {
	Weekday string
	Start   string
	End     string
}

type doctorSeed struct {
	ID          uuid.UUID
	Name        string
	Specialty   string
	SlotMinutes *int
	Weekly      []weeklyRow
	Blocked     []calendar.Date
}

type patientSeed struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// generateDoctor builds a doctor working three to five days a week with a
// morning block and sometimes an afternoon block. A few dates within the
// next month are blocked.
func generateDoctor(f *gofakeit.Faker, today calendar.Date) doctorSeed {
	d := doctorSeed{
		ID:        uuid.New(),
		Name:      "Dr. " + f.Name(),
		Specialty: specialties[f.Number(0, len(specialties)-1)],
	}

	if f.Number(0, 3) == 0 {
		m := []int{15, 20, 45, 60}[f.Number(0, 3)]
		d.SlotMinutes = &m
	}

	days := f.Number(3, 5)
	picked := make(map[string]bool, days)
	for len(picked) < days {
		picked[weekdays[f.Number(0, len(weekdays)-1)]] = true
	}
	for _, day := range weekdays {
		if !picked[day] {
			continue
		}
		start := f.Number(8, 10)
		d.Weekly = append(d.Weekly, weeklyRow{
			Weekday: day,
			Start:   fmt.Sprintf("%02d:00", start),
			End:     fmt.Sprintf("%02d:00", start+3),
		})
		if f.Bool() {
			d.Weekly = append(d.Weekly, weeklyRow{
				Weekday: day,
				Start:   "14:00",
				End:     fmt.Sprintf("%02d:30", f.Number(16, 18)),
			})
		}
	}

	blocked := make(map[calendar.Date]bool)
	for i := f.Number(0, 2); i > 0; i-- {
		blocked[today.AddDays(f.Number(1, 30))] = true
	}
	for date := range blocked {
		d.Blocked = append(d.Blocked, date)
	}

	return d
}

func generatePatient(f *gofakeit.Faker) patientSeed {
	return patientSeed{
		ID:    uuid.New(),
		Name:  f.Name(),
		Email: strings.ToLower(f.Email()),
	}
}

// seedStore writes seed rows in batches, one transaction per batch.
type seedStore interface {
	insertDoctors(ctx context.Context, doctors []doctorSeed) error
	insertPatients(ctx context.Context, patients []patientSeed) error
}

type pgSeedStore struct {
	pool *pgxpool.Pool
}

func (s *pgSeedStore) insertDoctors(ctx context.Context, doctors []doctorSeed) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, d := range doctors {
		if _, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, slot_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, d.ID, d.Name, d.Specialty, d.SlotMinutes); err != nil {
			return fmt.Errorf("insert doctor %s: %w", d.ID, err)
		}
		for _, w := range d.Weekly {
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctor_weekly_hours (doctor_id, weekday, start_time, end_time)
				VALUES ($1, $2, $3, $4)
			`, d.ID, w.Weekday, w.Start, w.End); err != nil {
				return fmt.Errorf("insert weekly hours for %s: %w", d.ID, err)
			}
		}
		for _, b := range d.Blocked {
			if _, err := tx.Exec(ctx, `
				INSERT INTO doctor_blocked_dates (doctor_id, blocked_date, reason)
				VALUES ($1, $2, 'seeded')
			`, d.ID, b.String()); err != nil {
				return fmt.Errorf("insert blocked date for %s: %w", d.ID, err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (s *pgSeedStore) insertPatients(ctx context.Context, patients []patientSeed) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range patients {
		if _, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, p.ID, p.Name, p.Email); err != nil {
			return fmt.Errorf("insert patient %s: %w", p.ID, err)
		}
	}

	return tx.Commit(ctx)
}

type sqliteSeedStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *sqliteSeedStore) insertDoctors(ctx context.Context, doctors []doctorSeed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := db.FormatSQLiteTime(s.now())
	for _, d := range doctors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO doctors (id, name, specialty, slot_minutes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID.String(), d.Name, d.Specialty, d.SlotMinutes, now, now); err != nil {
			return fmt.Errorf("insert doctor %s: %w", d.ID, err)
		}
		for _, w := range d.Weekly {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doctor_weekly_hours (doctor_id, weekday, start_time, end_time)
				VALUES (?, ?, ?, ?)
			`, d.ID.String(), w.Weekday, w.Start, w.End); err != nil {
				return fmt.Errorf("insert weekly hours for %s: %w", d.ID, err)
			}
		}
		for _, b := range d.Blocked {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doctor_blocked_dates (doctor_id, blocked_date, reason)
				VALUES (?, ?, 'seeded')
			`, d.ID.String(), b.String()); err != nil {
				return fmt.Errorf("insert blocked date for %s: %w", d.ID, err)
			}
		}
	}

	return tx.Commit()
}

func (s *sqliteSeedStore) insertPatients(ctx context.Context, patients []patientSeed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := db.FormatSQLiteTime(s.now())
	for _, p := range patients {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID.String(), p.Name, p.Email, now, now); err != nil {
			return fmt.Errorf("insert patient %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

const batchSize = 500

// seed generates and writes doctors then patients, reporting progress per batch.
func seed(ctx context.Context, store seedStore, f *gofakeit.Faker, today calendar.Date, doctors, patients int, progress func(kind string, done, total int)) error {
	for offset := 0; offset < doctors; offset += batchSize {
		end := min(offset+batchSize, doctors)
		batch := make([]doctorSeed, 0, end-offset)
		for i := offset; i < end; i++ {
			batch = append(batch, generateDoctor(f, today))
		}
		if err := store.insertDoctors(ctx, batch); err != nil {
			return fmt.Errorf("seed doctors: %w", err)
		}
		progress("doctors", end, doctors)
	}

	for offset := 0; offset < patients; offset += batchSize {
		end := min(offset+batchSize, patients)
		batch := make([]patientSeed, 0, end-offset)
		for i := offset; i < end; i++ {
			batch = append(batch, generatePatient(f))
		}
		if err := store.insertPatients(ctx, batch); err != nil {
			return fmt.Errorf("seed patients: %w", err)
		}
		progress("patients", end, patients)
	}

	return nil
}
