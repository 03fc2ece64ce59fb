package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

const pgUniqueViolation = "23505"

const pgAppointmentColumns = `
	id, doctor_id, patient_id,
	to_char(appt_date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'),
	status, appt_type, reason, created_at, updated_at, expires_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.SlotMinutes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var rec appointmentRecord

	err := row.Scan(
		&rec.ID,
		&rec.DoctorID,
		&rec.PatientID,
		&rec.Date,
		&rec.StartTime,
		&rec.EndTime,
		&rec.Status,
		&rec.Type,
		&rec.Reason,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return rec.normalize()
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, slot_minutes, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2::date
		  AND status <> 'canceled'
		ORDER BY start_time
	`, doctorID, date.String())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountActiveForPatientOnDate(ctx context.Context, patientID uuid.UUID, date calendar.Date) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE patient_id = $1
		  AND appt_date = $2::date
		  AND status <> 'canceled'
	`, patientID, date.String()).Scan(&n)
	return n, err
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND ($2::uuid = '00000000-0000-0000-0000-000000000000' OR doctor_id = $2)
		ORDER BY appt_date DESC, start_time DESC
		LIMIT $3 OFFSET $4
	`, patientID, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertIfFree(ctx context.Context, a *Appointment, maxDaily int) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes writers for one doctor-day so the overlap check below
	// cannot interleave with another insert.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		a.DoctorID.String()+"|"+a.Date.String()); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}

	if maxDaily > 0 {
		// Same for one patient-day, taken after the doctor-day lock so
		// every writer acquires the two in the same order.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"patient:"+a.PatientID.String()+"|"+a.Date.String()); err != nil {
			return nil, fmt.Errorf("advisory lock: %w", err)
		}

		var booked int
		err = tx.QueryRow(ctx, `
			SELECT count(*)
			FROM appointments
			WHERE patient_id = $1
			  AND appt_date = $2::date
			  AND status <> 'canceled'
		`, a.PatientID, a.Date.String()).Scan(&booked)
		if err != nil {
			return nil, fmt.Errorf("count patient bookings: %w", err)
		}
		if booked >= maxDaily {
			return nil, ErrDailyLimit
		}
	}

	var overlapping int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2::date
		  AND status <> 'canceled'
		  AND start_time < $4::time
		  AND end_time > $3::time
	`, a.DoctorID, a.Date.String(), a.StartTime.String(), a.EndTime.String()).Scan(&overlapping)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, appt_date, start_time, end_time,
			 status, appt_type, reason, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4::date, $5::time, $6::time, $7, $8, $9, now(), now(), $10)
		RETURNING `+pgAppointmentColumns,
		a.ID, a.DoctorID, a.PatientID, a.Date.String(), a.StartTime.String(), a.EndTime.String(),
		a.Status, a.Type, a.Reason, a.ExpiresAt)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+pgAppointmentColumns,
		id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgAppointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3::jsonb, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
