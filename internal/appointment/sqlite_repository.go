package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
)

const sqliteAppointmentColumns = `
	id, doctor_id, patient_id, appt_date, start_time, end_time,
	status, appt_type, reason, created_at, updated_at, expires_at`

// SQLiteRepository is the embedded single-node store. Dates and times are
// kept as canonical text so string comparison matches time order.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(sqlDB *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: sqlDB, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func parseSQLiteTime(raw string) (time.Time, error) {
	return time.Parse(db.SQLiteTimeLayout, raw)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanSQLitePatient(row rowScanner) (*Patient, error) {
	var p Patient
	var created, updated string

	if err := row.Scan(&p.ID, &p.Name, &p.Email, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	var err error
	if p.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, fmt.Errorf("patient %s created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, fmt.Errorf("patient %s updated_at: %w", p.ID, err)
	}
	return &p, nil
}

func scanSQLiteDoctor(row rowScanner) (*Doctor, error) {
	var d Doctor
	var slotMinutes sql.NullInt64
	var created, updated string

	if err := row.Scan(&d.ID, &d.Name, &d.Specialty, &slotMinutes, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if slotMinutes.Valid {
		m := int(slotMinutes.Int64)
		d.SlotMinutes = &m
	}
	var err error
	if d.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, fmt.Errorf("doctor %s created_at: %w", d.ID, err)
	}
	if d.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, fmt.Errorf("doctor %s updated_at: %w", d.ID, err)
	}
	return &d, nil
}

func scanSQLiteAppointment(row rowScanner) (*Appointment, error) {
	var rec appointmentRecord
	var created, updated string
	var expires sql.NullString

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
		&created,
		&updated,
		&expires,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if rec.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, fmt.Errorf("appointment %s created_at: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, fmt.Errorf("appointment %s updated_at: %w", rec.ID, err)
	}
	if expires.Valid {
		t, err := parseSQLiteTime(expires.String)
		if err != nil {
			return nil, fmt.Errorf("appointment %s expires_at: %w", rec.ID, err)
		}
		rec.ExpiresAt = &t
	}

	return rec.normalize()
}

func (r *SQLiteRepository) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanSQLiteAppointment(rows)
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

func (r *SQLiteRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = ?
	`, id.String())
	return scanSQLitePatient(row)
}

func (r *SQLiteRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, specialty, slot_minutes, created_at, updated_at
		FROM doctors
		WHERE id = ?
	`, id.String())
	return scanSQLiteDoctor(row)
}

func (r *SQLiteRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE id = ?
	`, id.String())
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) ListActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE doctor_id = ?
		  AND appt_date = ?
		  AND status <> 'canceled'
		ORDER BY start_time
	`, doctorID.String(), date.String())
}

func (r *SQLiteRepository) CountActiveForPatientOnDate(ctx context.Context, patientID uuid.UUID, date calendar.Date) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE patient_id = ?
		  AND appt_date = ?
		  AND status <> 'canceled'
	`, patientID.String(), date.String()).Scan(&n)
	return n, err
}

func (r *SQLiteRepository) ListAppointmentsByPatient(ctx context.Context, patientID, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE patient_id = ?
		  AND (? = '00000000-0000-0000-0000-000000000000' OR doctor_id = ?)
		ORDER BY appt_date DESC, start_time DESC
		LIMIT ? OFFSET ?
	`, patientID.String(), doctorID.String(), doctorID.String(), limit, offset)
}

func (r *SQLiteRepository) InsertIfFree(ctx context.Context, a *Appointment, maxDaily int) (*Appointment, error) {
	// The pool holds a single connection, so the transaction below runs
	// alone and the two counts cannot go stale before the insert.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if maxDaily > 0 {
		var booked int
		err = tx.QueryRowContext(ctx, `
			SELECT count(*)
			FROM appointments
			WHERE patient_id = ?
			  AND appt_date = ?
			  AND status <> 'canceled'
		`, a.PatientID.String(), a.Date.String()).Scan(&booked)
		if err != nil {
			return nil, fmt.Errorf("count patient bookings: %w", err)
		}
		if booked >= maxDaily {
			return nil, ErrDailyLimit
		}
	}

	var overlapping int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = ?
		  AND appt_date = ?
		  AND status <> 'canceled'
		  AND start_time < ?
		  AND end_time > ?
	`, a.DoctorID.String(), a.Date.String(), a.EndTime.String(), a.StartTime.String()).Scan(&overlapping)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return nil, ErrSlotTaken
	}

	now := db.FormatSQLiteTime(r.now())
	var expires *string
	if a.ExpiresAt != nil {
		s := db.FormatSQLiteTime(*a.ExpiresAt)
		expires = &s
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, appt_date, start_time, end_time,
			 status, appt_type, reason, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.DoctorID.String(), a.PatientID.String(), a.Date.String(),
		a.StartTime.String(), a.EndTime.String(), string(a.Status), string(a.Type),
		a.Reason, now, now, expires)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE id = ?
	`, a.ID.String())
	created, err := scanSQLiteAppointment(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *SQLiteRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?,
		    updated_at = ?
		WHERE id = ?
		  AND status = ?
	`, string(to), db.FormatSQLiteTime(r.now()), id.String(), string(from))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrAppointmentNotFound
	}
	return r.GetAppointmentByID(ctx, id)
}

func (r *SQLiteRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < ?
		ORDER BY expires_at
	`, db.FormatSQLiteTime(now))
}

func (r *SQLiteRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *string
	if ev.AppointmentID != nil {
		s := ev.AppointmentID.String()
		appID = &s
	}
	var payload *string
	if len(ev.Payload) > 0 {
		s := string(ev.Payload)
		payload = &s
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, ev.EventType, appID, payload, db.FormatSQLiteTime(created))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
