package availability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SQLiteProvider reads availability from the embedded SQLite store.
type SQLiteProvider struct {
	db *sql.DB
}

func NewSQLiteProvider(db *sql.DB) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

func (p *SQLiteProvider) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	var slotMinutes sql.NullInt64
	err := p.db.QueryRowContext(ctx, `
		SELECT slot_minutes FROM doctors WHERE id = ?
	`, doctorID.String()).Scan(&slotMinutes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var minutes *int
	if slotMinutes.Valid {
		m := int(slotMinutes.Int64)
		minutes = &m
	}
	b := newBuilder(doctorID, minutes)

	if err := p.loadWeeklyHours(ctx, doctorID, b); err != nil {
		return nil, err
	}
	if err := p.loadBlockedDates(ctx, doctorID, b); err != nil {
		return nil, err
	}

	return b.build()
}

func (p *SQLiteProvider) loadWeeklyHours(ctx context.Context, doctorID uuid.UUID, b *builder) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT weekday, start_time, end_time
		FROM doctor_weekly_hours
		WHERE doctor_id = ?
		ORDER BY weekday, start_time
	`, doctorID.String())
	if err != nil {
		return fmt.Errorf("load weekly hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday, start, end string
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return err
		}
		if err := b.addInterval(weekday, start, end); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (p *SQLiteProvider) loadBlockedDates(ctx context.Context, doctorID uuid.UUID, b *builder) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT blocked_date FROM doctor_blocked_dates WHERE doctor_id = ?
	`, doctorID.String())
	if err != nil {
		return fmt.Errorf("load blocked dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		if err := b.addBlocked(raw); err != nil {
			return err
		}
	}
	return rows.Err()
}
