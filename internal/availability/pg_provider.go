package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgProvider struct {
	pool *pgxpool.Pool
}

func NewPgProvider(pool *pgxpool.Pool) *PgProvider {
	return &PgProvider{pool: pool}
}

func (p *PgProvider) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	var slotMinutes *int
	err := p.pool.QueryRow(ctx, `
		SELECT slot_minutes
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&slotMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	b := newBuilder(doctorID, slotMinutes)

	if err := p.loadWeeklyHours(ctx, doctorID, b); err != nil {
		return nil, err
	}
	if err := p.loadBlockedDates(ctx, doctorID, b); err != nil {
		return nil, err
	}

	return b.build()
}

func (p *PgProvider) loadWeeklyHours(ctx context.Context, doctorID uuid.UUID, b *builder) error {
	rows, err := p.pool.Query(ctx, `
		SELECT weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM doctor_weekly_hours
		WHERE doctor_id = $1
		ORDER BY weekday, start_time
	`, doctorID)
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

func (p *PgProvider) loadBlockedDates(ctx context.Context, doctorID uuid.UUID, b *builder) error {
	rows, err := p.pool.Query(ctx, `
		SELECT to_char(blocked_date, 'YYYY-MM-DD')
		FROM doctor_blocked_dates
		WHERE doctor_id = $1
	`, doctorID)
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
