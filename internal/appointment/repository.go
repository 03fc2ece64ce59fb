package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = availability.ErrDoctorNotFound
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by InsertIfFree when an active appointment
	// already overlaps the slot or wins the unique index.
	ErrSlotTaken = errors.New("slot already has an active appointment")
	// ErrDailyLimit is returned by InsertIfFree when the patient already
	// holds the maximum number of active appointments on that date.
	ErrDailyLimit = errors.New("patient reached the daily booking limit")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Slot generation and booking limits only look at active appointments.
	ListActiveForDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]Appointment, error)
	CountActiveForPatientOnDate(ctx context.Context, patientID uuid.UUID, date calendar.Date) (int, error)
	// ListAppointmentsByPatient matches any doctor when doctorID is uuid.Nil.
	ListAppointmentsByPatient(ctx context.Context, patientID, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// InsertIfFree atomically re-checks the slot and the patient's daily
	// count, then inserts a. maxDaily <= 0 disables the count. The store's
	// partial unique index on (doctor, date, start) for active rows is the
	// final arbiter.
	InsertIfFree(ctx context.Context, a *Appointment, maxDaily int) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set; it returns
	// ErrAppointmentNotFound when the row is not in status from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// appointmentRecord is an appointment row as read from a store, with date
// and times still in their text form.
type appointmentRecord struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      string
	StartTime string
	EndTime   string
	Status    AppointmentStatus
	Type      AppointmentType
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

func (r appointmentRecord) normalize() (*Appointment, error) {
	date, err := calendar.NormalizeDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("appointment %s date: %w", r.ID, err)
	}
	start, err := calendar.NormalizeTime(r.StartTime)
	if err != nil {
		return nil, fmt.Errorf("appointment %s start: %w", r.ID, err)
	}
	end, err := calendar.NormalizeTime(r.EndTime)
	if err != nil {
		return nil, fmt.Errorf("appointment %s end: %w", r.ID, err)
	}
	return &Appointment{
		ID:        r.ID,
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    r.Status,
		Type:      r.Type,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}, nil
}
