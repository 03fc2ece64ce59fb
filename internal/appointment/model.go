package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCanceled  AppointmentStatus = "canceled"
)

// Active reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s != StatusCanceled
}

type AppointmentType string

const (
	TypeInPerson AppointmentType = "in_person"
	TypeVideo    AppointmentType = "video"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID          uuid.UUID
	Name        string
	Specialty   *string
	SlotMinutes *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      calendar.Date
	StartTime calendar.TimeOfDay
	EndTime   calendar.TimeOfDay
	Status    AppointmentStatus
	Type      AppointmentType
	Reason    *string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Slot returns the interval the appointment occupies.
func (a Appointment) Slot() availability.TimeSlot {
	return availability.TimeSlot{Start: a.StartTime, End: a.EndTime}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingRequest carries the raw booking fields exactly as received.
// Every field is normalized by the service before use. Dates and times go
// through the calendar package, the rest through the validate tags.
type BookingRequest struct {
	DoctorID  string  `json:"doctor_id" validate:"required,uuid"`
	PatientID string  `json:"patient_id" validate:"omitempty,uuid"` // must match the caller when set
	Date      string  `json:"date"`                                 // YYYY-MM-DD
	StartTime string  `json:"start_time"`                           // HH:MM
	EndTime   string  `json:"end_time"`                             // HH:MM
	Type      string  `json:"type" validate:"required,oneof=in_person video"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}
