package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
)

type CreateAppointmentRequest struct {
	DoctorID  string  `json:"doctor_id"`
	PatientID string  `json:"patient_id,omitempty"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Type      string  `json:"type"`
	Reason    *string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	DoctorID         uuid.UUID  `json:"doctor_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	Date             string     `json:"date"`
	StartTime        string     `json:"start_time"`
	EndTime          string     `json:"end_time"`
	Status           string     `json:"status"`
	Type             string     `json:"type"`
	Reason           *string    `json:"reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	ExpiresInSeconds int64      `json:"expires_in_seconds,omitempty"`
}

func newAppointmentResponse(a *appointment.Appointment, now time.Time) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		Date:             a.Date.String(),
		StartTime:        a.StartTime.String(),
		EndTime:          a.EndTime.String(),
		Status:           string(a.Status),
		Type:             string(a.Type),
		Reason:           a.Reason,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
		ExpiresAt:        a.ExpiresAt,
		ExpiresInSeconds: int64(appointment.ExpiresIn(a, now).Seconds()),
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type CandidateDateResponse struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	Selectable bool   `json:"selectable"`
}

type CandidateDatesResponse struct {
	DoctorID string                  `json:"doctor_id"`
	Dates    []CandidateDateResponse `json:"dates"`
}

func newCandidateDatesResponse(doctorID string, dates []availability.CandidateDate) CandidateDatesResponse {
	out := make([]CandidateDateResponse, 0, len(dates))
	for _, d := range dates {
		out = append(out, CandidateDateResponse{
			Date:       d.Date.String(),
			Weekday:    d.Weekday.String(),
			Selectable: d.Selectable,
		})
	}
	return CandidateDatesResponse{DoctorID: doctorID, Dates: out}
}

type SlotResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type SlotsResponse struct {
	DoctorID string         `json:"doctor_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

func newSlotsResponse(doctorID, date string, slots []availability.TimeSlot) SlotsResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{StartTime: s.Start.String(), EndTime: s.End.String()})
	}
	return SlotsResponse{DoctorID: doctorID, Date: date, Slots: out}
}

type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   string            `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}
