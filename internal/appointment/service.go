package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/events"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCanceled  = "APPOINTMENT_CANCELED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentExpired   = "APPOINTMENT_EXPIRED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SlotInvalidator drops cached slots of a doctor-day.
type SlotInvalidator interface {
	Invalidate(ctx context.Context, doctorID uuid.UUID, date calendar.Date) error
}

type Service struct {
	repo      Repository
	avail     availability.Provider
	locker    redisclient.Locker
	publisher events.Publisher
	slots     SlotInvalidator
	store     *storeBreaker
	cfg       config.Config
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	avail availability.Provider,
	locker redisclient.Locker,
	publisher events.Publisher,
	cfg config.Config,
	log zerolog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NewNoopPublisher(log)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		repo:      repo,
		avail:     avail,
		locker:    locker,
		publisher: publisher,
		store:     newStoreBreaker(cfg.BreakerFailures, cfg.BreakerTimeout, log),
		cfg:       cfg,
		log:       log.With().Str("component", "appointment").Logger(),
		now:       time.Now,
	}
}

// WithClock replaces the service clock. Used by tests and simulations.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithSlotInvalidator makes expiry drop the cached slots of each day it
// frees. Callers that cancel or book invalidate on their own.
func (s *Service) WithSlotInvalidator(inv SlotInvalidator) *Service {
	s.slots = inv
	return s
}

// today is the current calendar date in the doctors' time zone.
func (s *Service) today() calendar.Date {
	return calendar.DateOf(s.now().In(s.cfg.Location))
}

func (s *Service) principal(ctx context.Context) (identity.Principal, error) {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Principal{}, &AuthError{Reason: "no authenticated caller"}
	}
	return p, nil
}

func (s *Service) loadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return call(s.store, "load appointment", func() (*Appointment, error) {
		return s.repo.GetAppointmentByID(ctx, id)
	})
}

// GetAppointment returns one appointment visible to the caller.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, appt) {
		return nil, &AppointmentError{Code: CodeNotOwner, Message: "appointment belongs to someone else"}
	}
	return appt, nil
}

// ListAppointmentsByPatient pages through a patient's appointments, newest
// first. Patients see their own; a doctor sees only those held with them.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}

	doctorID := uuid.Nil
	switch p.Role {
	case identity.RoleAdmin:
	case identity.RoleDoctor:
		doctorID = p.UserID
	case identity.RolePatient:
		if p.UserID != patientID {
			return nil, &AppointmentError{Code: CodeNotOwner, Message: "patients can only list their own appointments"}
		}
	default:
		return nil, &AppointmentError{Code: CodeNotOwner, Message: "cannot list appointments"}
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := call(s.store, "list appointments", func() ([]Appointment, error) {
		return s.repo.ListAppointmentsByPatient(ctx, patientID, doctorID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}

// ConfirmAppointment moves a pending appointment to confirmed. Only the
// appointment's doctor may confirm. A pending appointment past its expiry
// is canceled instead.
func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireDoctorOwner(p, appt); err != nil {
		return nil, err
	}

	if appt.Status == StatusPending && appt.ExpiresAt != nil && appt.ExpiresAt.Before(s.now()) {
		if _, err := s.transition(ctx, appt, StatusPending, StatusCanceled, EventAppointmentExpired, map[string]any{
			"reason": "confirm_after_expiry",
		}); err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to cancel expired appointment")
		} else {
			s.freeSlot(ctx, appt)
		}
		return nil, &AppointmentError{Code: CodeAppointmentExpired, Message: "appointment expired before it was confirmed"}
	}

	return s.transition(ctx, appt, StatusPending, StatusConfirmed, EventAppointmentConfirmed, map[string]any{})
}

// CancelAppointment cancels a pending or confirmed appointment. The patient
// who booked it and the doctor it is with may cancel. The slot becomes
// bookable again immediately.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, appt) {
		return nil, &AppointmentError{Code: CodeNotOwner, Message: "appointment belongs to someone else"}
	}

	from := appt.Status
	if from != StatusPending && from != StatusConfirmed {
		return nil, invalidTransition(from, StatusCanceled)
	}
	return s.transition(ctx, appt, from, StatusCanceled, EventAppointmentCanceled, map[string]any{
		"canceled_by": string(p.Role),
	})
}

// CompleteAppointment marks a confirmed appointment as held.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireDoctorOwner(p, appt); err != nil {
		return nil, err
	}
	return s.transition(ctx, appt, StatusConfirmed, StatusCompleted, EventAppointmentCompleted, map[string]any{})
}

// ExpirePendingAppointments cancels every pending appointment whose
// expiry has passed and returns how many it canceled. It runs as the
// system, outside any caller's identity.
func (s *Service) ExpirePendingAppointments(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := call(s.store, "find expired appointments", func() ([]Appointment, error) {
		return s.repo.FindExpiredPending(ctx, now)
	})
	if err != nil {
		return 0, fmt.Errorf("find expired pending appointments: %w", err)
	}

	expired := 0
	for i := range candidates {
		appt := &candidates[i]
		if _, err := s.transition(ctx, appt, StatusPending, StatusCanceled, EventAppointmentExpired, map[string]any{
			"reason": "worker",
		}); err != nil {
			// Confirmed or canceled since it was read.
			var apptErr *AppointmentError
			if errors.As(err, &apptErr) && apptErr.Code == CodeConcurrentModification {
				continue
			}
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			continue
		}
		s.freeSlot(ctx, appt)
		expired++
	}
	return expired, nil
}

// transition applies a compare-and-set status change and records it.
func (s *Service) transition(ctx context.Context, appt *Appointment, from, to AppointmentStatus, event string, payload map[string]any) (*Appointment, error) {
	if appt.Status != from {
		return nil, invalidTransition(appt.Status, to)
	}

	updated, err := call(s.store, "update appointment status", func() (*Appointment, error) {
		return s.repo.UpdateAppointmentStatus(ctx, appt.ID, from, to)
	})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, &AppointmentError{
				Code:    CodeConcurrentModification,
				Message: "appointment changed while it was being updated, reload and retry",
			}
		}
		return nil, err
	}

	payload["from"] = string(from)
	payload["to"] = string(to)
	s.logEvent(ctx, updated, event, payload)
	return updated, nil
}

func (s *Service) freeSlot(ctx context.Context, appt *Appointment) {
	if s.slots == nil {
		return
	}
	if err := s.slots.Invalidate(ctx, appt.DoctorID, appt.Date); err != nil {
		s.log.Warn().Err(err).
			Str("doctor_id", appt.DoctorID.String()).
			Str("date", appt.Date.String()).
			Msg("failed to invalidate slot cache")
	}
}

func invalidTransition(from, to AppointmentStatus) error {
	return &AppointmentError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move appointment from %s to %s", from, to),
	}
}

func canView(p identity.Principal, appt *Appointment) bool {
	switch p.Role {
	case identity.RoleAdmin:
		return true
	case identity.RolePatient:
		return appt.PatientID == p.UserID
	case identity.RoleDoctor:
		return appt.DoctorID == p.UserID
	}
	return false
}

func requireDoctorOwner(p identity.Principal, appt *Appointment) error {
	switch p.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleDoctor:
		if appt.DoctorID != p.UserID {
			return &AppointmentError{Code: CodeNotOwner, Message: "appointment is with another doctor"}
		}
		return nil
	}
	return &AppointmentError{Code: CodeDoctorOnly, Message: "only the doctor can do this"}
}

// logEvent stores the event and publishes it. Failures are logged and
// never fail the operation that produced the event.
func (s *Service) logEvent(ctx context.Context, appt *Appointment, eventType string, payload map[string]any) {
	payload["appointment_id"] = appt.ID.String()
	payload["doctor_id"] = appt.DoctorID.String()
	payload["patient_id"] = appt.PatientID.String()
	payload["date"] = appt.Date.String()
	payload["start_time"] = appt.StartTime.String()

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to insert event log")
	}

	if err := s.publisher.Publish(ctx, events.RoutingKey(eventType), data); err != nil {
		s.log.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to publish event")
	}
}
