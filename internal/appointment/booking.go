package appointment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

// GetCandidateDates lists the dates of a window with their selectability.
// An empty windowStart means tomorrow and a non-positive windowLength means
// the configured lookahead. Today is never part of a window.
func (s *Service) GetCandidateDates(ctx context.Context, doctorID, windowStart string, windowLength int) ([]availability.CandidateDate, error) {
	verr := &ValidationError{}

	id, err := uuid.Parse(strings.TrimSpace(doctorID))
	if err != nil {
		verr.add("doctor_id", "must be a UUID")
	}

	tomorrow := s.today().AddDays(1)
	start := tomorrow
	if windowStart != "" {
		if start, err = calendar.NormalizeDate(windowStart); err != nil {
			verr.add("start", "must be a date in YYYY-MM-DD form")
		} else if start.Before(tomorrow) {
			verr.add("start", "window must start after today")
		}
	}

	if windowLength <= 0 {
		windowLength = s.cfg.LookaheadDays
	}
	if _, bad := verr.Fields["start"]; !bad && windowLength > 0 {
		last := start.AddDays(windowLength - 1)
		if s.today().DaysUntil(last) > s.cfg.BookingHorizonDays {
			verr.add("days", fmt.Sprintf("window must end within %d days of today", s.cfg.BookingHorizonDays))
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	av, err := s.loadAvailability(ctx, id)
	if err != nil {
		return nil, err
	}

	dates := availability.ResolveCandidateDates(av.Weekly, av.Blocked, start, windowLength)
	if dates == nil {
		dates = []availability.CandidateDate{}
	}
	return dates, nil
}

// GetAvailableSlots returns the free slots of one date, sorted by start.
// Dates that are not selectable or fall outside the booking horizon yield
// an empty list.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID, date string) ([]availability.TimeSlot, error) {
	verr := &ValidationError{}

	id, err := uuid.Parse(strings.TrimSpace(doctorID))
	if err != nil {
		verr.add("doctor_id", "must be a UUID")
	}
	d, err := calendar.NormalizeDate(date)
	if err != nil {
		verr.add("date", "must be a date in YYYY-MM-DD form")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	return s.freeSlots(ctx, id, d)
}

// freeSlots computes the slots of date from live availability and the
// active appointments of that day.
func (s *Service) freeSlots(ctx context.Context, doctorID uuid.UUID, date calendar.Date) ([]availability.TimeSlot, error) {
	av, err := s.loadAvailability(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	if !date.After(today) || today.DaysUntil(date) > s.cfg.BookingHorizonDays {
		return []availability.TimeSlot{}, nil
	}
	if av.Blocked.Contains(date) {
		return []availability.TimeSlot{}, nil
	}
	intervals := av.Weekly.IntervalsFor(date)
	if len(intervals) == 0 {
		return []availability.TimeSlot{}, nil
	}

	active, err := call(s.store, "list active appointments", func() ([]Appointment, error) {
		return s.repo.ListActiveForDoctorOnDate(ctx, doctorID, date)
	})
	if err != nil {
		return nil, err
	}
	booked := make([]availability.Interval, 0, len(active))
	for _, a := range active {
		booked = append(booked, a.Slot())
	}

	slotDuration := s.cfg.SlotDuration
	if av.SlotDuration != nil {
		slotDuration = *av.SlotDuration
	}
	return availability.GenerateSlots(intervals, booked, slotDuration), nil
}

func (s *Service) loadAvailability(ctx context.Context, doctorID uuid.UUID) (*availability.Availability, error) {
	av, err := call(s.store, "load availability", func() (*availability.Availability, error) {
		return s.avail.GetAvailability(ctx, doctorID)
	})
	if err != nil {
		if errors.Is(err, availability.ErrMalformedAvailability) {
			return nil, &ValidationError{Fields: map[string]string{"availability": err.Error()}}
		}
		return nil, err
	}
	return av, nil
}

// bookingInput is a BookingRequest after normalization.
type bookingInput struct {
	doctorID  uuid.UUID
	patientID uuid.UUID
	date      calendar.Date
	slot      availability.TimeSlot
	apptType  AppointmentType
	reason    *string
}

// BookAppointment books a slot for the calling patient. The new
// appointment starts pending and must be confirmed by the doctor before
// it expires.
//
// Steps run in order and the first failure wins: identity, input
// validation, slot availability, persistence. Concurrent attempts at the
// same slot yield exactly one success; the others get a
// SlotUnavailableError.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	if p.Role != identity.RolePatient {
		return nil, &AppointmentError{Code: CodePatientOnly, Message: "only patients can book appointments"}
	}
	if raw := strings.TrimSpace(req.PatientID); raw != "" {
		if claimed, err := uuid.Parse(raw); err == nil && claimed != p.UserID {
			return nil, &AuthError{Reason: "patient_id does not match the authenticated patient"}
		}
	}

	in, err := s.validateBooking(req, p)
	if err != nil {
		return nil, err
	}

	if _, err := call(s.store, "load patient", func() (*Patient, error) {
		return s.repo.GetPatientByID(ctx, in.patientID)
	}); err != nil {
		return nil, err
	}
	if _, err := call(s.store, "load doctor", func() (*Doctor, error) {
		return s.repo.GetDoctorByID(ctx, in.doctorID)
	}); err != nil {
		return nil, err
	}

	unavailable := func(reason string) *SlotUnavailableError {
		return &SlotUnavailableError{DoctorID: in.doctorID, Date: in.date, Start: in.slot.Start, Reason: reason}
	}

	var created *Appointment
	entered := false
	key := redisclient.SlotLockKey(in.doctorID, in.date.String(), in.slot.Start.String())

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		entered = true

		// The slot lock does not cover the patient's other slots; the
		// store repeats this count when it inserts.
		if s.cfg.MaxDailyBookings > 0 {
			n, err := call(s.store, "count patient bookings", func() (int, error) {
				return s.repo.CountActiveForPatientOnDate(lockCtx, in.patientID, in.date)
			})
			if err != nil {
				return err
			}
			if n >= s.cfg.MaxDailyBookings {
				return s.dailyLimitError()
			}
		}

		// Re-derived inside the lock; a slot read before it may be stale.
		free, err := s.freeSlots(lockCtx, in.doctorID, in.date)
		if err != nil {
			return err
		}
		if !availability.ContainsSlot(free, in.slot) {
			return unavailable("slot is not offered on this date")
		}

		expiresAt := s.now().Add(s.cfg.AppointmentTTL)
		appt, err := call(s.store, "insert appointment", func() (*Appointment, error) {
			return s.repo.InsertIfFree(lockCtx, &Appointment{
				ID:        uuid.New(),
				DoctorID:  in.doctorID,
				PatientID: in.patientID,
				Date:      in.date,
				StartTime: in.slot.Start,
				EndTime:   in.slot.End,
				Status:    StatusPending,
				Type:      in.apptType,
				Reason:    in.reason,
				ExpiresAt: &expiresAt,
			}, s.cfg.MaxDailyBookings)
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrSlotTaken):
				return unavailable("slot was just booked by someone else")
			case errors.Is(err, ErrDailyLimit):
				return s.dailyLimitError()
			}
			return err
		}

		created = appt
		s.logEvent(lockCtx, appt, EventAppointmentCreated, map[string]any{
			"end_time":   appt.EndTime.String(),
			"type":       string(appt.Type),
			"expires_at": expiresAt,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, unavailable("slot is being booked by someone else")
		}
		if !entered {
			return nil, &APIError{Op: "acquire slot lock", Err: err}
		}
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", created.Date.String()).
		Str("start_time", created.StartTime.String()).
		Msg("appointment booked")
	return created, nil
}

func (s *Service) dailyLimitError() *AppointmentError {
	return &AppointmentError{
		Code:    CodeDailyLimitExceeded,
		Message: fmt.Sprintf("at most %d appointments per day", s.cfg.MaxDailyBookings),
	}
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}

func (s *Service) validateBooking(req BookingRequest, p identity.Principal) (bookingInput, error) {
	verr := &ValidationError{}
	in := bookingInput{patientID: p.UserID}

	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Type = strings.TrimSpace(req.Type)
	if req.Reason != nil {
		reason := strings.TrimSpace(*req.Reason)
		req.Reason = &reason
	}

	if err := requestValidator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return bookingInput{}, err
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), fieldMessage(fe))
		}
	}
	in.doctorID, _ = uuid.Parse(req.DoctorID)
	in.apptType = AppointmentType(req.Type)
	if req.Reason != nil && *req.Reason != "" {
		in.reason = req.Reason
	}

	var err error
	if in.date, err = calendar.NormalizeDate(req.Date); err != nil {
		verr.add("date", "must be a date in YYYY-MM-DD form")
	}

	start, startErr := calendar.NormalizeTime(req.StartTime)
	if startErr != nil {
		verr.add("start_time", "must be a time in HH:MM form")
	}
	end, endErr := calendar.NormalizeTime(req.EndTime)
	if endErr != nil {
		verr.add("end_time", "must be a time in HH:MM form")
	}
	if startErr == nil && endErr == nil && start >= end {
		verr.add("end_time", "must be after start_time")
	}
	in.slot = availability.TimeSlot{Start: start, End: end}

	if err := verr.orNil(); err != nil {
		return bookingInput{}, err
	}
	return in, nil
}

// ExpiresIn reports how long a pending appointment has left at now.
func ExpiresIn(a *Appointment, now time.Time) time.Duration {
	if a.Status != StatusPending || a.ExpiresAt == nil {
		return 0
	}
	if d := a.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
