package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
)

// AppointmentService is the scheduling surface the handlers drive.
// *appointment.Service implements it.
type AppointmentService interface {
	GetCandidateDates(ctx context.Context, doctorID, windowStart string, windowLength int) ([]availability.CandidateDate, error)
	GetAvailableSlots(ctx context.Context, doctorID, date string) ([]availability.TimeSlot, error)
	BookAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// SlotReader serves slot listings, usually the slot cache.
type SlotReader interface {
	GetAvailableSlots(ctx context.Context, doctorID, date string) ([]availability.TimeSlot, error)
}

// SlotInvalidator drops cached slots of a doctor-day.
type SlotInvalidator interface {
	Invalidate(ctx context.Context, doctorID uuid.UUID, date calendar.Date) error
}

type RouterConfig struct {
	Service     AppointmentService
	Slots       SlotReader      // defaults to Service
	Invalidator SlotInvalidator // nil when there is no cache
	Tokens      *identity.Tokens
	Checks      []DependencyCheck
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &handlers{
		svc:   cfg.Service,
		slots: cfg.Slots,
		cache: cfg.Invalidator,
		log:   cfg.Logger,
		now:   time.Now,
	}
	if h.slots == nil {
		h.slots = cfg.Service
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(identity.Middleware(cfg.Tokens))

		r.Get("/doctors/{doctorID}/dates", h.listCandidateDates)
		r.Get("/doctors/{doctorID}/slots", h.listSlots)

		r.Post("/appointments", h.createAppointment)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{id}", h.getAppointment)
		r.Post("/appointments/{id}/confirm", h.transition(cfg.Service.ConfirmAppointment, false))
		r.Post("/appointments/{id}/cancel", h.transition(cfg.Service.CancelAppointment, true))
		r.Post("/appointments/{id}/complete", h.transition(cfg.Service.CompleteAppointment, false))
	})

	return r
}
