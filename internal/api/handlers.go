package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/identity"
)

const maxBodyBytes = 1 << 16

type handlers struct {
	svc   AppointmentService
	slots SlotReader
	cache SlotInvalidator
	log   zerolog.Logger
	now   func() time.Time
}

func (h *handlers) listCandidateDates(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeValidation(w, map[string]string{"days": "must be a positive integer"})
			return
		}
		days = n
	}

	dates, err := h.svc.GetCandidateDates(r.Context(), doctorID, r.URL.Query().Get("start"), days)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newCandidateDatesResponse(doctorID, dates))
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	date := r.URL.Query().Get("date")

	slots, err := h.slots.GetAvailableSlots(r.Context(), doctorID, date)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSlotsResponse(doctorID, date, slots))
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeValidation(w, map[string]string{"body": err.Error()})
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), appointment.BookingRequest{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Type:      req.Type,
		Reason:    req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.invalidate(r.Context(), appt)
	w.Header().Set("Location", "/v1/appointments/"+appt.ID.String())
	writeJSON(w, http.StatusCreated, newAppointmentResponse(appt, h.now()))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}

	var patientID uuid.UUID
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			fields["patient_id"] = "must be a UUID"
		}
		patientID = id
	} else if p, ok := identity.FromContext(r.Context()); ok && p.Role == identity.RolePatient {
		patientID = p.UserID
	} else {
		fields["patient_id"] = "is required"
	}

	limit, ok := queryInt(q.Get("limit"))
	if !ok {
		fields["limit"] = "must be an integer"
	}
	offset, ok := queryInt(q.Get("offset"))
	if !ok {
		fields["offset"] = "must be an integer"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	appts, err := h.svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	now := h.now()
	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(appts)),
		Limit:        limit,
		Offset:       offset,
	}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, newAppointmentResponse(&appts[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newAppointmentResponse(appt, h.now()))
}

// transition serves the confirm, cancel and complete endpoints. When
// freesSlot is set the cached slots of the appointment's day are dropped.
func (h *handlers) transition(apply func(context.Context, uuid.UUID) (*appointment.Appointment, error), freesSlot bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		if freesSlot {
			h.invalidate(r.Context(), appt)
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt, h.now()))
	}
}

func (h *handlers) invalidate(ctx context.Context, appt *appointment.Appointment) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, appt.DoctorID, appt.Date); err != nil {
		h.log.Warn().Err(err).
			Str("doctor_id", appt.DoctorID.String()).
			Str("date", appt.Date.String()).
			Msg("failed to invalidate slot cache")
	}
}

// handleError maps the service's error kinds to HTTP responses. Each kind
// keeps its own status and message.
func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *appointment.ValidationError
		authErr       *appointment.AuthError
		slotErr       *appointment.SlotUnavailableError
		apptErr       *appointment.AppointmentError
		apiErr        *appointment.APIError
	)

	switch {
	case errors.As(err, &validationErr):
		writeValidation(w, validationErr.Fields)
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Details: authErr.Reason})
	case errors.As(err, &slotErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "slot_unavailable",
			Details:   "pick another time: " + slotErr.Reason,
			Retryable: true,
		})
	case errors.As(err, &apptErr):
		status := http.StatusConflict
		switch apptErr.Code {
		case appointment.CodePatientOnly, appointment.CodeDoctorOnly, appointment.CodeNotOwner:
			status = http.StatusForbidden
		}
		writeJSON(w, status, ErrorResponse{
			Error:     "appointment_error",
			Code:      apptErr.Code,
			Details:   apptErr.Message,
			Retryable: apptErr.Retryable(),
		})
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &apiErr):
		h.log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("backing service failure")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:     "service_unavailable",
			Details:   "a backing service failed, retry later",
			Retryable: true,
		})
	default:
		h.log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeValidation(w, map[string]string{"id": "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// decodeStrict decodes exactly one JSON object and rejects unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_failed", Fields: fields})
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
