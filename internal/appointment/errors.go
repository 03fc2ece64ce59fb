package appointment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

// Sub-codes carried by AppointmentError.
const (
	CodePatientOnly            = "PATIENT_ONLY"
	CodeDoctorOnly             = "DOCTOR_ONLY"
	CodeNotOwner               = "NOT_OWNER"
	CodeDailyLimitExceeded     = "DAILY_LIMIT_EXCEEDED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeAppointmentExpired     = "APPOINTMENT_EXPIRED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil returns e only when a field was recorded.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AuthError means the caller is not authenticated or is not who the
// request claims. Not retryable.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication required: " + e.Reason
}

// SlotUnavailableError means the requested slot is not free any more.
// Retry only after fetching slots again.
type SlotUnavailableError struct {
	DoctorID uuid.UUID
	Date     calendar.Date
	Start    calendar.TimeOfDay
	Reason   string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s %s with doctor %s is unavailable: %s", e.Date, e.Start, e.DoctorID, e.Reason)
}

func (e *SlotUnavailableError) Retryable() bool { return true }

// AppointmentError is a domain rule violation identified by Code.
type AppointmentError struct {
	Code    string
	Message string
}

func (e *AppointmentError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *AppointmentError) Retryable() bool {
	return e.Code == CodeConcurrentModification
}

// APIError wraps a store, cache or transport failure. Retry with backoff;
// the outcome of a write that timed out must be re-read, not assumed.
type APIError struct {
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Retryable() bool { return true }
