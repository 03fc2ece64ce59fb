package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/hackgods/doctor-appointment-scheduling/internal/availability"
)

// storeBreaker stops hammering a failing store. Domain outcomes such as
// "not found" or "slot taken" are answers, not failures, and never trip it.
type storeBreaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func newStoreBreaker(failures uint32, timeout time.Duration, log zerolog.Logger) *storeBreaker {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "appointment-store",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &storeBreaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrDoctorNotFound) ||
		errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrDailyLimit) ||
		errors.Is(err, availability.ErrMalformedAvailability) ||
		errors.Is(err, context.Canceled)
}

// call runs fn through the breaker. Domain errors come back untouched;
// anything else, including an open breaker, is wrapped in an APIError.
func call[T any](b *storeBreaker, op string, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if isDomainError(err) {
			return zero, err
		}
		return zero, &APIError{Op: op, Err: err}
	}
	return res.(T), nil
}

// exec is call for operations without a result.
func exec(b *storeBreaker, op string, fn func() error) error {
	_, err := call(b, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
