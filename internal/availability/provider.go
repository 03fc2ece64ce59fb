package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

// ErrMalformedAvailability is returned when stored availability does not
// pass normalization. Nothing is guessed from partial rows.
var ErrMalformedAvailability = errors.New("malformed availability data")

// Provider supplies a doctor's weekly template and blocked dates.
type Provider interface {
	GetAvailability(ctx context.Context, doctorID uuid.UUID) (*Availability, error)
}

// builder assembles an Availability from raw store rows, normalizing every
// value on the way in.
type builder struct {
	av *Availability
}

func newBuilder(doctorID uuid.UUID, slotMinutes *int) *builder {
	av := &Availability{
		DoctorID: doctorID,
		Weekly:   make(WeeklyTemplate),
		Blocked:  make(BlockedDates),
	}
	if slotMinutes != nil {
		d := time.Duration(*slotMinutes) * time.Minute
		av.SlotDuration = &d
	}
	return &builder{av: av}
}

func (b *builder) addInterval(weekday, start, end string) error {
	day, err := ParseWeekday(weekday)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAvailability, err)
	}
	s, err := calendar.NormalizeTime(start)
	if err != nil {
		return fmt.Errorf("%w: %s start %q: %v", ErrMalformedAvailability, weekday, start, err)
	}
	e, err := calendar.NormalizeTime(end)
	if err != nil {
		return fmt.Errorf("%w: %s end %q: %v", ErrMalformedAvailability, weekday, end, err)
	}
	b.av.Weekly[day] = append(b.av.Weekly[day], WorkingInterval{Start: s, End: e})
	return nil
}

func (b *builder) addBlocked(raw string) error {
	d, err := calendar.NormalizeDate(raw)
	if err != nil {
		return fmt.Errorf("%w: blocked date %q: %v", ErrMalformedAvailability, raw, err)
	}
	b.av.Blocked[d] = struct{}{}
	return nil
}

func (b *builder) build() (*Availability, error) {
	if err := b.av.Weekly.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAvailability, err)
	}
	return b.av, nil
}
