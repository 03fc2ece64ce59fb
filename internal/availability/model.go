package availability

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

var (
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrInvalidInterval  = errors.New("interval start must be before end")
	ErrOverlappingHours = errors.New("working intervals overlap")
	ErrUnknownWeekday   = errors.New("unknown weekday")
)

// Interval is a half-open [Start, End) span of wall-clock time.
type Interval struct {
	Start calendar.TimeOfDay
	End   calendar.TimeOfDay
}

// Overlaps reports whether the two half-open intervals share any minute.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// WorkingInterval is one block of a doctor's recurring weekly hours.
type WorkingInterval = Interval

// TimeSlot is one bookable unit carved out of a working interval.
type TimeSlot = Interval

// WeeklyTemplate maps a weekday to its working intervals.
type WeeklyTemplate map[time.Weekday][]WorkingInterval

// IntervalsFor returns the working intervals for the weekday of d.
func (w WeeklyTemplate) IntervalsFor(d calendar.Date) []WorkingInterval {
	return w[d.Weekday()]
}

// Validate checks start < end, that both lie within 00:00-23:59 and that
// no two intervals of a day overlap. Intervals are sorted in place.
func (w WeeklyTemplate) Validate() error {
	for day, intervals := range w {
		sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
		for i, iv := range intervals {
			if iv.Start >= iv.End || !iv.Start.Valid() || !iv.End.Valid() {
				return fmt.Errorf("%s %s: %w", day, iv, ErrInvalidInterval)
			}
			if i > 0 && intervals[i-1].Overlaps(iv) {
				return fmt.Errorf("%s %s and %s: %w", day, intervals[i-1], iv, ErrOverlappingHours)
			}
		}
		w[day] = intervals
	}
	return nil
}

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownWeekday)
}

// BlockedDates is the set of dates a doctor is fully unavailable.
// Membership is exact date equality.
type BlockedDates map[calendar.Date]struct{}

func NewBlockedDates(dates ...calendar.Date) BlockedDates {
	b := make(BlockedDates, len(dates))
	for _, d := range dates {
		b[d] = struct{}{}
	}
	return b
}

func (b BlockedDates) Contains(d calendar.Date) bool {
	_, ok := b[d]
	return ok
}

// Availability is what the availability provider returns for a doctor.
type Availability struct {
	DoctorID uuid.UUID
	Weekly   WeeklyTemplate
	Blocked  BlockedDates
	// SlotDuration overrides the configured default when set. Zero means
	// each working interval is booked as a whole.
	SlotDuration *time.Duration
}

// CandidateDate is one date of the look-ahead window.
type CandidateDate struct {
	Date       calendar.Date
	Weekday    time.Weekday
	Selectable bool
}
