package availability

import (
	"github.com/teambition/rrule-go"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

// ResolveCandidateDates returns every date of the window in order, each
// flagged selectable when its weekday has working hours and it is not
// blocked. Unselectable dates are kept so callers can render them disabled.
func ResolveCandidateDates(template WeeklyTemplate, blocked BlockedDates, windowStart calendar.Date, windowLength int) []CandidateDate {
	if windowLength <= 0 {
		return nil
	}

	dates := windowDates(windowStart, windowLength)
	out := make([]CandidateDate, 0, len(dates))
	for _, d := range dates {
		out = append(out, CandidateDate{
			Date:       d,
			Weekday:    d.Weekday(),
			Selectable: len(template.IntervalsFor(d)) > 0 && !blocked.Contains(d),
		})
	}
	return out
}

// windowDates enumerates n consecutive days starting at start.
func windowDates(start calendar.Date, n int) []calendar.Date {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start.Time(),
		Count:   n,
	})
	if err != nil {
		dates := make([]calendar.Date, 0, n)
		for i := 0; i < n; i++ {
			dates = append(dates, start.AddDays(i))
		}
		return dates
	}

	occurrences := rule.All()
	dates := make([]calendar.Date, 0, len(occurrences))
	for _, t := range occurrences {
		dates = append(dates, calendar.DateOf(t))
	}
	return dates
}
