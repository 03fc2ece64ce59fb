package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
)

func date(t *testing.T, raw string) calendar.Date {
	t.Helper()
	d, err := calendar.NormalizeDate(raw)
	require.NoError(t, err)
	return d
}

func TestResolveCandidateDates(t *testing.T) {
	template := WeeklyTemplate{
		time.Monday:    {iv("09:00", "12:00")},
		time.Wednesday: {iv("13:00", "17:00")},
	}
	blocked := NewBlockedDates(date(t, "2026-10-21"))

	got := ResolveCandidateDates(template, blocked, date(t, "2026-10-19"), 10)
	require.Len(t, got, 10)

	var selectable []string
	for i, c := range got {
		assert.Equal(t, date(t, "2026-10-19").AddDays(i), c.Date)
		assert.Equal(t, c.Date.Weekday(), c.Weekday)
		if c.Selectable {
			selectable = append(selectable, c.Date.String())
		}
	}
	assert.Equal(t, []string{"2026-10-19", "2026-10-26", "2026-10-28"}, selectable)
}

func TestResolveCandidateDates_BlockedDateMatchesExactly(t *testing.T) {
	everyDay := WeeklyTemplate{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		everyDay[d] = []WorkingInterval{iv("09:00", "12:00")}
	}
	blocked := NewBlockedDates(date(t, "2026-10-21"))

	got := ResolveCandidateDates(everyDay, blocked, date(t, "2026-10-20"), 10)
	require.Len(t, got, 10)
	for _, c := range got {
		assert.Equal(t, c.Date.String() != "2026-10-21", c.Selectable, c.Date.String())
	}
}

func TestResolveCandidateDates_CrossesMonthAndYear(t *testing.T) {
	got := ResolveCandidateDates(WeeklyTemplate{}, nil, date(t, "2026-12-30"), 4)
	require.Len(t, got, 4)
	assert.Equal(t, "2026-12-30", got[0].Date.String())
	assert.Equal(t, "2027-01-02", got[3].Date.String())
	for _, c := range got {
		assert.False(t, c.Selectable)
	}
}

func TestResolveCandidateDates_EmptyWindow(t *testing.T) {
	assert.Nil(t, ResolveCandidateDates(WeeklyTemplate{}, nil, date(t, "2026-10-19"), 0))
}

func TestWeeklyTemplateValidate(t *testing.T) {
	ok := WeeklyTemplate{time.Friday: {iv("14:00", "16:00"), iv("08:00", "12:00")}}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "08:00-12:00", ok[time.Friday][0].String(), "sorted by start")

	overlapping := WeeklyTemplate{time.Friday: {iv("08:00", "12:00"), iv("11:00", "13:00")}}
	assert.ErrorIs(t, overlapping.Validate(), ErrOverlappingHours)

	inverted := WeeklyTemplate{time.Friday: {iv("12:00", "08:00")}}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidInterval)

	// Bookings cannot name 24:00, so hours may not end there either.
	midnight := WeeklyTemplate{time.Friday: {{Start: calendar.MustTimeOfDay("22:00"), End: calendar.TimeOfDay(24 * 60)}}}
	assert.ErrorIs(t, midnight.Validate(), ErrInvalidInterval)

	lastMinute := WeeklyTemplate{time.Friday: {iv("22:00", "23:59")}}
	assert.NoError(t, lastMinute.Validate())
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday("saturday")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d)

	_, err = ParseWeekday("mon")
	assert.ErrorIs(t, err, ErrUnknownWeekday)
}
