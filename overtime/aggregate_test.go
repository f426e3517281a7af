package overtime_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func hours(h float64) decimal.Decimal { return decimal.NewFromFloat(h) }

func event(id, date string, h float64, reason string) overtime.Event {
	return overtime.Event{
		ID:       id,
		Date:     calendar.MustParseDay(date),
		Hours:    hours(h),
		Reason:   reason,
		WorkDone: "work " + id,
	}
}

func month(t *testing.T, s string) calendar.Month {
	m, err := calendar.ParseMonth(s)
	require.NoError(t, err)
	return m
}

func daySet(t *testing.T, days ...string) calendar.DaySet {
	set, err := calendar.NewDaySet(days)
	require.NoError(t, err)
	return set
}

func assertHours(t *testing.T, want float64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, hours(want).Equal(got), "%s: want %v, got %s", msg, want, got)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAggregateMonth_IncludedWeekdayIsHoliday(t *testing.T) {
	// GIVEN: Monday 2024-03-04 is declared a holiday
	// WHEN: 3 hours are logged on it
	// THEN: they land in the holiday bucket
	holidays := calendar.HolidaySet{Includes: []calendar.Day{calendar.MustParseDay("2024-03-04")}}
	events := []overtime.Event{event("e1", "2024-03-04", 3, "release")}

	s := overtime.AggregateMonth(events, holidays, nil, nil, month(t, "2024-03"))

	require.Len(t, s.Days, 1)
	assert.True(t, s.Days[0].IsHoliday)
	assertHours(t, 3, s.HolidayHours, "holiday hours")
	assertHours(t, 0, s.WorkdayHours, "workday hours")
}

func TestAggregateMonth_ExcludedWeekendIsWorkday(t *testing.T) {
	// GIVEN: Saturday 2024-03-09 is a working Saturday
	holidays := calendar.HolidaySet{Excludes: []calendar.Day{calendar.MustParseDay("2024-03-09")}}
	events := []overtime.Event{event("e1", "2024-03-09", 5, "migration")}

	s := overtime.AggregateMonth(events, holidays, nil, nil, month(t, "2024-03"))

	require.Len(t, s.Days, 1)
	assert.False(t, s.Days[0].IsHoliday)
	assertHours(t, 5, s.WorkdayHours, "workday hours")
	assertHours(t, 0, s.HolidayHours, "holiday hours")
}

func TestAggregateMonth_SameDayEventsMerge(t *testing.T) {
	events := []overtime.Event{
		event("e1", "2024-03-05", 2, "incident"),
		event("e2", "2024-03-05", 3, "deploy"),
	}

	s := overtime.AggregateMonth(events, calendar.HolidaySet{}, nil, nil, month(t, "2024-03"))

	require.Len(t, s.Days, 1)
	d := s.Days[0]
	assertHours(t, 5, d.Hours, "merged hours")
	assert.Equal(t, []string{"incident", "deploy"}, d.Reasons)
	assert.Equal(t, []string{"work e1", "work e2"}, d.WorkDone)
	assert.Equal(t, []string{"e1", "e2"}, d.EventIDs)
}

func TestAggregateMonth_FiltersHalfOpenRange(t *testing.T) {
	events := []overtime.Event{
		event("feb", "2024-02-29", 1, ""),
		event("first", "2024-03-01", 2, ""),
		event("last", "2024-03-31", 4, ""),
		event("apr", "2024-04-01", 8, ""),
	}

	s := overtime.AggregateMonth(events, calendar.HolidaySet{}, nil, nil, month(t, "2024-03"))

	require.Len(t, s.Days, 2)
	assert.Equal(t, "2024-03-01", s.Days[0].Date.String())
	assert.Equal(t, "2024-03-31", s.Days[1].Date.String())
	assertHours(t, 6, s.TotalHours(), "total")
}

func TestAggregateMonth_DecemberRollover(t *testing.T) {
	events := []overtime.Event{
		event("dec", "2024-12-31", 2, ""),
		event("jan", "2025-01-01", 3, ""),
	}

	s := overtime.AggregateMonth(events, calendar.HolidaySet{}, nil, nil, month(t, "2024-12"))

	require.Len(t, s.Days, 1)
	assert.Equal(t, "2024-12-31", s.Days[0].Date.String())
	assert.Equal(t, "2025-01", s.Month.Next().String())
}

func TestAggregateMonth_DaysAscending(t *testing.T) {
	events := []overtime.Event{
		event("c", "2024-03-20", 1, ""),
		event("a", "2024-03-02", 1, ""),
		event("b", "2024-03-11", 1, ""),
	}

	s := overtime.AggregateMonth(events, calendar.HolidaySet{}, nil, nil, month(t, "2024-03"))

	var got []string
	for _, d := range s.Days {
		got = append(got, d.Date.String())
	}
	assert.Equal(t, []string{"2024-03-02", "2024-03-11", "2024-03-20"}, got)
}

func TestAggregateMonth_VacationBeforeIllness(t *testing.T) {
	// GIVEN: Tuesday 5th is both a vacation and an illness day, Wednesday 6th is illness
	vacation := daySet(t, "2024-03-05")
	illness := daySet(t, "2024-03-05", "2024-03-06")
	events := []overtime.Event{
		event("e1", "2024-03-05", 2, ""),
		event("e2", "2024-03-06", 1, ""),
		event("e3", "2024-03-07", 4, ""),
	}

	s := overtime.AggregateMonth(events, calendar.HolidaySet{}, vacation, illness, month(t, "2024-03"))

	require.Len(t, s.Days, 3)
	assert.Equal(t, overtime.SpecialDayVacation, s.Days[0].SpecialDay)
	assert.Equal(t, overtime.SpecialDayIllness, s.Days[1].SpecialDay)
	assert.Equal(t, overtime.SpecialDayNone, s.Days[2].SpecialDay)
	for _, d := range s.Days {
		assert.False(t, d.IsHoliday, "special days never set IsHoliday")
	}
	assert.Equal(t, "yes (vacation)", s.Days[0].HolidayLabel())
	assert.Equal(t, "yes (illness)", s.Days[1].HolidayLabel())
	assert.Equal(t, "no", s.Days[2].HolidayLabel())
	assertHours(t, 3, s.HolidayHours, "holiday hours")
	assertHours(t, 4, s.WorkdayHours, "workday hours")
}

func TestAggregateMonth_SpecialDayIgnoredOnHoliday(t *testing.T) {
	// Saturday 9th is a plain weekend and also listed as vacation.
	s := overtime.AggregateMonth(
		[]overtime.Event{event("e1", "2024-03-09", 2, "")},
		calendar.HolidaySet{}, daySet(t, "2024-03-09"), nil, month(t, "2024-03"))

	require.Len(t, s.Days, 1)
	assert.True(t, s.Days[0].IsHoliday)
	assert.Equal(t, overtime.SpecialDayNone, s.Days[0].SpecialDay)
	assert.Equal(t, "yes", s.Days[0].HolidayLabel())
}

func TestAggregateMonth_NoEvents(t *testing.T) {
	s := overtime.AggregateMonth(nil, calendar.HolidaySet{}, nil, nil, month(t, "2024-03"))

	assert.True(t, s.IsEmpty())
	assertHours(t, 0, s.TotalHours(), "total")
}

// =============================================================================
// LAWS
// =============================================================================

func TestAggregateMonth_TotalLaw(t *testing.T) {
	// For any set of events in the month, the calendar split (before
	// vacation/illness) sums to the total of all event hours.
	holidays := calendar.HolidaySet{
		Includes: []calendar.Day{calendar.MustParseDay("2024-03-04")},
		Excludes: []calendar.Day{calendar.MustParseDay("2024-03-16")},
	}
	vacation := daySet(t, "2024-03-12")

	var events []overtime.Event
	want := decimal.Zero
	for i := 1; i <= 31; i++ {
		h := float64(i%5) + 0.25
		events = append(events, event(fmt.Sprintf("e%d", i), fmt.Sprintf("2024-03-%02d", i), h, ""))
		want = want.Add(hours(h))
		if i%3 == 0 {
			events = append(events, event(fmt.Sprintf("x%d", i), fmt.Sprintf("2024-03-%02d", i), 1.5, ""))
			want = want.Add(hours(1.5))
		}
	}

	s := overtime.AggregateMonth(events, holidays, vacation, nil, month(t, "2024-03"))
	workday, holiday := overtime.CalendarTotals(s)

	assert.True(t, want.Equal(workday.Add(holiday)), "calendar split %s + %s != %s", workday, holiday, want)
	assert.True(t, want.Equal(s.TotalHours()), "buckets %s != %s", s.TotalHours(), want)
	assert.Len(t, s.Days, 31)
}

func TestAggregateMonths_DescendingMonths(t *testing.T) {
	events := []overtime.Event{
		event("a", "2024-01-10", 1, ""),
		event("b", "2024-12-01", 1, ""),
		event("c", "2023-12-31", 1, ""),
		event("d", "2024-12-02", 1, ""),
	}

	months := overtime.AggregateMonths(events, calendar.HolidaySet{}, nil, nil)

	require.Len(t, months, 3)
	assert.Equal(t, "2024-12", months[0].Month.String())
	assert.Equal(t, "2024-01", months[1].Month.String())
	assert.Equal(t, "2023-12", months[2].Month.String())
	require.Len(t, months[0].Days, 2)
	assert.Equal(t, "2024-12-01", months[0].Days[0].Date.String())
}

func TestMinutes(t *testing.T) {
	assert.True(t, hours(90).Equal(overtime.Minutes(hours(1.5))))
	assert.True(t, hours(20).Equal(overtime.Minutes(decimal.NewFromInt(1).Div(decimal.NewFromInt(3))).Round(6)))
}

// =============================================================================
// ERRORS & RESULTS
// =============================================================================

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("run: %w", overtime.NewError(overtime.KindNoUser, "acme", "u1", nil))

	assert.True(t, errors.Is(err, overtime.ErrNoUser))
	assert.False(t, errors.Is(err, overtime.ErrNoOrganization))
	assert.Equal(t, overtime.KindNoUser, overtime.KindOf(err))
	assert.Equal(t, overtime.KindUnknown, overtime.KindOf(errors.New("boom")))
	assert.True(t, overtime.IsNotFound(err))
	assert.True(t, overtime.IsAuthError(overtime.ErrNotAdmin))
	assert.Contains(t, err.Error(), "organization=acme")
}

func TestResult(t *testing.T) {
	assert.Equal(t, overtime.Result{Success: true}, overtime.ResultOf(nil))

	res := overtime.Fail(overtime.NewError(overtime.KindNoUser, "acme", "u1", nil))
	assert.Equal(t, overtime.KindNoUser, res.Error)
	assert.Equal(t, "acme", res.Organization)
	assert.Equal(t, "u1", res.Key)

	res = overtime.Fail(errors.New("boom"))
	assert.Equal(t, overtime.KindUnknown, res.Error)
	assert.Equal(t, "boom", res.Details)
}

func TestEventTitleAndValidate(t *testing.T) {
	e := overtime.Event{Date: calendar.MustParseDay("2024-03-05"), Hours: hours(2.5), WorkDone: "Rebuilt the staging cluster"}
	assert.Equal(t, "Rebuilt the staging ... - 2.5 hours", e.Title())
	assert.NoError(t, e.Validate())

	e.Hours = decimal.Zero
	assert.ErrorIs(t, e.Validate(), overtime.ErrInvalidEvent)
}
