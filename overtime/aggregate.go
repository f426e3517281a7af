/*
aggregate.go - Event aggregator

PURPOSE:
  Groups one user's raw events by calendar day and by month, sums hours and
  classifies each grouped day against the organization calendar and the
  user's vacation/illness days.

ALGORITHM (per month):
  1. Keep events in [month-01, next-01)
  2. Stable-sort by day, group equal days (sum hours, append reasons/work)
  3. Classify the day:
       holiday (calendar.IsHoliday)       -> holiday bucket
       vacation day, then illness day     -> holiday bucket, SpecialDay set
       otherwise                          -> workday bucket

ORDERING:
  Days inside a month are ascending (report rows).
  AggregateMonths returns months descending (dashboard, most recent first).
*/
package overtime

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/workhours/overtime/calendar"
)

// Classify decides the bucket of a day. Special days only apply to
// non-holidays, and vacation is checked before illness.
func Classify(d calendar.Day, holidays calendar.HolidaySet, vacation, illness calendar.DaySet) (isHoliday bool, special SpecialDay) {
	if calendar.IsHoliday(d, holidays) {
		return true, SpecialDayNone
	}
	if vacation.Contains(d) {
		return false, SpecialDayVacation
	}
	if illness.Contains(d) {
		return false, SpecialDayIllness
	}
	return false, SpecialDayNone
}

// AggregateMonth aggregates the events of a single month.
func AggregateMonth(events []Event, holidays calendar.HolidaySet, vacation, illness calendar.DaySet, month calendar.Month) MonthSummary {
	inMonth := make([]Event, 0, len(events))
	for _, e := range events {
		if month.Contains(e.Date) {
			inMonth = append(inMonth, e)
		}
	}
	return summarize(month, inMonth, holidays, vacation, illness)
}

// AggregateMonths aggregates every month that has events, most recent first.
func AggregateMonths(events []Event, holidays calendar.HolidaySet, vacation, illness calendar.DaySet) []MonthSummary {
	byMonth := make(map[calendar.Month][]Event)
	for _, e := range events {
		m := e.Date.MonthOf()
		byMonth[m] = append(byMonth[m], e)
	}

	months := make([]calendar.Month, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[j].Before(months[i]) })

	summaries := make([]MonthSummary, 0, len(months))
	for _, m := range months {
		summaries = append(summaries, summarize(m, byMonth[m], holidays, vacation, illness))
	}
	return summaries
}

func summarize(month calendar.Month, events []Event, holidays calendar.HolidaySet, vacation, illness calendar.DaySet) MonthSummary {
	summary := MonthSummary{
		Month:        month,
		WorkdayHours: decimal.Zero,
		HolidayHours: decimal.Zero,
		Days:         []ClassifiedDay{},
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	for _, group := range groupByDay(sorted) {
		day := ClassifiedDay{Date: group[0].Date, Hours: decimal.Zero}
		for _, e := range group {
			day.Hours = day.Hours.Add(e.Hours)
			day.Reasons = append(day.Reasons, e.Reason)
			day.WorkDone = append(day.WorkDone, e.WorkDone)
			day.EventIDs = append(day.EventIDs, e.ID)
		}
		day.IsHoliday, day.SpecialDay = Classify(day.Date, holidays, vacation, illness)

		if day.CountsAsHoliday() {
			summary.HolidayHours = summary.HolidayHours.Add(day.Hours)
		} else {
			summary.WorkdayHours = summary.WorkdayHours.Add(day.Hours)
		}
		summary.Days = append(summary.Days, day)
	}
	return summary
}

// groupByDay splits date-sorted events into runs of equal days.
func groupByDay(sorted []Event) [][]Event {
	var groups [][]Event
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Date.Equal(sorted[i].Date) {
			j++
		}
		groups = append(groups, sorted[i:j])
		i = j
	}
	return groups
}

// CalendarTotals is the split before vacation/illness reclassification:
// hours on calendar holidays versus hours on calendar working days.
func CalendarTotals(s MonthSummary) (workday, holiday decimal.Decimal) {
	workday, holiday = decimal.Zero, decimal.Zero
	for _, d := range s.Days {
		if d.IsHoliday {
			holiday = holiday.Add(d.Hours)
		} else {
			workday = workday.Add(d.Hours)
		}
	}
	return workday, holiday
}
