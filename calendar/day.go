/*
day.go - Calendar day and month abstractions

PURPOSE:
  Every overtime event is booked against a calendar day, never an instant.
  Day wraps a time.Time pinned to UTC midnight so that comparisons always
  use the UTC year/month/day triplet and never the local timezone.

PARSING:
  ParseDay accepts both storage formats seen in the event store:
    "2024-03-05"                 plain ISO date
    "2024-03-04T22:00:00.000Z"   instant serialized by a browser
  Instants are reduced to their UTC triplet (the second example is 2024-03-04).

MONTHS:
  Month is the reporting unit. A month covers the half-open range
  [YYYY-MM-01, next-01). December rolls over into January of the next year.

SEE ALSO:
  - holiday.go: Weekend/override classification
  - overtime/aggregate.go: Groups events by Day and Month
*/
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DayLayout is the storage format for days.
	DayLayout = "2006-01-02"
	// MonthLayout is the storage format for report months.
	MonthLayout = "2006-01"
)

// =============================================================================
// DAY
// =============================================================================

// Day is a calendar day in UTC.
type Day struct {
	Time time.Time
}

// NewDay returns the day for the given UTC triplet.
func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf normalizes an instant to its UTC calendar day.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return NewDay(u.Year(), u.Month(), u.Day())
}

// Today returns the current UTC day.
func Today() Day { return DayOf(time.Now()) }

// ParseDay parses "2006-01-02" or an RFC3339 instant.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DayLayout, s); err == nil {
		return DayOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DayOf(t), nil
	}
	return Day{}, fmt.Errorf("invalid day %q (use YYYY-MM-DD)", s)
}

// MustParseDay is ParseDay for literals in tests and seed data.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Day) Year() int             { return d.Time.Year() }
func (d Day) Month() time.Month     { return d.Time.Month() }
func (d Day) DayOfMonth() int       { return d.Time.Day() }
func (d Day) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Day) IsZero() bool          { return d.Time.IsZero() }

// IsWeekend reports whether the day is a Saturday or a Sunday.
func (d Day) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Equal compares UTC triplets.
func (d Day) Equal(other Day) bool {
	return d.Year() == other.Year() && d.Month() == other.Month() && d.DayOfMonth() == other.DayOfMonth()
}

func (d Day) Before(other Day) bool { return d.Time.Before(other.Time) }
func (d Day) After(other Day) bool  { return d.Time.After(other.Time) }

func (d Day) AddDays(n int) Day { return DayOf(d.Time.AddDate(0, 0, n)) }

// MonthOf returns the month containing the day.
func (d Day) MonthOf() Month { return Month{Year: d.Year(), Month: d.Month()} }

func (d Day) String() string { return d.Time.Format(DayLayout) }

// =============================================================================
// MONTH
// =============================================================================

// Month identifies a reporting month.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (use YYYY-MM)", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// Next returns the following month, rolling December into January.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Previous returns the preceding month.
func (m Month) Previous() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// Start is the first day of the month.
func (m Month) Start() Day { return NewDay(m.Year, m.Month, 1) }

// End is the first day of the next month (exclusive bound).
func (m Month) End() Day { return m.Next().Start() }

// Contains reports whether d falls in [Start, End).
func (m Month) Contains(d Day) bool {
	return !d.Before(m.Start()) && d.Before(m.End())
}

// Before orders months chronologically.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// Label is the human readable form used in report headers, e.g. "March 2024".
func (m Month) Label() string { return fmt.Sprintf("%s %d", m.Month, m.Year) }
