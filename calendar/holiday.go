package calendar

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// HOLIDAY OVERRIDES - Organization-specific calendar rules
// =============================================================================

// HolidaySet holds an organization's overrides of the weekend rule.
//
// Includes are weekdays forcibly treated as holidays (public holidays).
// Excludes are weekend days forcibly treated as working days.
type HolidaySet struct {
	Includes []Day
	Excludes []Day
}

// IsHoliday classifies a single day.
// A weekend day is a holiday unless excluded; a weekday only if included.
func IsHoliday(d Day, set HolidaySet) bool {
	if d.IsWeekend() {
		return !containsDay(set.Excludes, d)
	}
	return containsDay(set.Includes, d)
}

// IsHoliday is a method form of the package-level IsHoliday.
func (s HolidaySet) IsHoliday(d Day) bool { return IsHoliday(d, s) }

// IsEmpty reports whether the set has no overrides.
func (s HolidaySet) IsEmpty() bool { return len(s.Includes) == 0 && len(s.Excludes) == 0 }

func containsDay(days []Day, d Day) bool {
	for _, candidate := range days {
		if candidate.Equal(d) {
			return true
		}
	}
	return false
}

// holidaySetJSON is the stored shape: {"includes": [...], "excludes": [...]}.
// Entries are ISO dates or RFC3339 instants.
type holidaySetJSON struct {
	Includes []string `json:"includes"`
	Excludes []string `json:"excludes"`
}

// ParseHolidaySet decodes the JSON stored on an organization.
// An empty document yields an empty set.
func ParseHolidaySet(raw string) (HolidaySet, error) {
	if strings.TrimSpace(raw) == "" {
		return HolidaySet{}, nil
	}
	var doc holidaySetJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return HolidaySet{}, fmt.Errorf("decode holidays: %w", err)
	}
	includes, err := parseDays(doc.Includes)
	if err != nil {
		return HolidaySet{}, fmt.Errorf("includes: %w", err)
	}
	excludes, err := parseDays(doc.Excludes)
	if err != nil {
		return HolidaySet{}, fmt.Errorf("excludes: %w", err)
	}
	return HolidaySet{Includes: includes, Excludes: excludes}, nil
}

// MarshalJSON encodes the set in its stored shape.
func (s HolidaySet) MarshalJSON() ([]byte, error) {
	doc := holidaySetJSON{Includes: FormatDays(s.Includes), Excludes: FormatDays(s.Excludes)}
	return json.Marshal(doc)
}

// Encode returns the stored JSON string.
func (s HolidaySet) Encode() (string, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseDays(values []string) ([]Day, error) {
	days := make([]Day, 0, len(values))
	for _, v := range values {
		d, err := ParseDay(v)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

// FormatDays renders days as ISO strings.
func FormatDays(days []Day) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.String()
	}
	return out
}

// =============================================================================
// DAY SETS - Per-user vacation and illness days
// =============================================================================

// DaySet is an unordered set of days keyed by their ISO form.
type DaySet map[string]struct{}

// NewDaySet builds a set from ISO strings. Invalid entries are rejected.
func NewDaySet(values []string) (DaySet, error) {
	set := make(DaySet, len(values))
	for _, v := range values {
		d, err := ParseDay(v)
		if err != nil {
			return nil, err
		}
		set[d.String()] = struct{}{}
	}
	return set, nil
}

// Contains reports membership by UTC triplet.
func (s DaySet) Contains(d Day) bool {
	_, ok := s[d.String()]
	return ok
}
