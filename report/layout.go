/*
layout.go - Aggregate report layout

PURPOSE:
  Builds the requests and value writes that render one monthly report sheet.
  The builder never talks to the API; Apply sends what was accumulated.

LAYOUT (10 columns):
  #, Name, WorkdayHours, WorkdayDate, HolidayHours, HolidayDate,
  Reason, WorkDone, WorkMinutesWorkday, WorkMinutesHoliday

  row 0        title, merged over all columns
  rows 1-2     column headers (pairs merged on row 1)
  per user     name row, month row, one row per classified day, totals row
  no events    header row, one row per user (omitted when empty)

CURSOR:
  The caller owns the row cursor. Every block takes the cursor and returns
  the next free row:

    cursor := l.Header(org.Name)                 // 3
    cursor = l.UserBlock(cursor, name, summary)  // + 2 + K + 1
    cursor = l.NoEventsBlock(cursor, month, names) // + 1 + M, or + 0
    l.Finalize(cursor)

  Formatting requests use the 0-based cursor; value writes use the A1 row
  cursor+1. RowRef is the only conversion point.
*/
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/spreadsheet"
	"google.golang.org/api/sheets/v4"
)

// Columns is the width of the aggregate report.
const Columns = 10

// HeaderRows is the size of the header block.
const HeaderRows = 3

// Column indices.
const (
	colNumber = iota
	colName
	colWorkdayHours
	colWorkdayDate
	colHolidayHours
	colHolidayDate
	colReason
	colWorkDone
	colWorkdayMinutes
	colHolidayMinutes
)

var columnWidths = [Columns]int{50, 180, 120, 120, 120, 120, 350, 480, 120, 120}

var (
	titleBackground   = spreadsheet.RGB(11, 83, 148)
	headerBackground  = spreadsheet.RGB(207, 226, 243)
	userBackground    = spreadsheet.RGB(217, 234, 211)
	monthBackground   = spreadsheet.RGB(239, 239, 239)
	totalsBackground  = spreadsheet.RGB(255, 242, 204)
	noEventBackground = spreadsheet.RGB(244, 204, 204)
)

const titleRowHeight = 60

// ValueWrite is one values.update call.
type ValueWrite struct {
	Range  string
	Values [][]interface{}
}

// Layout accumulates the rendering of one sheet.
type Layout struct {
	sheet    spreadsheet.Sheet
	requests []*sheets.Request
	writes   []ValueWrite
}

func NewLayout(sheet spreadsheet.Sheet) *Layout {
	return &Layout{sheet: sheet}
}

func (l *Layout) Requests() []*sheets.Request { return l.requests }
func (l *Layout) Writes() []ValueWrite        { return l.writes }

func (l *Layout) grid(startRow, endRow, startCol, endCol int) *sheets.GridRange {
	return spreadsheet.Grid(l.sheet.ID, startRow, endRow, startCol, endCol)
}

func (l *Layout) write(cursor int, rows ...[]interface{}) {
	l.writes = append(l.writes, ValueWrite{Range: spreadsheet.RowRef(l.sheet.Title, cursor), Values: rows})
}

func (l *Layout) format(startRow, endRow int, format *sheets.CellFormat) {
	l.requests = append(l.requests, spreadsheet.Format(
		l.grid(startRow, endRow, 0, Columns), format,
		"userEnteredFormat(backgroundColor,textFormat,horizontalAlignment,verticalAlignment,wrapStrategy)",
	))
}

func (l *Layout) merge(row, startCol, endCol int) {
	l.requests = append(l.requests, spreadsheet.Merge(l.grid(row, row+1, startCol, endCol)))
}

// =============================================================================
// BLOCKS
// =============================================================================

// Header renders rows 0-2 and the sheet-wide settings. It returns the
// cursor of the first free row.
func (l *Layout) Header(organizationName string) int {
	l.write(0,
		[]interface{}{"Overtime of " + organizationName},
		[]interface{}{"", "Name", "On workdays\n(hours and date)", "", "On holidays\n(hours and date)", "", "Reason for overtime", "Work done", "Work in minutes", ""},
		[]interface{}{"#", "", "Hours", "Date", "Hours", "Date", "", "", "Workdays", "Holidays"},
	)

	l.merge(0, 0, Columns)
	l.merge(1, colWorkdayHours, colHolidayHours)
	l.merge(1, colHolidayHours, colReason)
	l.merge(1, colWorkdayMinutes, Columns)

	l.format(0, 1, &sheets.CellFormat{
		BackgroundColor:     titleBackground,
		TextFormat:          spreadsheet.TextFormat(true, 14, spreadsheet.White),
		HorizontalAlignment: "CENTER",
		VerticalAlignment:   "MIDDLE",
	})
	l.format(1, HeaderRows, &sheets.CellFormat{
		BackgroundColor:     headerBackground,
		TextFormat:          spreadsheet.TextFormat(true, 10, spreadsheet.Black),
		HorizontalAlignment: "CENTER",
		VerticalAlignment:   "MIDDLE",
		WrapStrategy:        "WRAP",
	})

	l.requests = append(l.requests,
		spreadsheet.FreezeRows(l.sheet.ID, HeaderRows),
		spreadsheet.RowHeight(l.sheet.ID, 0, 1, titleRowHeight),
	)
	for col, px := range columnWidths {
		l.requests = append(l.requests, spreadsheet.ColumnWidth(l.sheet.ID, col, col+1, px))
	}
	return HeaderRows
}

// UserBlock renders one member with events: name row, month row, one row
// per classified day and a totals row. It returns cursor + 2 + K + 1.
func (l *Layout) UserBlock(cursor int, name string, summary overtime.MonthSummary) int {
	rows := [][]interface{}{
		{name},
		{summary.Month.Label()},
	}
	for i, day := range summary.Days {
		rows = append(rows, dayRow(i+1, name, day))
	}
	rows = append(rows, totalsRow(summary))
	l.write(cursor, rows...)

	l.merge(cursor, 0, Columns)
	l.merge(cursor+1, 0, Columns)
	l.format(cursor, cursor+1, &sheets.CellFormat{
		BackgroundColor: userBackground,
		TextFormat:      spreadsheet.TextFormat(true, 12, spreadsheet.Black),
	})
	l.format(cursor+1, cursor+2, &sheets.CellFormat{
		BackgroundColor: monthBackground,
		TextFormat:      spreadsheet.TextFormat(false, 10, spreadsheet.Black),
	})

	first := cursor + 2
	next := first + len(summary.Days)
	if len(summary.Days) > 0 {
		l.format(first, next, &sheets.CellFormat{
			VerticalAlignment: "TOP",
			WrapStrategy:      "WRAP",
		})
	}
	l.format(next, next+1, &sheets.CellFormat{
		BackgroundColor: totalsBackground,
		TextFormat:      spreadsheet.TextFormat(true, 10, spreadsheet.Black),
	})
	return next + 1
}

// NoEventsBlock lists members without events in the month. With no names
// nothing is rendered and the cursor is returned unchanged.
func (l *Layout) NoEventsBlock(cursor int, month calendar.Month, names []string) int {
	if len(names) == 0 {
		return cursor
	}
	rows := [][]interface{}{{"Users without overtime in " + month.Label()}}
	for i, name := range names {
		rows = append(rows, []interface{}{i + 1, name})
	}
	l.write(cursor, rows...)

	l.merge(cursor, 0, Columns)
	l.format(cursor, cursor+1, &sheets.CellFormat{
		BackgroundColor: noEventBackground,
		TextFormat:      spreadsheet.TextFormat(true, 12, spreadsheet.Black),
	})
	return cursor + 1 + len(names)
}

// Finalize borders every cell of rows [0, cursor).
func (l *Layout) Finalize(cursor int) {
	l.requests = append(l.requests, spreadsheet.SolidBorders(l.grid(0, cursor, 0, Columns)))
}

// Apply sends the value writes, then the formatting batch.
func (l *Layout) Apply(ctx context.Context, svc spreadsheet.Service, spreadsheetID string) error {
	for _, w := range l.writes {
		if err := svc.UpdateValues(ctx, spreadsheetID, w.Range, w.Values); err != nil {
			return fmt.Errorf("write %s: %w", w.Range, err)
		}
	}
	if _, err := svc.BatchUpdate(ctx, spreadsheetID, l.requests); err != nil {
		return fmt.Errorf("format %q: %w", l.sheet.Title, err)
	}
	return nil
}

// =============================================================================
// ROWS
// =============================================================================

func dayRow(n int, name string, day overtime.ClassifiedDay) []interface{} {
	row := make([]interface{}, Columns)
	for i := range row {
		row[i] = ""
	}
	row[colNumber] = n
	row[colName] = name
	row[colReason] = strings.Join(day.Reasons, "\n")
	row[colWorkDone] = strings.Join(day.WorkDone, "\n")

	if day.CountsAsHoliday() {
		row[colHolidayHours] = day.Hours.InexactFloat64()
		row[colHolidayDate] = DateLabel(day)
		row[colHolidayMinutes] = minutes(day.Hours)
	} else {
		row[colWorkdayHours] = day.Hours.InexactFloat64()
		row[colWorkdayDate] = DateLabel(day)
		row[colWorkdayMinutes] = minutes(day.Hours)
	}
	return row
}

func totalsRow(s overtime.MonthSummary) []interface{} {
	return []interface{}{
		"", "TOTAL:",
		s.WorkdayHours.InexactFloat64(), "",
		s.HolidayHours.InexactFloat64(), "",
		"", "",
		minutes(s.WorkdayHours), minutes(s.HolidayHours),
	}
}

func minutes(h decimal.Decimal) float64 { return overtime.Minutes(h).InexactFloat64() }

// DateLabel is the date cell of a day row; special days are annotated.
func DateLabel(day overtime.ClassifiedDay) string {
	if day.SpecialDay != overtime.SpecialDayNone {
		return fmt.Sprintf("%s (%s)", day.Date, day.SpecialDay)
	}
	return day.Date.String()
}

// RowCount is the number of rows a report with the given day counts and
// no-events members occupies.
func RowCount(daysPerUser []int, noEvents int) int {
	rows := HeaderRows
	for _, k := range daysPerUser {
		rows += 2 + k + 1
	}
	if noEvents > 0 {
		rows += 1 + noEvents
	}
	return rows
}
