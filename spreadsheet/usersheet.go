package spreadsheet

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"
)

// UserSheetColumns is the width of the per-user export sheet.
const UserSheetColumns = 5

// ScanLimit is the last row examined when locating an event id. Locating
// is a linear scan of column A; sheets longer than this are not searched.
const ScanLimit = 1000000

// UserSheetHeader is row 1 of every per-user sheet.
var UserSheetHeader = []interface{}{"ID", "Date", "Hours", "Reason", "Work done"}

// Row is one event as written to a per-user sheet.
type Row struct {
	ID       string
	Date     string
	Hours    float64
	Reason   string
	WorkDone string
}

func (r Row) values() [][]interface{} {
	return [][]interface{}{{r.ID, r.Date, r.Hours, r.Reason, r.WorkDone}}
}

// UserSheet is the real-time export sheet of one user, keyed by event id
// in column A. Row numbers are 1-based and row 1 is the header.
//
// Nothing maps ids to rows between calls: a delete shifts every row below
// it, so each update or delete locates its row again.
type UserSheet struct {
	svc           Service
	spreadsheetID string
	sheet         Sheet
}

// OpenUserSheet resolves the sheet titled title, writing and styling the
// header the first time the sheet is created.
func OpenUserSheet(ctx context.Context, svc Service, spreadsheetID, title string) (*UserSheet, error) {
	sheet, err := Resolve(ctx, svc, spreadsheetID, title, false)
	if err != nil {
		return nil, err
	}
	us := &UserSheet{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}
	if sheet.Created {
		if err := us.writeHeader(ctx); err != nil {
			return nil, err
		}
	}
	return us, nil
}

// Sheet returns the resolved sheet.
func (us *UserSheet) Sheet() Sheet { return us.sheet }

func (us *UserSheet) writeHeader(ctx context.Context) error {
	header := [][]interface{}{UserSheetHeader}
	if err := us.svc.UpdateValues(ctx, us.spreadsheetID, SpanRef(us.sheet.Title, 0, UserSheetColumns), header); err != nil {
		return fmt.Errorf("write header of %q: %w", us.sheet.Title, err)
	}

	id := us.sheet.ID
	requests := []*sheets.Request{
		Format(Grid(id, 0, 1, 0, UserSheetColumns), &sheets.CellFormat{
			BackgroundColor: RGB(217, 217, 217),
			TextFormat:      TextFormat(true, 12, Black),
		}, "userEnteredFormat(backgroundColor,textFormat)"),
		FreezeRows(id, 1),
		AutoResizeColumns(id, 3, UserSheetColumns),
	}
	if _, err := us.svc.BatchUpdate(ctx, us.spreadsheetID, requests); err != nil {
		return fmt.Errorf("format header of %q: %w", us.sheet.Title, err)
	}
	return nil
}

// Append adds a row after the last one.
func (us *UserSheet) Append(ctx context.Context, row Row) error {
	rng := ColumnsRef(us.sheet.Title, UserSheetColumns)
	if err := us.svc.AppendValues(ctx, us.spreadsheetID, rng, row.values()); err != nil {
		return fmt.Errorf("append %s to %q: %w", row.ID, us.sheet.Title, err)
	}
	return nil
}

// LocateRow returns the 1-based row holding id in column A, or 0.
func (us *UserSheet) LocateRow(ctx context.Context, id string) (int, error) {
	rng := fmt.Sprintf("%s!A2:A%d", QuoteTitle(us.sheet.Title), ScanLimit)
	values, err := us.svc.GetValues(ctx, us.spreadsheetID, rng)
	if err != nil {
		return 0, fmt.Errorf("scan %q: %w", us.sheet.Title, err)
	}
	for i, cells := range values {
		if len(cells) > 0 && fmt.Sprint(cells[0]) == id {
			return i + 2, nil
		}
	}
	return 0, nil
}

// UpdateRow overwrites the 1-based row.
func (us *UserSheet) UpdateRow(ctx context.Context, rowNum int, row Row) error {
	if rowNum < 2 {
		return fmt.Errorf("update row %d of %q: data rows start at 2", rowNum, us.sheet.Title)
	}
	if err := us.svc.UpdateValues(ctx, us.spreadsheetID, SpanRef(us.sheet.Title, rowNum-1, UserSheetColumns), row.values()); err != nil {
		return fmt.Errorf("update row %d of %q: %w", rowNum, us.sheet.Title, err)
	}
	return nil
}

// DeleteRow removes the 1-based row; rows below move up by one.
func (us *UserSheet) DeleteRow(ctx context.Context, rowNum int) error {
	if rowNum < 2 {
		return fmt.Errorf("delete row %d of %q: data rows start at 2", rowNum, us.sheet.Title)
	}
	req := DeleteRows(us.sheet.ID, rowNum-1, rowNum)
	if _, err := us.svc.BatchUpdate(ctx, us.spreadsheetID, []*sheets.Request{req}); err != nil {
		return fmt.Errorf("delete row %d of %q: %w", rowNum, us.sheet.Title, err)
	}
	return nil
}
