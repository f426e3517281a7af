package spreadsheet

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"
)

// Sheet identifies one tab of a spreadsheet.
type Sheet struct {
	ID      int64
	Title   string
	Created bool
}

// Find returns the sheet whose title matches exactly.
func Find(ss *sheets.Spreadsheet, title string) (Sheet, bool) {
	if ss == nil {
		return Sheet{}, false
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return Sheet{ID: s.Properties.SheetId, Title: title}, true
		}
	}
	return Sheet{}, false
}

// Resolve finds the sheet titled title, creating it when absent. When clear
// is set and the sheet already exists, its formats, merges and values are
// wiped so the caller can rewrite it from scratch.
func Resolve(ctx context.Context, svc Service, spreadsheetID, title string, clear bool) (Sheet, error) {
	ss, err := svc.GetSpreadsheet(ctx, spreadsheetID)
	if err != nil {
		return Sheet{}, fmt.Errorf("get spreadsheet: %w", err)
	}

	if sheet, ok := Find(ss, title); ok {
		if clear {
			if err := Clear(ctx, svc, spreadsheetID, sheet); err != nil {
				return Sheet{}, err
			}
		}
		return sheet, nil
	}

	resp, err := svc.BatchUpdate(ctx, spreadsheetID, []*sheets.Request{AddSheet(title)})
	if err != nil {
		return Sheet{}, fmt.Errorf("add sheet %q: %w", title, err)
	}
	if resp == nil || len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return Sheet{}, fmt.Errorf("add sheet %q: empty reply", title)
	}
	return Sheet{ID: resp.Replies[0].AddSheet.Properties.SheetId, Title: title, Created: true}, nil
}

// Clear removes every format, merge and value from a sheet.
func Clear(ctx context.Context, svc Service, spreadsheetID string, sheet Sheet) error {
	all := WholeSheet(sheet.ID)
	if _, err := svc.BatchUpdate(ctx, spreadsheetID, []*sheets.Request{ClearFormats(all), Unmerge(all)}); err != nil {
		return fmt.Errorf("clear formats of %q: %w", sheet.Title, err)
	}
	if err := svc.ClearValues(ctx, spreadsheetID, QuoteTitle(sheet.Title)); err != nil {
		return fmt.Errorf("clear values of %q: %w", sheet.Title, err)
	}
	return nil
}
