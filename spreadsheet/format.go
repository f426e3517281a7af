package spreadsheet

import "google.golang.org/api/sheets/v4"

// =============================================================================
// REQUEST BUILDERS
// =============================================================================
//
// Index arguments are 0-based with exclusive ends, matching GridRange.
// Zero-valued ids and start indices are force-sent: the first sheet of a
// spreadsheet usually has id 0, and omitempty would drop it.

// RGB builds a color from 0-255 components.
func RGB(r, g, b int) *sheets.Color {
	return &sheets.Color{
		Red:   float64(r) / 255,
		Green: float64(g) / 255,
		Blue:  float64(b) / 255,
	}
}

var (
	White = RGB(255, 255, 255)
	Black = RGB(0, 0, 0)
)

// Grid builds a GridRange. An end of 0 leaves that side unbounded.
func Grid(sheetID int64, startRow, endRow, startCol, endCol int) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(startRow),
		EndRowIndex:      int64(endRow),
		StartColumnIndex: int64(startCol),
		EndColumnIndex:   int64(endCol),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}
}

// WholeSheet is an unbounded range over every cell of a sheet.
func WholeSheet(sheetID int64) *sheets.GridRange {
	return &sheets.GridRange{SheetId: sheetID, ForceSendFields: []string{"SheetId"}}
}

func dimension(sheetID int64, dim string, start, end int) *sheets.DimensionRange {
	return &sheets.DimensionRange{
		SheetId:         sheetID,
		Dimension:       dim,
		StartIndex:      int64(start),
		EndIndex:        int64(end),
		ForceSendFields: []string{"SheetId", "StartIndex"},
	}
}

// AddSheet creates a sheet with the given title.
func AddSheet(title string) *sheets.Request {
	return &sheets.Request{AddSheet: &sheets.AddSheetRequest{
		Properties: &sheets.SheetProperties{Title: title},
	}}
}

// ClearFormats resets the user-entered format of every cell in the range.
func ClearFormats(rng *sheets.GridRange) *sheets.Request {
	return &sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
		Range:  rng,
		Fields: "userEnteredFormat",
	}}
}

// Unmerge breaks every merge intersecting the range.
func Unmerge(rng *sheets.GridRange) *sheets.Request {
	return &sheets.Request{UnmergeCells: &sheets.UnmergeCellsRequest{Range: rng}}
}

// Merge merges the whole range into one cell.
func Merge(rng *sheets.GridRange) *sheets.Request {
	return &sheets.Request{MergeCells: &sheets.MergeCellsRequest{
		Range:     rng,
		MergeType: "MERGE_ALL",
	}}
}

// Format applies one CellFormat to every cell of the range. fields is the
// update mask, e.g. "userEnteredFormat(backgroundColor,textFormat)".
func Format(rng *sheets.GridRange, format *sheets.CellFormat, fields string) *sheets.Request {
	return &sheets.Request{RepeatCell: &sheets.RepeatCellRequest{
		Range:  rng,
		Cell:   &sheets.CellData{UserEnteredFormat: format},
		Fields: fields,
	}}
}

// FreezeRows sets the frozen row count of a sheet.
func FreezeRows(sheetID int64, rows int) *sheets.Request {
	return &sheets.Request{UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
		Properties: &sheets.SheetProperties{
			SheetId:         sheetID,
			GridProperties:  &sheets.GridProperties{FrozenRowCount: int64(rows)},
			ForceSendFields: []string{"SheetId"},
		},
		Fields: "gridProperties.frozenRowCount",
	}}
}

// RowHeight sets the pixel height of rows [start, end).
func RowHeight(sheetID int64, start, end, px int) *sheets.Request {
	return pixelSize(dimension(sheetID, "ROWS", start, end), px)
}

// ColumnWidth sets the pixel width of columns [start, end).
func ColumnWidth(sheetID int64, start, end, px int) *sheets.Request {
	return pixelSize(dimension(sheetID, "COLUMNS", start, end), px)
}

func pixelSize(rng *sheets.DimensionRange, px int) *sheets.Request {
	return &sheets.Request{UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
		Range:      rng,
		Properties: &sheets.DimensionProperties{PixelSize: int64(px)},
		Fields:     "pixelSize",
	}}
}

// AutoResizeColumns fits columns [start, end) to their content.
func AutoResizeColumns(sheetID int64, start, end int) *sheets.Request {
	return &sheets.Request{AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
		Dimensions: dimension(sheetID, "COLUMNS", start, end),
	}}
}

// DeleteRows removes rows [start, end); rows below shift up.
func DeleteRows(sheetID int64, start, end int) *sheets.Request {
	return &sheets.Request{DeleteDimension: &sheets.DeleteDimensionRequest{
		Range: dimension(sheetID, "ROWS", start, end),
	}}
}

// SolidBorders draws a 1px black border around and inside every cell.
func SolidBorders(rng *sheets.GridRange) *sheets.Request {
	border := func() *sheets.Border {
		return &sheets.Border{Style: "SOLID", Width: 1, Color: Black}
	}
	return &sheets.Request{UpdateBorders: &sheets.UpdateBordersRequest{
		Range:           rng,
		Top:             border(),
		Bottom:          border(),
		Left:            border(),
		Right:           border(),
		InnerHorizontal: border(),
		InnerVertical:   border(),
	}}
}

// TextFormat is a shorthand for bold/size/color text.
func TextFormat(bold bool, size int, color *sheets.Color) *sheets.TextFormat {
	return &sheets.TextFormat{Bold: bold, FontSize: int64(size), ForegroundColor: color}
}
