/*
Package spreadsheettest provides an in-memory spreadsheet.Service.

The fake keeps a value grid plus the formatting state the layouts touch
(formats, merges, borders, frozen rows, pixel sizes) so tests can assert on
the final sheet rather than on the requests that produced it. Requests it
does not understand fail loudly, as do overlapping merges, mirroring the
real API.

USAGE:
  fake := spreadsheettest.New()
  fake.AddSpreadsheet("sheet-1")
  ... run code against fake ...
  sheet, _ := fake.Sheet("sheet-1", "Report for Acme")
  assert.Equal(t, "TOTAL:", sheet.Cell(7, 1))
*/
package spreadsheettest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/workhours/overtime/spreadsheet"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"
)

// Cell is a 0-based grid position.
type Cell struct{ Row, Col int }

// Span is a 0-based grid rectangle with exclusive ends; 0 ends are unbounded.
type Span struct{ StartRow, EndRow, StartCol, EndCol int }

func spanOf(g *sheets.GridRange) Span {
	return Span{int(g.StartRowIndex), int(g.EndRowIndex), int(g.StartColumnIndex), int(g.EndColumnIndex)}
}

func (s Span) contains(c Cell) bool {
	return c.Row >= s.StartRow && (s.EndRow == 0 || c.Row < s.EndRow) &&
		c.Col >= s.StartCol && (s.EndCol == 0 || c.Col < s.EndCol)
}

func (s Span) bounded() bool { return s.EndRow > s.StartRow && s.EndCol > s.StartCol }

func (s Span) intersects(o Span) bool {
	rowsApart := (s.EndRow != 0 && s.EndRow <= o.StartRow) || (o.EndRow != 0 && o.EndRow <= s.StartRow)
	colsApart := (s.EndCol != 0 && s.EndCol <= o.StartCol) || (o.EndCol != 0 && o.EndCol <= s.StartCol)
	return !rowsApart && !colsApart
}

// Sheet is the observable state of one tab.
type Sheet struct {
	ID          int64
	Title       string
	Values      [][]string
	Formats     map[Cell]*sheets.CellFormat
	Merges      []Span
	Borders     []Span
	AutoResized []Span
	FrozenRows  int
	RowHeights  map[int]int
	ColWidths   map[int]int
}

func newSheet(id int64, title string) *Sheet {
	return &Sheet{
		ID:         id,
		Title:      title,
		Formats:    map[Cell]*sheets.CellFormat{},
		RowHeights: map[int]int{},
		ColWidths:  map[int]int{},
	}
}

// Cell returns the value at a 0-based position, "" when empty.
func (s *Sheet) Cell(row, col int) string {
	if row < len(s.Values) && col < len(s.Values[row]) {
		return s.Values[row][col]
	}
	return ""
}

// Row returns a 0-based row padded to width columns.
func (s *Sheet) Row(row, width int) []string {
	out := make([]string, width)
	for c := range out {
		out[c] = s.Cell(row, c)
	}
	return out
}

// UsedRows is the number of rows up to the last one holding a value.
func (s *Sheet) UsedRows() int {
	for r := len(s.Values) - 1; r >= 0; r-- {
		for _, v := range s.Values[r] {
			if v != "" {
				return r + 1
			}
		}
	}
	return 0
}

func (s *Sheet) set(row, col int, v string) {
	for len(s.Values) <= row {
		s.Values = append(s.Values, nil)
	}
	for len(s.Values[row]) <= col {
		s.Values[row] = append(s.Values[row], "")
	}
	s.Values[row][col] = v
}

func (s *Sheet) clone() *Sheet {
	c := *s
	c.Values = make([][]string, len(s.Values))
	for i, row := range s.Values {
		c.Values[i] = append([]string(nil), row...)
	}
	c.Formats = make(map[Cell]*sheets.CellFormat, len(s.Formats))
	for k, v := range s.Formats {
		c.Formats[k] = v
	}
	c.Merges = append([]Span(nil), s.Merges...)
	c.Borders = append([]Span(nil), s.Borders...)
	c.AutoResized = append([]Span(nil), s.AutoResized...)
	c.RowHeights = make(map[int]int, len(s.RowHeights))
	for k, v := range s.RowHeights {
		c.RowHeights[k] = v
	}
	c.ColWidths = make(map[int]int, len(s.ColWidths))
	for k, v := range s.ColWidths {
		c.ColWidths[k] = v
	}
	return &c
}

type document struct {
	sheets []*Sheet
}

func (d *document) clone() *document {
	c := &document{sheets: make([]*Sheet, len(d.sheets))}
	for i, s := range d.sheets {
		c.sheets[i] = s.clone()
	}
	return c
}

func (d *document) byTitle(title string) *Sheet {
	for _, s := range d.sheets {
		if s.Title == title {
			return s
		}
	}
	return nil
}

func (d *document) byID(id int64) *Sheet {
	for _, s := range d.sheets {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// =============================================================================
// FAKE
// =============================================================================

// Fake implements spreadsheet.Service in memory. It is safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	docs   map[string]*document
	denied map[string]bool
	fail   map[string]error
	nextID int64
	calls  []string
	writes []Write
}

// Write is one AppendValues or UpdateValues call as sent, before the grid
// flattens it to strings.
type Write struct {
	Method      string
	Range       string
	InputOption string
	Values      [][]interface{}
}

var _ spreadsheet.Service = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		docs:   map[string]*document{},
		denied: map[string]bool{},
		fail:   map[string]error{},
		nextID: 1000,
	}
}

// AddSpreadsheet registers a spreadsheet holding the given sheets. With no
// titles it gets a single "Sheet1" with id 0, like a fresh document.
func (f *Fake) AddSpreadsheet(id string, titles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(titles) == 0 {
		titles = []string{"Sheet1"}
	}
	doc := &document{}
	for i, title := range titles {
		doc.sheets = append(doc.sheets, newSheet(int64(i), title))
	}
	f.docs[id] = doc
}

// Deny makes every call on the spreadsheet fail with 403.
func (f *Fake) Deny(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[id] = true
}

// FailNext makes the next call of method (e.g. "BatchUpdate") return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

// Calls returns the method names invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Sheet returns a snapshot of the sheet titled title.
func (f *Fake) Sheet(spreadsheetID, title string) (*Sheet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[spreadsheetID]
	if !ok {
		return nil, false
	}
	s := doc.byTitle(title)
	if s == nil {
		return nil, false
	}
	return s.clone(), true
}

// Titles lists the sheet titles of a spreadsheet in order.
func (f *Fake) Titles(spreadsheetID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[spreadsheetID]
	if !ok {
		return nil
	}
	titles := make([]string, len(doc.sheets))
	for i, s := range doc.sheets {
		titles[i] = s.Title
	}
	return titles
}

func apiError(code int, format string, args ...any) error {
	return &googleapi.Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// enter records the call and returns the document. f.mu must be held.
func (f *Fake) enter(method, spreadsheetID string) (*document, error) {
	f.calls = append(f.calls, method)
	if err, ok := f.fail[method]; ok {
		delete(f.fail, method)
		return nil, err
	}
	if f.denied[spreadsheetID] {
		return nil, apiError(http.StatusForbidden, "The caller does not have permission")
	}
	doc, ok := f.docs[spreadsheetID]
	if !ok {
		return nil, apiError(http.StatusNotFound, "Requested entity was not found.")
	}
	return doc, nil
}

func (f *Fake) GetSpreadsheet(_ context.Context, spreadsheetID string) (*sheets.Spreadsheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.enter("GetSpreadsheet", spreadsheetID)
	if err != nil {
		return nil, err
	}
	ss := &sheets.Spreadsheet{SpreadsheetId: spreadsheetID}
	for _, s := range doc.sheets {
		ss.Sheets = append(ss.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{
			SheetId: s.ID,
			Title:   s.Title,
		}})
	}
	return ss, nil
}

// BatchUpdate applies all requests or none of them.
func (f *Fake) BatchUpdate(_ context.Context, spreadsheetID string, requests []*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.enter("BatchUpdate", spreadsheetID)
	if err != nil {
		return nil, err
	}

	work := doc.clone()
	resp := &sheets.BatchUpdateSpreadsheetResponse{SpreadsheetId: spreadsheetID}
	for i, req := range requests {
		reply, err := f.apply(work, req)
		if err != nil {
			return nil, apiError(http.StatusBadRequest, "requests[%d]: %v", i, err)
		}
		resp.Replies = append(resp.Replies, reply)
	}
	f.docs[spreadsheetID] = work
	return resp, nil
}

func (f *Fake) apply(doc *document, req *sheets.Request) (*sheets.Response, error) {
	reply := &sheets.Response{}
	switch {
	case req.AddSheet != nil:
		title := req.AddSheet.Properties.Title
		if doc.byTitle(title) != nil {
			return nil, fmt.Errorf("a sheet with the name %q already exists", title)
		}
		s := newSheet(f.nextID, title)
		f.nextID++
		doc.sheets = append(doc.sheets, s)
		reply.AddSheet = &sheets.AddSheetResponse{Properties: &sheets.SheetProperties{SheetId: s.ID, Title: title}}

	case req.UpdateCells != nil:
		s, span, err := gridTarget(doc, req.UpdateCells.Range)
		if err != nil {
			return nil, err
		}
		if req.UpdateCells.Fields != "userEnteredFormat" || len(req.UpdateCells.Rows) > 0 {
			return nil, fmt.Errorf("updateCells: only format resets are supported")
		}
		for c := range s.Formats {
			if span.contains(c) {
				delete(s.Formats, c)
			}
		}
		// Borders are part of userEnteredFormat.
		borders := s.Borders[:0]
		for _, b := range s.Borders {
			if !b.intersects(span) {
				borders = append(borders, b)
			}
		}
		s.Borders = borders

	case req.UnmergeCells != nil:
		s, span, err := gridTarget(doc, req.UnmergeCells.Range)
		if err != nil {
			return nil, err
		}
		kept := s.Merges[:0]
		for _, m := range s.Merges {
			if !m.intersects(span) {
				kept = append(kept, m)
			}
		}
		s.Merges = kept

	case req.MergeCells != nil:
		s, span, err := gridTarget(doc, req.MergeCells.Range)
		if err != nil {
			return nil, err
		}
		if !span.bounded() {
			return nil, fmt.Errorf("mergeCells: range must be bounded")
		}
		for _, m := range s.Merges {
			if m.intersects(span) {
				return nil, fmt.Errorf("mergeCells: %+v overlaps existing merge %+v", span, m)
			}
		}
		s.Merges = append(s.Merges, span)

	case req.RepeatCell != nil:
		s, span, err := gridTarget(doc, req.RepeatCell.Range)
		if err != nil {
			return nil, err
		}
		if !span.bounded() {
			return nil, fmt.Errorf("repeatCell: range must be bounded")
		}
		var format *sheets.CellFormat
		if req.RepeatCell.Cell != nil {
			format = req.RepeatCell.Cell.UserEnteredFormat
		}
		for r := span.StartRow; r < span.EndRow; r++ {
			for c := span.StartCol; c < span.EndCol; c++ {
				s.Formats[Cell{r, c}] = overlay(s.Formats[Cell{r, c}], format)
			}
		}

	case req.UpdateSheetProperties != nil:
		props := req.UpdateSheetProperties.Properties
		s := doc.byID(props.SheetId)
		if s == nil {
			return nil, fmt.Errorf("no sheet with id %d", props.SheetId)
		}
		if props.GridProperties != nil {
			s.FrozenRows = int(props.GridProperties.FrozenRowCount)
		}

	case req.UpdateDimensionProperties != nil:
		dim := req.UpdateDimensionProperties.Range
		s := doc.byID(dim.SheetId)
		if s == nil {
			return nil, fmt.Errorf("no sheet with id %d", dim.SheetId)
		}
		px := int(req.UpdateDimensionProperties.Properties.PixelSize)
		target := s.RowHeights
		if dim.Dimension == "COLUMNS" {
			target = s.ColWidths
		}
		for i := dim.StartIndex; i < dim.EndIndex; i++ {
			target[int(i)] = px
		}

	case req.AutoResizeDimensions != nil:
		dim := req.AutoResizeDimensions.Dimensions
		s := doc.byID(dim.SheetId)
		if s == nil {
			return nil, fmt.Errorf("no sheet with id %d", dim.SheetId)
		}
		s.AutoResized = append(s.AutoResized, Span{StartCol: int(dim.StartIndex), EndCol: int(dim.EndIndex)})

	case req.UpdateBorders != nil:
		s, span, err := gridTarget(doc, req.UpdateBorders.Range)
		if err != nil {
			return nil, err
		}
		s.Borders = append(s.Borders, span)

	case req.DeleteDimension != nil:
		dim := req.DeleteDimension.Range
		s := doc.byID(dim.SheetId)
		if s == nil {
			return nil, fmt.Errorf("no sheet with id %d", dim.SheetId)
		}
		if dim.Dimension != "ROWS" {
			return nil, fmt.Errorf("deleteDimension: only ROWS is supported")
		}
		deleteRows(s, int(dim.StartIndex), int(dim.EndIndex))

	default:
		return nil, fmt.Errorf("unsupported request %+v", req)
	}
	return reply, nil
}

func gridTarget(doc *document, g *sheets.GridRange) (*Sheet, Span, error) {
	if g == nil {
		return nil, Span{}, fmt.Errorf("missing range")
	}
	s := doc.byID(g.SheetId)
	if s == nil {
		return nil, Span{}, fmt.Errorf("no sheet with id %d", g.SheetId)
	}
	return s, spanOf(g), nil
}

func overlay(base, top *sheets.CellFormat) *sheets.CellFormat {
	if top == nil {
		return base
	}
	if base == nil {
		cp := *top
		return &cp
	}
	out := *base
	if top.BackgroundColor != nil {
		out.BackgroundColor = top.BackgroundColor
	}
	if top.TextFormat != nil {
		out.TextFormat = top.TextFormat
	}
	if top.HorizontalAlignment != "" {
		out.HorizontalAlignment = top.HorizontalAlignment
	}
	if top.VerticalAlignment != "" {
		out.VerticalAlignment = top.VerticalAlignment
	}
	if top.WrapStrategy != "" {
		out.WrapStrategy = top.WrapStrategy
	}
	return &out
}

func deleteRows(s *Sheet, start, end int) {
	if start < len(s.Values) {
		stop := end
		if stop > len(s.Values) {
			stop = len(s.Values)
		}
		s.Values = append(s.Values[:start], s.Values[stop:]...)
	}
	n := end - start
	formats := make(map[Cell]*sheets.CellFormat, len(s.Formats))
	for c, f := range s.Formats {
		switch {
		case c.Row < start:
			formats[c] = f
		case c.Row >= end:
			formats[Cell{c.Row - n, c.Col}] = f
		}
	}
	s.Formats = formats
}

// =============================================================================
// VALUES
// =============================================================================

func (f *Fake) valueTarget(method, spreadsheetID, a1 string) (*Sheet, spreadsheet.Range, error) {
	doc, err := f.enter(method, spreadsheetID)
	if err != nil {
		return nil, spreadsheet.Range{}, err
	}
	rng, err := spreadsheet.ParseRange(a1)
	if err != nil {
		return nil, spreadsheet.Range{}, apiError(http.StatusBadRequest, "%v", err)
	}
	s := doc.byTitle(rng.Sheet)
	if s == nil {
		return nil, spreadsheet.Range{}, apiError(http.StatusBadRequest, "Unable to parse range: %s", a1)
	}
	return s, rng, nil
}

// record keeps a copy of a value write. f.mu must be held.
func (f *Fake) record(method, a1 string, values [][]interface{}) {
	rows := make([][]interface{}, len(values))
	for i, cells := range values {
		rows[i] = append([]interface{}(nil), cells...)
	}
	f.writes = append(f.writes, Write{Method: method, Range: a1, InputOption: spreadsheet.ValueInputOption, Values: rows})
}

// Writes returns the value writes received so far, oldest first.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

func (f *Fake) write(s *Sheet, row, col int, values [][]interface{}) {
	for r, cells := range values {
		for c, v := range cells {
			str := ""
			if v != nil {
				str = fmt.Sprint(v)
			}
			s.set(row+r, col+c, str)
		}
	}
}

// AppendValues writes after the last row holding a value in the range's columns.
func (f *Fake) AppendValues(_ context.Context, spreadsheetID, a1 string, values [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, rng, err := f.valueTarget("AppendValues", spreadsheetID, a1)
	if err != nil {
		return err
	}
	next := rng.StartRow
	for r := rng.StartRow; r < len(s.Values); r++ {
		for c, v := range s.Values[r] {
			if v != "" && c >= rng.StartCol && (rng.EndCol == 0 || c < rng.EndCol) {
				next = r + 1
				break
			}
		}
	}
	f.record("AppendValues", a1, values)
	f.write(s, next, rng.StartCol, values)
	return nil
}

// UpdateValues writes starting at the range's top-left cell.
func (f *Fake) UpdateValues(_ context.Context, spreadsheetID, a1 string, values [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, rng, err := f.valueTarget("UpdateValues", spreadsheetID, a1)
	if err != nil {
		return err
	}
	f.record("UpdateValues", a1, values)
	f.write(s, rng.StartRow, rng.StartCol, values)
	return nil
}

// GetValues returns the range trimmed of trailing empty rows and cells.
func (f *Fake) GetValues(_ context.Context, spreadsheetID, a1 string) ([][]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, rng, err := f.valueTarget("GetValues", spreadsheetID, a1)
	if err != nil {
		return nil, err
	}
	endRow := len(s.Values)
	if rng.EndRow != 0 && rng.EndRow < endRow {
		endRow = rng.EndRow
	}
	var out [][]interface{}
	for r := rng.StartRow; r < endRow; r++ {
		var cells []interface{}
		last := -1
		for c := rng.StartCol; c < len(s.Values[r]) && (rng.EndCol == 0 || c < rng.EndCol); c++ {
			cells = append(cells, s.Values[r][c])
			if s.Values[r][c] != "" {
				last = len(cells) - 1
			}
		}
		out = append(out, cells[:last+1])
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// ClearValues blanks every cell of the range.
func (f *Fake) ClearValues(_ context.Context, spreadsheetID, a1 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, rng, err := f.valueTarget("ClearValues", spreadsheetID, a1)
	if err != nil {
		return err
	}
	span := Span{rng.StartRow, rng.EndRow, rng.StartCol, rng.EndCol}
	for r := range s.Values {
		for c := range s.Values[r] {
			if span.contains(Cell{r, c}) {
				s.Values[r][c] = ""
			}
		}
	}
	return nil
}
