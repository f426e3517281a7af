package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// Formatting requests address cells by 0-based grid indices while value
// writes use 1-based A1 notation. These helpers are the only place the two
// are converted.

// QuoteTitle quotes a sheet title for use in A1 notation.
func QuoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// ColumnName converts a 0-based column index to letters (0 -> A, 26 -> AA).
func ColumnName(col int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return name
}

// CellRef is the A1 reference of a 0-based (row, col) cell in a sheet.
func CellRef(title string, row, col int) string {
	return fmt.Sprintf("%s!%s%d", QuoteTitle(title), ColumnName(col), row+1)
}

// RowRef is the A1 anchor of column A on a 0-based row: 'title'!A{row+1}.
func RowRef(title string, row int) string { return CellRef(title, row, 0) }

// SpanRef covers columns [0, cols) of one 0-based row.
func SpanRef(title string, row, cols int) string {
	return fmt.Sprintf("%s!A%d:%s%d", QuoteTitle(title), row+1, ColumnName(cols-1), row+1)
}

// ColumnsRef covers whole columns [0, cols), e.g. 'title'!A:E.
func ColumnsRef(title string, cols int) string {
	return fmt.Sprintf("%s!A:%s", QuoteTitle(title), ColumnName(cols-1))
}

// Range is a parsed A1 range. Rows and columns are 0-based; ends are
// exclusive and 0 means unbounded.
type Range struct {
	Sheet    string
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// ParseRange parses the subset of A1 notation this package emits:
// 'title', 'title'!A5, 'title'!A2:A1000000, 'title'!A:E and unquoted titles.
func ParseRange(a1 string) (Range, error) {
	title, ref, err := splitTitle(a1)
	if err != nil {
		return Range{}, err
	}
	r := Range{Sheet: title}
	if ref == "" {
		return r, nil
	}

	from, to, isSpan := strings.Cut(ref, ":")
	row, col, hasRow, hasCol, err := parseCell(from)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", a1, err)
	}
	r.StartRow, r.StartCol = row, col
	if !isSpan {
		r.EndRow, r.EndCol = row+1, col+1
		return r, nil
	}

	row, col, hasRow, hasCol, err = parseCell(to)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", a1, err)
	}
	if hasRow {
		r.EndRow = row + 1
	}
	if hasCol {
		r.EndCol = col + 1
	}
	return r, nil
}

func splitTitle(a1 string) (title, ref string, err error) {
	if !strings.HasPrefix(a1, "'") {
		title, ref, _ = strings.Cut(a1, "!")
		return title, ref, nil
	}
	var b strings.Builder
	for i := 1; i < len(a1); i++ {
		if a1[i] != '\'' {
			b.WriteByte(a1[i])
			continue
		}
		if i+1 < len(a1) && a1[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		rest := a1[i+1:]
		if rest == "" {
			return b.String(), "", nil
		}
		if rest[0] != '!' {
			return "", "", fmt.Errorf("range %q: expected '!' after sheet title", a1)
		}
		return b.String(), rest[1:], nil
	}
	return "", "", fmt.Errorf("range %q: unterminated sheet title", a1)
}

func parseCell(ref string) (row, col int, hasRow, hasCol bool, err error) {
	i := 0
	col = -1
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = (col+1)*26 + int(ref[i]-'A')
		i++
	}
	hasCol = i > 0
	if !hasCol {
		col = 0
	}
	if i < len(ref) {
		n, convErr := strconv.Atoi(ref[i:])
		if convErr != nil || n < 1 {
			return 0, 0, false, false, fmt.Errorf("invalid cell reference %q", ref)
		}
		row, hasRow = n-1, true
	}
	if !hasRow && !hasCol {
		return 0, 0, false, false, fmt.Errorf("empty cell reference")
	}
	return row, col, hasRow, hasCol, nil
}
