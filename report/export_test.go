package report_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
	"github.com/workhours/overtime/spreadsheet"
)

const aliceSheet = "alice@acme.test"

func exportEvent(id, date string, h float64, work string) *overtime.Event {
	return &overtime.Event{
		ID:              id,
		OrganizationKey: "acme",
		UID:             "alice",
		Date:            calendar.MustParseDay(date),
		Hours:           decimal.NewFromFloat(h),
		Reason:          "release",
		WorkDone:        work,
	}
}

func created(e *overtime.Event) report.EventChange {
	return report.EventChange{Organization: "acme", UID: "alice", EventID: e.ID, After: e}
}

func TestExporter_CreateWritesHeaderAndRow(t *testing.T) {
	// GIVEN: A spreadsheet without a sheet for alice
	// WHEN: alice creates an event
	// THEN: Her sheet is created with the header and the event on row 2
	f := newFixture(t)
	f.seed(t)
	x := report.NewExporter(f.store, f.fake, f.logger)

	require.NoError(t, x.HandleChange(context.Background(), created(exportEvent("e1", "2024-03-04", 2, "deploy"))))

	s, ok := f.fake.Sheet(docID, aliceSheet)
	require.True(t, ok)
	assert.Equal(t, []string{"ID", "Date", "Hours", "Reason", "Work done"}, s.Row(0, spreadsheet.UserSheetColumns))
	assert.Equal(t, []string{"e1", "2024-03-04", "2", "release", "deploy"}, s.Row(1, spreadsheet.UserSheetColumns))
	assert.Equal(t, 1, s.FrozenRows)
}

func TestExporter_FreeTextIsWrittenLiteral(t *testing.T) {
	// GIVEN: An event whose reason looks like a formula and whose work looks like a date
	// WHEN: It is exported
	// THEN: The write is RAW, the text cells are sent verbatim and hours go out as a number
	f := newFixture(t)
	f.seed(t)
	x := report.NewExporter(f.store, f.fake, f.logger)

	e := exportEvent("e1", "2024-03-04", 2.5, "1/2")
	e.Reason = `=IMPORTRANGE("doc","A1:Z9")`
	require.NoError(t, x.HandleChange(context.Background(), created(e)))

	writes := f.fake.Writes()
	require.NotEmpty(t, writes)
	last := writes[len(writes)-1]
	assert.Equal(t, "AppendValues", last.Method)
	assert.Equal(t, "RAW", last.InputOption)
	require.Len(t, last.Values, 1)
	assert.Equal(t, []interface{}{"e1", "2024-03-04", 2.5, `=IMPORTRANGE("doc","A1:Z9")`, "1/2"}, last.Values[0])

	s, _ := f.fake.Sheet(docID, aliceSheet)
	assert.Equal(t, `=IMPORTRANGE("doc","A1:Z9")`, s.Cell(1, 3))
}

func TestExporter_UpdateAndDeleteLocateRows(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	x := report.NewExporter(f.store, f.fake, f.logger)

	e1 := exportEvent("e1", "2024-03-04", 2, "deploy")
	e2 := exportEvent("e2", "2024-03-05", 1, "review")
	e3 := exportEvent("e3", "2024-03-06", 3, "migrate")
	for _, e := range []*overtime.Event{e1, e2, e3} {
		require.NoError(t, x.HandleChange(ctx, created(e)))
	}

	// update in place
	e2b := exportEvent("e2", "2024-03-05", 1.5, "review again")
	require.NoError(t, x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "alice", EventID: "e2", Before: e2, After: e2b}))
	s, _ := f.fake.Sheet(docID, aliceSheet)
	assert.Equal(t, []string{"e2", "2024-03-05", "1.5", "release", "review again"}, s.Row(2, spreadsheet.UserSheetColumns))

	// delete shifts e3 up
	require.NoError(t, x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "alice", EventID: "e1", Before: e1}))
	s, _ = f.fake.Sheet(docID, aliceSheet)
	assert.Equal(t, "e2", s.Cell(1, 0))
	assert.Equal(t, "e3", s.Cell(2, 0))
	assert.Equal(t, 3, s.UsedRows())

	// update of e3 lands on its new row
	e3b := exportEvent("e3", "2024-03-06", 4, "migrate")
	require.NoError(t, x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "alice", EventID: "e3", Before: e3, After: e3b}))
	s, _ = f.fake.Sheet(docID, aliceSheet)
	assert.Equal(t, "4", s.Cell(2, 2))
	assert.Equal(t, 3, s.UsedRows())
}

func TestExporter_MissingRows(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	x := report.NewExporter(f.store, f.fake, f.logger)

	ghost := exportEvent("ghost", "2024-03-04", 2, "deploy")

	// delete of a row that was never exported is a no-op
	require.NoError(t, x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "alice", EventID: "ghost", Before: ghost}))

	// update of a row that was never exported appends it
	require.NoError(t, x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "alice", EventID: "ghost", Before: ghost, After: ghost}))
	s, _ := f.fake.Sheet(docID, aliceSheet)
	assert.Equal(t, "ghost", s.Cell(1, 0))
}

func TestExporter_NoSpreadsheetIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetSpreadsheetID(ctx, "acme", ""))
	x := report.NewExporter(f.store, f.fake, f.logger)

	assert.NoError(t, x.HandleChange(ctx, created(exportEvent("e1", "2024-03-04", 2, "deploy"))))
	assert.Empty(t, f.fake.Calls())
}

func TestExporter_Failures(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	x := report.NewExporter(f.store, f.fake, f.logger)

	err := x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "mallory", EventID: "e1", After: exportEvent("e1", "2024-03-04", 1, "x")})
	assert.ErrorIs(t, err, overtime.ErrNoUser)

	err = x.HandleChange(ctx, report.EventChange{Organization: "acme", UID: "alice", EventID: "e1"})
	assert.ErrorIs(t, err, overtime.ErrNoParams)

	f.fake.Deny(docID)
	err = x.HandleChange(ctx, created(exportEvent("e1", "2024-03-04", 2, "deploy")))
	assert.ErrorIs(t, err, overtime.ErrNotAuthorized)
}
