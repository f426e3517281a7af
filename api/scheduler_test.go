package api

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
)

type mockEnqueuer struct{ mock.Mock }

func (m *mockEnqueuer) Enqueue(ctx context.Context, req report.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type staticOrgs []*overtime.Organization

func (s staticOrgs) ListOrganizations(context.Context) ([]*overtime.Organization, error) {
	return s, nil
}

func newMonthlyReports(orgs staticOrgs, enq ReportEnqueuer) *MonthlyReports {
	m := NewMonthlyReports(orgs, enq, log.New(io.Discard)).WithLocation(time.UTC)
	m.now = func() time.Time { return time.Date(2024, time.April, 1, 6, 0, 0, 0, time.UTC) }
	return m
}

func TestMonthlyReports_EnqueuesPreviousMonth(t *testing.T) {
	// GIVEN: acme and globex have a spreadsheet, initech does not
	// WHEN: The job runs on April 1st
	// THEN: March is enqueued for acme and globex only
	orgs := staticOrgs{
		{Key: "acme", Name: "Acme", SpreadsheetID: "doc-1"},
		{Key: "initech", Name: "Initech"},
		{Key: "globex", Name: "Globex", SpreadsheetID: "doc-2"},
	}
	march := calendar.Month{Year: 2024, Month: time.March}
	enq := &mockEnqueuer{}
	enq.On("Enqueue", mock.Anything, report.Request{Organization: "acme", Month: march, RequestedBy: CronRequester}).Return("run-acme", nil).Once()
	enq.On("Enqueue", mock.Anything, report.Request{Organization: "globex", Month: march, RequestedBy: CronRequester}).Return("run-globex", nil).Once()

	n := newMonthlyReports(orgs, enq).RunOnce(context.Background())

	assert.Equal(t, 2, n)
	enq.AssertExpectations(t)
}

func TestMonthlyReports_MonthFollowsScheduleLocation(t *testing.T) {
	// GIVEN: The job runs in Tokyo, where April 1st 06:00 is still March 31st in UTC
	// WHEN: It fires
	// THEN: March is reported, not February
	tokyo := time.FixedZone("JST", 9*60*60)
	march := calendar.Month{Year: 2024, Month: time.March}
	enq := &mockEnqueuer{}
	enq.On("Enqueue", mock.Anything, report.Request{Organization: "acme", Month: march, RequestedBy: CronRequester}).Return("run-acme", nil).Once()

	m := newMonthlyReports(staticOrgs{{Key: "acme", Name: "Acme", SpreadsheetID: "doc-1"}}, enq).WithLocation(tokyo)
	m.now = func() time.Time { return time.Date(2024, time.April, 1, 6, 0, 0, 0, tokyo) }

	assert.Equal(t, 1, m.RunOnce(context.Background()))
	enq.AssertExpectations(t)
}

func TestMonthlyReports_EnqueueFailureContinues(t *testing.T) {
	orgs := staticOrgs{
		{Key: "acme", Name: "Acme", SpreadsheetID: "doc-1"},
		{Key: "globex", Name: "Globex", SpreadsheetID: "doc-2"},
	}
	enq := &mockEnqueuer{}
	enq.On("Enqueue", mock.Anything, mock.MatchedBy(func(r report.Request) bool { return r.Organization == "acme" })).Return("", errors.New("queue full")).Once()
	enq.On("Enqueue", mock.Anything, mock.MatchedBy(func(r report.Request) bool { return r.Organization == "globex" })).Return("run-globex", nil).Once()

	assert.Equal(t, 1, newMonthlyReports(orgs, enq).RunOnce(context.Background()))
	enq.AssertExpectations(t)
}

func TestMonthlyReports_StartStop(t *testing.T) {
	m := newMonthlyReports(nil, &mockEnqueuer{})

	require.NoError(t, m.Start(""), "an empty schedule disables the job")
	assert.Error(t, m.Start("every tuesday"))

	require.NoError(t, m.Start("0 6 1 * *"))
	assert.Error(t, m.Start("0 6 1 * *"), "already started")
	m.Stop()
	m.Stop()
}
