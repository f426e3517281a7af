/*
scheduler.go - Automated monthly reports

PURPOSE:
  Enqueues, once a month, the report of the previous month for every
  organization that has a linked spreadsheet. Reports go through the task
  queue like the prod callable, so rate limits and retries are shared.

DESIGN:
  - robfig/cron drives the schedule (default "0 6 1 * *": the 1st at 06:00)
  - SkipIfStillRunning: a slow pass is never doubled
  - The schedule and the "previous month" share one location (time.Local
    unless WithLocation says otherwise)
  - Organizations without a spreadsheet are skipped, not failed
  - Enqueue failures are logged per organization; the pass continues

USAGE:
  jobs := NewMonthlyReports(store, scheduler, logger)
  jobs.Start("0 6 1 * *")
  // ... later
  jobs.Stop()

SEE ALSO:
  - report/queue.go: Scheduler.Enqueue
  - config/config.go: Jobs.MonthlyReport
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
)

// CronRequester is the uid recorded on cron-triggered runs.
const CronRequester = "cron"

// OrganizationLister enumerates organizations.
type OrganizationLister interface {
	ListOrganizations(ctx context.Context) ([]*overtime.Organization, error)
}

// ReportEnqueuer sends a report request to the task queue.
type ReportEnqueuer interface {
	Enqueue(ctx context.Context, req report.Request) (string, error)
}

// MonthlyReports enqueues last month's report of every organization.
type MonthlyReports struct {
	store   OrganizationLister
	reports ReportEnqueuer
	logger  *log.Logger
	loc     *time.Location
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func NewMonthlyReports(store OrganizationLister, reports ReportEnqueuer, logger *log.Logger) *MonthlyReports {
	return &MonthlyReports{
		store:   store,
		reports: reports,
		logger:  logger.WithPrefix("cron"),
		loc:     time.Local,
		now:     time.Now,
	}
}

// WithLocation sets the zone the schedule fires in and the month is read in.
func (m *MonthlyReports) WithLocation(loc *time.Location) *MonthlyReports {
	if loc != nil {
		m.loc = loc
	}
	return m
}

// Start schedules the job. An empty spec disables it.
func (m *MonthlyReports) Start(spec string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if spec == "" {
		m.logger.Info("monthly reports disabled")
		return nil
	}
	if m.cron != nil {
		return fmt.Errorf("monthly reports already started")
	}

	logger := cronLogger{m.logger}
	c := cron.New(cron.WithLocation(m.loc), cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, func() { m.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("monthly report schedule %q: %w", spec, err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("monthly reports scheduled", "spec", spec)
	return nil
}

// Stop waits for a running pass to finish.
func (m *MonthlyReports) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
}

// RunOnce enqueues the previous month's report of every organization with
// a spreadsheet and returns the number of reports enqueued.
func (m *MonthlyReports) RunOnce(ctx context.Context) int {
	now := m.now().In(m.loc)
	month := calendar.NewDay(now.Year(), now.Month(), now.Day()).MonthOf().Previous()
	logger := m.logger.With("month", month.String())

	orgs, err := m.store.ListOrganizations(ctx)
	if err != nil {
		logger.Error("list organizations", "err", err)
		return 0
	}

	enqueued := 0
	for _, org := range orgs {
		if !org.HasSpreadsheet() {
			logger.Debug("no spreadsheet, skipping", "org", org.Key)
			continue
		}
		runID, err := m.reports.Enqueue(ctx, report.Request{
			Organization: org.Key,
			Month:        month,
			RequestedBy:  CronRequester,
		})
		if err != nil {
			logger.Error("enqueue monthly report", "org", org.Key, "err", err)
			continue
		}
		logger.Debug("monthly report enqueued", "org", org.Key, "run", runID)
		enqueued++
	}
	logger.Info("monthly reports enqueued", "count", enqueued, "organizations", len(orgs))
	return enqueued
}

// cronLogger adapts the process logger to cron.Logger.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}
