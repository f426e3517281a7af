package report

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/metrics"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/spreadsheet"
)

// Request names one report run.
type Request struct {
	RunID        string
	Organization string
	Month        calendar.Month
	RequestedBy  string
	Mode         overtime.RunMode

	// Attempt and Retryable are set by the task handler. A retryable
	// failure leaves the run dispatched instead of failed.
	Attempt   int
	Retryable bool
}

// Outcome describes what a successful run rendered.
type Outcome struct {
	RunID    string
	Sheet    spreadsheet.Sheet
	Users    int
	NoEvents int
	Rows     int
}

// Runner executes report runs. It holds no per-run state and may run
// several reports concurrently.
type Runner struct {
	store  Store
	svc    spreadsheet.Service
	logger *log.Logger
	now    func() time.Time
}

func NewRunner(store Store, svc spreadsheet.Service, logger *log.Logger) *Runner {
	return &Runner{
		store:  store,
		svc:    svc,
		logger: logger.WithPrefix("report"),
		now:    time.Now,
	}
}

// userBlock is one member with events in the month.
type userBlock struct {
	name    string
	summary overtime.MonthSummary
}

// Run renders the report of req.Organization for req.Month and records the
// run. The returned error carries an overtime.ErrorKind.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	if req.Mode == "" {
		req.Mode = overtime.RunInline
	}
	if req.Organization == "" || req.Month.IsZero() {
		return Outcome{}, overtime.NewError(overtime.KindNoParams, req.Organization, "", nil)
	}

	run, err := r.begin(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	logger := r.logger.With("org", req.Organization, "month", req.Month.String(), "run", run.ID)
	logger.Info("report run started", "mode", req.Mode, "attempt", run.Attempt)

	started := r.now()
	out, err := r.render(ctx, req.Organization, req.Month, logger)
	out.RunID = run.ID
	elapsed := r.now().Sub(started)

	completed := r.now().UTC()
	switch {
	case err == nil:
		run.Status = overtime.RunSucceeded
		run.Error = ""
		run.Details = ""
		run.Users = out.Users + out.NoEvents
		run.Rows = out.Rows
		run.CompletedAt = &completed
		metrics.ReportRows.Observe(float64(out.Rows))
		logger.Info("report run succeeded", "rows", out.Rows, "users", run.Users, "took", elapsed)

	case req.Retryable && !overtime.IsNotFound(err) && !overtime.IsAuthError(err):
		run.Status = overtime.RunDispatched
		run.Error = overtime.KindOf(err)
		run.Details = err.Error()
		logger.Warn("report run attempt failed", "err", err, "attempt", run.Attempt)

	default:
		run.Status = overtime.RunFailed
		run.Error = overtime.KindOf(err)
		run.Details = err.Error()
		run.CompletedAt = &completed
		logger.Error("report run failed", "err", err, "kind", run.Error)
	}

	metrics.ReportRuns.WithLabelValues(string(req.Mode), string(run.Status)).Inc()
	metrics.ReportDuration.WithLabelValues(string(req.Mode)).Observe(elapsed.Seconds())

	// Record the outcome even when the run consumed the caller's deadline.
	if serr := r.store.SaveReportRun(context.WithoutCancel(ctx), run); serr != nil {
		logger.Error("record report run", "err", serr)
	}
	return out, err
}

// begin loads or creates the run record and marks it running.
func (r *Runner) begin(ctx context.Context, req Request) (overtime.ReportRun, error) {
	now := r.now().UTC()
	var run overtime.ReportRun
	if req.RunID != "" {
		existing, err := r.store.GetReportRun(ctx, req.RunID)
		if err != nil {
			return run, fmt.Errorf("get report run: %w", err)
		}
		if existing != nil {
			run = *existing
		}
	}
	if run.ID == "" {
		run = overtime.ReportRun{
			ID:              req.RunID,
			OrganizationKey: req.Organization,
			Month:           req.Month,
			Mode:            req.Mode,
			RequestedBy:     req.RequestedBy,
			CreatedAt:       now,
		}
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
	}
	run.Status = overtime.RunRunning
	run.Attempt = req.Attempt
	if run.Attempt == 0 {
		run.Attempt = 1
	}
	run.StartedAt = &now
	run.CompletedAt = nil
	if err := r.store.SaveReportRun(ctx, run); err != nil {
		return run, fmt.Errorf("record report run: %w", err)
	}
	return run, nil
}

func (r *Runner) render(ctx context.Context, orgKey string, month calendar.Month, logger *log.Logger) (Outcome, error) {
	org, err := r.store.GetOrganization(ctx, orgKey)
	if err != nil {
		return Outcome{}, overtime.NewError(overtime.KindUnknown, orgKey, "", err)
	}
	if org == nil {
		return Outcome{}, overtime.NewError(overtime.KindNoOrganization, orgKey, "", nil)
	}
	if !org.HasSpreadsheet() {
		return Outcome{}, overtime.NewError(overtime.KindNoSpreadsheetID, org.Key, "", nil)
	}
	holidays, err := org.Holidays()
	if err != nil {
		return Outcome{}, overtime.NewError(overtime.KindUnknown, org.Key, "holidays", err)
	}

	members, err := r.store.ListMemberships(ctx, org.Key)
	if err != nil {
		return Outcome{}, overtime.NewError(overtime.KindUnknown, org.Key, "", err)
	}

	var (
		blocks   []userBlock
		noEvents []string
	)
	for _, m := range members {
		user, err := r.store.GetUser(ctx, m.UID)
		if err != nil {
			return Outcome{}, overtime.NewError(overtime.KindUnknown, org.Key, m.UID, err)
		}
		if user == nil {
			return Outcome{}, overtime.NewError(overtime.KindNoUser, org.Key, m.UID, nil)
		}
		vacation, illness, err := m.SpecialDays()
		if err != nil {
			return Outcome{}, overtime.NewError(overtime.KindUnknown, org.Key, m.Key(), err)
		}
		events, err := r.store.ListEvents(ctx, org.Key, m.UID, month.Start(), month.End())
		if err != nil {
			return Outcome{}, overtime.NewError(overtime.KindUnknown, org.Key, m.UID, err)
		}

		summary := overtime.AggregateMonth(events, holidays, vacation, illness, month)
		if summary.IsEmpty() {
			noEvents = append(noEvents, user.DisplayName())
			continue
		}
		blocks = append(blocks, userBlock{name: user.DisplayName(), summary: summary})
	}
	logger.Debug("aggregated members", "with_events", len(blocks), "without_events", len(noEvents))

	sheet, err := spreadsheet.Resolve(ctx, r.svc, org.SpreadsheetID, org.ReportSheetTitle(), true)
	if err != nil {
		return Outcome{}, sheetError(org.Key, org.SpreadsheetID, err)
	}

	layout := NewLayout(sheet)
	cursor := layout.Header(org.Name)
	for _, b := range blocks {
		cursor = layout.UserBlock(cursor, b.name, b.summary)
	}
	cursor = layout.NoEventsBlock(cursor, month, noEvents)
	layout.Finalize(cursor)

	if err := layout.Apply(ctx, r.svc, org.SpreadsheetID); err != nil {
		return Outcome{}, sheetError(org.Key, org.SpreadsheetID, err)
	}

	return Outcome{
		Sheet:    sheet,
		Users:    len(blocks),
		NoEvents: len(noEvents),
		Rows:     cursor,
	}, nil
}
