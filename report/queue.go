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
	"github.com/workhours/overtime/taskqueue"
)

// TaskName is the queue name of report tasks.
const TaskName = "reportEvents"

// Payload is the body of a reportEvents task.
type Payload struct {
	Organization string `json:"organization"`
	Date         string `json:"date"`
	RunID        string `json:"run_id,omitempty"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

// Scheduler decides how a report request is executed: inline through the
// Runner, or enqueued for the dispatcher.
type Scheduler struct {
	runner *Runner
	store  Store
	queue  taskqueue.Enqueuer
	opts   taskqueue.Options
	logger *log.Logger
}

func NewScheduler(runner *Runner, store Store, queue taskqueue.Enqueuer, opts taskqueue.Options, logger *log.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		store:  store,
		queue:  queue,
		opts:   opts,
		logger: logger.WithPrefix("scheduler"),
	}
}

// Register binds the task handler on a dispatcher.
func (s *Scheduler) Register(d *taskqueue.Dispatcher) {
	d.Register(TaskName, s.HandleTask)
}

// Schedule runs the report inline, or enqueues it when queued is set. It
// returns the run id. An enqueued run reports no rendering error: the
// caller only learns that the request was accepted.
func (s *Scheduler) Schedule(ctx context.Context, req Request, queued bool) (string, error) {
	if queued {
		return s.Enqueue(ctx, req)
	}
	req.Mode = overtime.RunInline
	out, err := s.runner.Run(ctx, req)
	return out.RunID, err
}

// Enqueue records a requested run and sends it to the task queue.
func (s *Scheduler) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.Organization == "" || req.Month.IsZero() {
		return "", overtime.NewError(overtime.KindNoParams, req.Organization, "", nil)
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	run := overtime.ReportRun{
		ID:              req.RunID,
		OrganizationKey: req.Organization,
		Month:           req.Month,
		Mode:            overtime.RunQueued,
		Status:          overtime.RunRequested,
		RequestedBy:     req.RequestedBy,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.SaveReportRun(ctx, run); err != nil {
		return "", fmt.Errorf("record report run: %w", err)
	}

	payload := Payload{
		Organization: req.Organization,
		Date:         req.Month.String(),
		RunID:        req.RunID,
		RequestedBy:  req.RequestedBy,
	}
	taskID, err := s.queue.Enqueue(ctx, TaskName, payload, s.opts)
	if err != nil {
		run.Status = overtime.RunFailed
		run.Error = overtime.KindUnknown
		run.Details = err.Error()
		metrics.ReportRuns.WithLabelValues(string(overtime.RunQueued), string(overtime.RunFailed)).Inc()
		if serr := s.store.SaveReportRun(context.WithoutCancel(ctx), run); serr != nil {
			s.logger.Error("record report run", "run", run.ID, "err", serr)
		}
		return "", err
	}

	run.Status = overtime.RunEnqueued
	if err := s.store.SaveReportRun(ctx, run); err != nil {
		s.logger.Error("record report run", "run", run.ID, "err", err)
	}
	s.logger.Info("report enqueued", "org", req.Organization, "month", payload.Date, "run", run.ID, "task", taskID)
	return run.ID, nil
}

// HandleTask is the reportEvents handler. Referential and authorization
// failures are permanent; anything else is retried by the dispatcher.
func (s *Scheduler) HandleTask(ctx context.Context, t taskqueue.Task) error {
	var p Payload
	if err := t.Decode(&p); err != nil {
		return err
	}
	month, err := calendar.ParseMonth(p.Date)
	if err != nil {
		return taskqueue.Permanent(fmt.Errorf("report task %s: %w", t.ID, err))
	}

	if p.RunID != "" {
		s.markDispatched(ctx, p.RunID)
	}

	_, err = s.runner.Run(ctx, Request{
		RunID:        p.RunID,
		Organization: p.Organization,
		Month:        month,
		RequestedBy:  p.RequestedBy,
		Mode:         overtime.RunQueued,
		Attempt:      t.Attempt,
		Retryable:    t.Attempt < t.MaxAttempts,
	})
	if err == nil {
		return nil
	}
	if overtime.IsNotFound(err) || overtime.IsAuthError(err) || overtime.KindOf(err) == overtime.KindNoParams {
		return taskqueue.Permanent(err)
	}
	return err
}

func (s *Scheduler) markDispatched(ctx context.Context, runID string) {
	run, err := s.store.GetReportRun(ctx, runID)
	if err != nil || run == nil {
		s.logger.Warn("report run record missing", "run", runID, "err", err)
		return
	}
	if run.Status.Terminal() {
		return
	}
	run.Status = overtime.RunDispatched
	if err := s.store.SaveReportRun(ctx, *run); err != nil {
		s.logger.Error("record report run", "run", runID, "err", err)
	}
}
