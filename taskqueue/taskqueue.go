/*
Package taskqueue is a durable at-least-once task queue.

PURPOSE:
  Long report runs do not execute on the request path. The request enqueues
  a task and returns; a Dispatcher claims due tasks and runs their handler
  with a deadline, retrying failures with exponential backoff.

MODEL:
  Enqueue is a one-way send. There is no result channel: callers observe
  effects (the report sheet, the report_runs history), never a return value.

    q.Enqueue(ctx, "reportEvents", payload, taskqueue.Options{
        Delay:       60 * time.Second,
        Deadline:    5 * time.Minute,
        MaxAttempts: 5,
        MinBackoff:  60 * time.Second,
    })

LIFECYCLE:
  pending -> running -> succeeded
                     -> pending (retry at now + backoff)
                     -> failed  (attempts exhausted or Permanent error)

  A task left running by a crashed process is put back to pending when the
  next Dispatcher starts, so a handler may observe the same task twice.

BACKPRESSURE:
  At most MaxConcurrent handlers run at once (semaphore). Backoff for
  attempt n is MinBackoff * 2^(n-1), capped at MaxBackoff.

SEE ALSO:
  - dispatcher.go: claiming and running due tasks
  - store/sqlite:  the tasks table
*/
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/workhours/overtime/metrics"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Task is a persisted unit of work.
type Task struct {
	ID          string
	Name        string
	Payload     []byte
	Status      Status
	Attempt     int
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Deadline    time.Duration
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Decode unmarshals the payload.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", t.Name, err))
	}
	return nil
}

// Options control delivery of one task. Zero fields take the queue defaults.
type Options struct {
	Delay       time.Duration
	Deadline    time.Duration
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultOptions absorb the spreadsheet API rate limits.
func DefaultOptions() Options {
	return Options{
		Delay:       60 * time.Second,
		Deadline:    5 * time.Minute,
		MaxAttempts: 5,
		MinBackoff:  60 * time.Second,
		MaxBackoff:  time.Hour,
	}
}

func (o Options) withDefaults(d Options) Options {
	if o.Delay == 0 {
		o.Delay = d.Delay
	}
	if o.Deadline == 0 {
		o.Deadline = d.Deadline
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.MinBackoff == 0 {
		o.MinBackoff = d.MinBackoff
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	return o
}

// Backoff is the wait before the retry that follows attempt n (1-based).
func Backoff(min, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := min
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// Store persists tasks. Implemented by store/sqlite.
type Store interface {
	InsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	// ClaimDueTasks marks up to limit pending tasks with RunAt <= now as
	// running, increments their attempt and returns them.
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]Task, error)
	CompleteTask(ctx context.Context, id string, now time.Time) error
	RetryTask(ctx context.Context, id string, runAt time.Time, lastErr string) error
	FailTask(ctx context.Context, id string, lastErr string, now time.Time) error
	ResetRunningTasks(ctx context.Context, now time.Time) (int, error)
}

// Enqueuer is the send side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts Options) (string, error)
}

// =============================================================================
// QUEUE
// =============================================================================

// Queue writes tasks to the store.
type Queue struct {
	store    Store
	defaults Options
	logger   *log.Logger
	now      func() time.Time
}

var _ Enqueuer = (*Queue)(nil)

// Option configures a Queue or Dispatcher.
type Option func(*clock)

type clock struct{ now func() time.Time }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *clock) { c.now = now }
}

func applyOptions(opts []Option) func() time.Time {
	c := &clock{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c.now
}

func New(store Store, defaults Options, logger *log.Logger, opts ...Option) *Queue {
	return &Queue{
		store:    store,
		defaults: defaults,
		logger:   logger.WithPrefix("taskqueue"),
		now:      applyOptions(opts),
	}
}

// Enqueue persists a task for later dispatch and returns its id.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts Options) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", name, err)
	}
	opts = opts.withDefaults(q.defaults)

	now := q.now().UTC()
	t := Task{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: opts.MaxAttempts,
		MinBackoff:  opts.MinBackoff,
		MaxBackoff:  opts.MaxBackoff,
		Deadline:    opts.Deadline,
		RunAt:       now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.InsertTask(ctx, t); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	metrics.TasksEnqueued.WithLabelValues(name).Inc()
	q.logger.Debug("task enqueued", "task", name, "id", t.ID, "run_at", t.RunAt)
	return t.ID, nil
}

// =============================================================================
// ERRORS
// =============================================================================

var ErrNoHandler = errors.New("no handler registered")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
