package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/workhours/overtime/metrics"
	"golang.org/x/sync/semaphore"
)

// Handler executes one task. A returned error schedules a retry unless it
// is Permanent or the attempts are exhausted.
type Handler func(ctx context.Context, t Task) error

// DispatcherConfig bounds the dispatcher.
type DispatcherConfig struct {
	MaxConcurrent int
	PollInterval  time.Duration
}

// Dispatcher claims due tasks and runs them.
type Dispatcher struct {
	store    Store
	cfg      DispatcherConfig
	logger   *log.Logger
	now      func() time.Time
	sem      *semaphore.Weighted
	handlers map[string]Handler

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	loop   sync.WaitGroup
	tasks  sync.WaitGroup
}

func NewDispatcher(store Store, cfg DispatcherConfig, logger *log.Logger, opts ...Option) *Dispatcher {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Dispatcher{
		store:    store,
		cfg:      cfg,
		logger:   logger.WithPrefix("dispatcher"),
		now:      applyOptions(opts),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		handlers: map[string]Handler{},
	}
}

// Register binds a handler to a task name. Call before Start.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

func (d *Dispatcher) handler(name string) (Handler, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handlers[name]
	return h, ok
}

// Start requeues tasks orphaned by a previous process and begins polling.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ticker != nil {
		return nil
	}

	n, err := d.store.ResetRunningTasks(ctx, d.now().UTC())
	if err != nil {
		return fmt.Errorf("requeue running tasks: %w", err)
	}
	if n > 0 {
		d.logger.Warn("requeued tasks left running", "count", n)
	}

	d.ticker = time.NewTicker(d.cfg.PollInterval)
	d.stop = make(chan struct{})
	d.loop.Add(1)
	go d.run(ctx, d.ticker.C, d.stop)

	d.logger.Info("started", "poll", d.cfg.PollInterval, "max_concurrent", d.cfg.MaxConcurrent)
	return nil
}

// Stop stops polling and waits for running handlers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.ticker == nil {
		d.mu.Unlock()
		return
	}
	d.ticker.Stop()
	close(d.stop)
	d.ticker = nil
	d.mu.Unlock()

	d.loop.Wait()
	d.tasks.Wait()
	d.logger.Info("stopped")
}

func (d *Dispatcher) run(ctx context.Context, tick <-chan time.Time, stop <-chan struct{}) {
	defer d.loop.Done()
	for {
		select {
		case <-tick:
			if _, err := d.RunDue(ctx); err != nil {
				d.logger.Error("poll failed", "err", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunDue claims the tasks due now and dispatches each on its own goroutine.
// It returns the number of tasks dispatched without waiting for them.
func (d *Dispatcher) RunDue(ctx context.Context) (int, error) {
	tasks, err := d.store.ClaimDueTasks(ctx, d.now().UTC(), d.cfg.MaxConcurrent)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			// Unstarted claims go back to pending on the next Start.
			return 0, err
		}
		d.tasks.Add(1)
		go func(t Task) {
			defer d.tasks.Done()
			defer d.sem.Release(1)
			d.dispatch(ctx, t)
		}(t)
	}
	return len(tasks), nil
}

// Drain dispatches due tasks until none are left and every handler has
// returned. Tests use it to await the effects of enqueued work.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for {
		n, err := d.RunDue(ctx)
		d.tasks.Wait()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, t Task) {
	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	logger := d.logger.With("task", t.Name, "id", t.ID, "attempt", t.Attempt)

	err := ErrNoHandler
	if h, ok := d.handler(t.Name); ok {
		tctx := ctx
		if t.Deadline > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(ctx, t.Deadline)
			defer cancel()
		}
		err = d.call(tctx, h, t)
	}

	// Outcome writes must not inherit a deadline the handler exhausted.
	storeCtx := context.WithoutCancel(ctx)
	now := d.now().UTC()
	switch {
	case err == nil:
		metrics.TaskAttempts.WithLabelValues(t.Name, "succeeded").Inc()
		if serr := d.store.CompleteTask(storeCtx, t.ID, now); serr != nil {
			logger.Error("mark task succeeded", "err", serr)
		}
		logger.Debug("task succeeded")

	case errors.Is(err, ErrNoHandler) || IsPermanent(err) || t.Attempt >= t.MaxAttempts:
		metrics.TaskAttempts.WithLabelValues(t.Name, "failed").Inc()
		if serr := d.store.FailTask(storeCtx, t.ID, err.Error(), now); serr != nil {
			logger.Error("mark task failed", "err", serr)
		}
		logger.Error("task failed", "err", err)

	default:
		wait := Backoff(t.MinBackoff, t.MaxBackoff, t.Attempt)
		metrics.TaskAttempts.WithLabelValues(t.Name, "retried").Inc()
		if serr := d.store.RetryTask(storeCtx, t.ID, now.Add(wait), err.Error()); serr != nil {
			logger.Error("schedule retry", "err", serr)
		}
		logger.Warn("task will be retried", "err", err, "in", wait)
	}
}

// call runs the handler, turning a panic into a permanent failure.
func (d *Dispatcher) call(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, t)
}
