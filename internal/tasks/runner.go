// Package tasks runs fire-and-forget background jobs on a bounded worker pool.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudportal/projectd/internal/metrics"
	"github.com/panjf2000/ants/v2"
)

const defaultQueueSize = 1024

// ErrQueueFull is logged when a job is dropped because the queue is at capacity.
var ErrQueueFull = errors.New("tasks: queue full")

// ErrClosed is logged when a job is enqueued after Close.
var ErrClosed = errors.New("tasks: runner closed")

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Runner queues named jobs and feeds them to an ants pool. Job errors and
// panics are logged and counted, never returned to the caller.
type Runner struct {
	pool    *ants.Pool
	logger  *slog.Logger
	timeout time.Duration
	queue   chan job
	stop    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithQueueSize bounds the number of jobs waiting for a worker.
func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.queue = make(chan job, n)
		}
	}
}

// New creates a Runner with the given number of workers. Each job gets its
// own context bounded by timeout (zero means no limit).
func New(workers int, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		return nil, fmt.Errorf("tasks: workers must be positive, got %d", workers)
	}

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		logger.Error("task panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("tasks: create pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		pool:    pool,
		logger:  logger,
		timeout: timeout,
		queue:   make(chan job, defaultQueueSize),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.dispatch()
	return r, nil
}

// Enqueue schedules fn and returns without waiting for a worker. When the
// queue is full the job is dropped and counted as rejected.
func (r *Runner) Enqueue(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.reject(name, ErrClosed)
		return
	}
	r.wg.Add(1)
	select {
	case r.queue <- job{name: name, fn: fn}:
	default:
		r.wg.Done()
		r.reject(name, ErrQueueFull)
	}
}

func (r *Runner) reject(name string, err error) {
	metrics.TasksTotal.WithLabelValues(name, "rejected").Inc()
	r.logger.Error("failed to submit task", "task", name, "error", err)
}

// dispatch moves queued jobs into the pool, blocking while every worker is busy.
func (r *Runner) dispatch() {
	for {
		select {
		case j := <-r.queue:
			r.submit(j)
		case <-r.stop:
			for {
				select {
				case j := <-r.queue:
					r.wg.Done()
					r.reject(j.name, ErrClosed)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) submit(j job) {
	err := r.pool.Submit(func() {
		status := "panic"
		defer func() {
			metrics.TasksTotal.WithLabelValues(j.name, status).Inc()
			r.wg.Done()
		}()

		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := j.fn(ctx); err != nil {
			status = "error"
			r.logger.Error("task failed", "task", j.name, "error", err, "duration", time.Since(start))
			return
		}
		status = "ok"
		r.logger.Debug("task done", "task", j.name, "duration", time.Since(start))
	})
	if err != nil {
		r.wg.Done()
		r.reject(j.name, err)
	}
}

// Running reports the number of jobs currently executing.
func (r *Runner) Running() int {
	return r.pool.Running()
}

// Pending reports the number of jobs waiting for a worker.
func (r *Runner) Pending() int {
	return len(r.queue)
}

// Close stops accepting jobs and waits for queued ones until ctx is done,
// then cancels the remaining ones and releases the pool.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.cancel()
	close(r.stop)
	r.pool.Release()
	return err
}
