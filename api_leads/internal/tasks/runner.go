package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"dopahiyaa/pkg/ctxkeys"
	"dopahiyaa/pkg/logging"
)

// Runner executes best-effort side effects (notifications, event publishing,
// allocation after an inquiry) off the request path. A task's failure is
// logged and counted, never returned to the code that scheduled it.
type Runner struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	timeout time.Duration
	logger  logging.Logger
	metrics *prometheus.CounterVec
}

func NewRunner(concurrency int64, timeout time.Duration, logger logging.Logger, metrics *prometheus.CounterVec) *Runner {
	if concurrency <= 0 {
		concurrency = 32
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Runner{
		sem:     semaphore.NewWeighted(concurrency),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Go schedules fn and returns immediately. fn gets a context that keeps
// ctx's values but not its cancellation, bounded by the runner timeout.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		fields := logging.Fields{"task": name}
		if id := ctxkeys.GetRequestID(taskCtx); id != "" {
			fields["request_id"] = id
		}

		if err := r.sem.Acquire(taskCtx, 1); err != nil {
			r.observe(name, "dropped")
			r.logger.WithFields(fields).Warn("Task dropped, runner saturated")
			return
		}
		defer r.sem.Release(1)

		err := r.run(taskCtx, fn)
		if err != nil {
			r.observe(name, "failed")
			r.logger.WithFields(fields).WithError(err).Warn("Background task failed")
			return
		}
		r.observe(name, "succeeded")
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for in-flight tasks or gives up when ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) observe(name, status string) {
	if r.metrics != nil {
		r.metrics.WithLabelValues(name, status).Inc()
	}
}
