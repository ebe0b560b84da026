package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Runner launches fire-and-forget tasks with:
// - detachment from the caller's cancellation (values are kept)
// - panic recovery
// - timeout enforcement
// - error logging
//
// Use this instead of bare `go func()` so that a task can never crash the
// process or outlive shutdown unnoticed.
type Runner struct {
	logger logrus.FieldLogger
	wg     sync.WaitGroup
}

// NewRunner creates a Runner that logs task failures to logger
func NewRunner(logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{logger: logger}
}

// Go executes fn in a goroutine. The caller's request finishing does not
// cancel the task; only the timeout does.
//
// Example:
//
//	runner.Go(r.Context(), 2*time.Minute, "webhook dispatch", func(ctx context.Context) error {
//	    return dispatcher.DeliverSync(ctx, orgID, payload)
//	})
func (r *Runner) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("PANIC recovered in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// Wait blocks until every task started with Go has finished or ctx is done
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// Settle runs fn for every item concurrently, at most limit at a time, and
// waits for all of them. A failure or panic in one item never cancels or
// skips the others. The returned slice is index-aligned with items.
func Settle[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))

	// a plain Group: errgroup.WithContext would cancel siblings on the first error
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					errs[i] = fmt.Errorf("panic: %v", rec)
				}
			}()
			errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
