// Package async provides safe concurrent execution primitives for background tasks.
//
// Runner.Go launches fire-and-forget work with panic recovery, a timeout and
// error logging, detached from the caller's cancellation. Runner.Wait lets
// shutdown drain in-flight tasks.
//
// Settle fans work out over a bounded number of goroutines and waits for every
// item regardless of individual failures:
//
//	errs := async.Settle(ctx, hooks, 8, func(ctx context.Context, h *Webhook) error {
//		return deliver(ctx, h)
//	})
package async
