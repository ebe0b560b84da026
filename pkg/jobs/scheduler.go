package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/lumen/pkg/observability"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper drops expired rate-limit windows. It is implemented by
// *ratelimit.Registry.
type Sweeper interface {
	SweepAll() (evicted map[string]int, tracked map[string]int)
}

// Scheduler runs periodic maintenance on cron schedules. Jobs that are
// still running when their next tick fires are skipped, and a panicking
// job is logged without stopping the scheduler.
type Scheduler struct {
	cron    *cron.Cron
	logger  logrus.FieldLogger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. Schedules accept the standard five
// field syntax and descriptors such as "@every 5m".
func NewScheduler(logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		logger: logger.WithField("component", "jobs"),
	}
}

// Add schedules fn under name
func (s *Scheduler) Add(name, schedule string, fn func()) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", schedule, name, err)
	}
	if _, err := s.cron.AddFunc(schedule, fn); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.logger.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("Scheduled job")
	return nil
}

// AddLimiterSweep schedules a sweep of every in-process rate limiter
func (s *Scheduler) AddLimiterSweep(schedule string, sweeper Sweeper, metrics *observability.Metrics) error {
	return s.Add("limiter sweep", schedule, func() {
		SweepLimiters(sweeper, metrics, s.logger)
	})
}

// SweepLimiters runs one sweep and publishes the tracked identifier counts
func SweepLimiters(sweeper Sweeper, metrics *observability.Metrics, logger logrus.FieldLogger) {
	start := time.Now()
	evicted, tracked := sweeper.SweepAll()

	total := 0
	for name, n := range evicted {
		total += n
		metrics.SetTrackedKeys(name, tracked[name])
	}
	logger.WithFields(logrus.Fields{
		"evicted":     total,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Swept rate limiters")
}

// Start runs the scheduler until ctx is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.cron.Start()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// NextRun returns the earliest upcoming run, or the zero time when nothing
// is scheduled or the scheduler has not been started
func (s *Scheduler) NextRun() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if !e.Next.IsZero() && (next.IsZero() || e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}
