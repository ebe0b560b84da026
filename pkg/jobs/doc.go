// Package jobs runs background maintenance on cron schedules.
//
// The only job today is the limiter sweep: in-process sliding windows keep
// an entry per identifier until it is swept, so the sweep bounds memory to
// identifiers seen within the last window and refreshes the
// lumen_ratelimit_tracked_identifiers gauge.
package jobs
