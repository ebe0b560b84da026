package usage

import (
	"context"
	"errors"
)

// ErrInvalidAmount is returned for non-positive reservation amounts
var ErrInvalidAmount = errors.New("usage amount must be positive")

// Store persists usage counters. Counters never go below zero and rows are
// created on first write within a period.
type Store interface {
	// ReadUsage returns the counter, or 0 when no row exists yet
	ReadUsage(ctx context.Context, key Key) (int64, error)
	// ReadPeriod returns every counter an org has in a period
	ReadPeriod(ctx context.Context, orgID string, period Period) (map[ResourceKind]int64, error)
	// WriteUsageDelta adds delta (which may be negative) as an upsert,
	// flooring the result at zero, and returns the new count
	WriteUsageDelta(ctx context.Context, key Key, delta int64) (int64, error)
}

// CappedStore can increment and enforce a cap in one atomic step, which
// closes the read-then-write race between concurrent reservations.
type CappedStore interface {
	Store
	// IncrementWithCap adds amount only if the result stays <= limit.
	// When it would not, nothing changes and ok is false; count is then the
	// current value.
	IncrementWithCap(ctx context.Context, key Key, amount, limit int64) (count int64, ok bool, err error)
}
