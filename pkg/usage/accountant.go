package usage

import (
	"context"
	"fmt"
)

// Accountant is the only writer of usage counters. Everything that consumes
// or gives back metered resources goes through it.
type Accountant struct {
	store Store
}

// NewAccountant wraps a store
func NewAccountant(store Store) *Accountant {
	return &Accountant{store: store}
}

// Atomic reports whether reservations can be capped store-side
func (a *Accountant) Atomic() bool {
	_, ok := a.store.(CappedStore)
	return ok
}

// Read returns the current counter
func (a *Accountant) Read(ctx context.Context, key Key) (int64, error) {
	return a.store.ReadUsage(ctx, key)
}

// Increment records amount units unconditionally and returns the new count
func (a *Accountant) Increment(ctx context.Context, key Key, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return a.store.WriteUsageDelta(ctx, key, amount)
}

// IncrementWithinCap records amount units if the counter stays <= limit.
// With a CappedStore this is a single atomic step. Otherwise it reads then
// writes, and concurrent callers may overshoot the cap by at most their
// combined amounts.
func (a *Accountant) IncrementWithinCap(ctx context.Context, key Key, amount, limit int64) (count int64, ok bool, err error) {
	if amount <= 0 {
		return 0, false, ErrInvalidAmount
	}
	if capped, isCapped := a.store.(CappedStore); isCapped {
		return capped.IncrementWithCap(ctx, key, amount, limit)
	}

	current, err := a.store.ReadUsage(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if current+amount > limit {
		return current, false, nil
	}
	count, err = a.store.WriteUsageDelta(ctx, key, amount)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// Decrement gives back amount units, never going below zero
func (a *Accountant) Decrement(ctx context.Context, key Key, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return a.store.WriteUsageDelta(ctx, key, -amount)
}

// ResourceUsage is one row of a usage summary
type ResourceUsage struct {
	Resource  ResourceKind `json:"resource"`
	Used      int64        `json:"used"`
	Limit     int64        `json:"limit"`
	Unlimited bool         `json:"unlimited"`
	Percent   int          `json:"percent"`
}

// Summary reports every metered resource for an org and period against the
// given caps. Kinds without a cap are reported with limit 0.
func (a *Accountant) Summary(ctx context.Context, orgID string, period Period, caps map[ResourceKind]int64) ([]ResourceUsage, error) {
	counts, err := a.store.ReadPeriod(ctx, orgID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	out := make([]ResourceUsage, 0, len(AllKinds))
	for _, kind := range AllKinds {
		limit := caps[kind]
		out = append(out, ResourceUsage{
			Resource:  kind,
			Used:      counts[kind],
			Limit:     limit,
			Unlimited: limit == Unlimited,
			Percent:   Percent(counts[kind], limit),
		})
	}
	return out, nil
}
