package usage

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process memory. It is atomic within one
// process and intended for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[Key]int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[Key]int64)}
}

// ReadUsage implements Store
func (s *MemoryStore) ReadUsage(_ context.Context, key Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

// ReadPeriod implements Store
func (s *MemoryStore) ReadPeriod(_ context.Context, orgID string, period Period) (map[ResourceKind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[ResourceKind]int64)
	for k, v := range s.counts {
		if k.OrgID == orgID && k.Period == period {
			out[k.Kind] = v
		}
	}
	return out, nil
}

// WriteUsageDelta implements Store
func (s *MemoryStore) WriteUsageDelta(_ context.Context, key Key, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.counts[key] + delta
	if next < 0 {
		next = 0
	}
	s.counts[key] = next
	return next, nil
}

// IncrementWithCap implements CappedStore
func (s *MemoryStore) IncrementWithCap(_ context.Context, key Key, amount, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.counts[key]
	if current+amount > limit {
		return current, false, nil
	}
	s.counts[key] = current + amount
	return current + amount, true, nil
}
