package apikeys

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists API keys
type Store interface {
	// Create inserts k unless the org already has maxActive unrevoked keys
	Create(ctx context.Context, k *APIKey, maxActive int) error
	// List returns the org's keys, newest first, revoked ones included
	List(ctx context.Context, orgID string) ([]*APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)
	Revoke(ctx context.Context, orgID, id string, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
}

// MemoryStore keeps API keys in memory
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*APIKey
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*APIKey)}
}

func cloneKey(k *APIKey) *APIKey {
	cp := *k
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		cp.LastUsedAt = &t
	}
	if k.RevokedAt != nil {
		t := *k.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, k *APIKey, maxActive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, existing := range s.keys {
		if existing.OrgID == k.OrgID && !existing.Revoked() {
			active++
		}
	}
	if active >= maxActive {
		return ErrLimitReached
	}
	s.keys[k.ID] = cloneKey(k)
	return nil
}

// List implements Store
func (s *MemoryStore) List(_ context.Context, orgID string) ([]*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*APIKey, 0)
	for _, k := range s.keys {
		if k.OrgID == orgID {
			out = append(out, cloneKey(k))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetByHash implements Store
func (s *MemoryStore) GetByHash(_ context.Context, keyHash string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.KeyHash == keyHash {
			return cloneKey(k), nil
		}
	}
	return nil, ErrNotFound
}

// Revoke implements Store. Revoking twice is not an error.
func (s *MemoryStore) Revoke(_ context.Context, orgID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.OrgID != orgID {
		return ErrNotFound
	}
	if k.RevokedAt == nil {
		k.RevokedAt = &at
	}
	return nil
}

// Touch implements Store
func (s *MemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return ErrNotFound
	}
	k.LastUsedAt = &at
	return nil
}
