package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists webhooks. Every method that takes an orgID scopes the
// lookup to that organization; a webhook of another org is ErrNotFound.
type Store interface {
	// Create inserts w unless the org already has maxActive active webhooks
	Create(ctx context.Context, w *Webhook, maxActive int) error
	Get(ctx context.Context, orgID, id string) (*Webhook, error)
	List(ctx context.Context, orgID string) ([]*Webhook, error)
	ListActiveForEvent(ctx context.Context, orgID string, event EventType) ([]*Webhook, error)
	Delete(ctx context.Context, orgID, id string) error
	// SetActive toggles a webhook. Activating resets its failure count.
	SetActive(ctx context.Context, orgID, id string, active bool) (*Webhook, error)
	// Activate re-enables a webhook unless the org already has maxActive
	// other active webhooks. The count and the update are one atomic step.
	Activate(ctx context.Context, orgID, id string, maxActive int) (*Webhook, error)

	// RecordSuccess resets the failure count
	RecordSuccess(ctx context.Context, id string, o Outcome) error
	// RecordFailure increments the failure count and deactivates the webhook
	// once it reaches threshold, in one atomic step. It reports whether this
	// call disabled the webhook.
	RecordFailure(ctx context.Context, id string, threshold int, o Outcome) (disabled bool, err error)
	// RecordThrottled notes a delivery that was never sent. The failure
	// count is left alone.
	RecordThrottled(ctx context.Context, id string, o Outcome) error
}

// Outcome is what a store keeps about the latest delivery to a webhook
type Outcome struct {
	StatusCode int
	Error      string
	At         time.Time
}

func (w *Webhook) setOutcome(status DeliveryStatus, o Outcome) {
	w.LastStatus = status
	w.LastStatusCode = o.StatusCode
	w.LastError = o.Error
	w.UpdatedAt = o.At
}

// MemoryStore keeps webhooks in memory
type MemoryStore struct {
	mu       sync.Mutex
	webhooks map[string]*Webhook
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{webhooks: make(map[string]*Webhook)}
}

func clone(w *Webhook) *Webhook {
	cp := *w
	cp.Events = append([]EventType(nil), w.Events...)
	if w.LastTriggeredAt != nil {
		t := *w.LastTriggeredAt
		cp.LastTriggeredAt = &t
	}
	return &cp
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, w *Webhook, maxActive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, existing := range s.webhooks {
		if existing.OrgID == w.OrgID && existing.Active {
			active++
		}
	}
	if active >= maxActive {
		return ErrLimitReached
	}
	s.webhooks[w.ID] = clone(w)
	return nil
}

func (s *MemoryStore) lookup(orgID, id string) (*Webhook, error) {
	w, ok := s.webhooks[id]
	if !ok || w.OrgID != orgID {
		return nil, ErrNotFound
	}
	return w, nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, orgID, id string) (*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(orgID, id)
	if err != nil {
		return nil, err
	}
	return clone(w), nil
}

func (s *MemoryStore) list(filter func(*Webhook) bool) []*Webhook {
	out := make([]*Webhook, 0)
	for _, w := range s.webhooks {
		if filter(w) {
			out = append(out, clone(w))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// List implements Store
func (s *MemoryStore) List(_ context.Context, orgID string) ([]*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(w *Webhook) bool { return w.OrgID == orgID }), nil
}

// ListActiveForEvent implements Store
func (s *MemoryStore) ListActiveForEvent(_ context.Context, orgID string, event EventType) ([]*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(w *Webhook) bool {
		return w.OrgID == orgID && w.Active && w.Subscribed(event)
	}), nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(orgID, id); err != nil {
		return err
	}
	delete(s.webhooks, id)
	return nil
}

// SetActive implements Store
func (s *MemoryStore) SetActive(_ context.Context, orgID, id string, active bool) (*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(orgID, id)
	if err != nil {
		return nil, err
	}
	w.Active = active
	if active {
		w.FailureCount = 0
	}
	w.UpdatedAt = time.Now()
	return clone(w), nil
}

// Activate implements Store
func (s *MemoryStore) Activate(_ context.Context, orgID, id string, maxActive int) (*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(orgID, id)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		active := 0
		for _, other := range s.webhooks {
			if other.OrgID == orgID && other.Active {
				active++
			}
		}
		if active >= maxActive {
			return nil, ErrLimitReached
		}
	}
	w.Active = true
	w.FailureCount = 0
	w.UpdatedAt = time.Now()
	return clone(w), nil
}

// RecordSuccess implements Store
func (s *MemoryStore) RecordSuccess(_ context.Context, id string, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok {
		return ErrNotFound
	}
	w.FailureCount = 0
	w.LastTriggeredAt = &o.At
	w.setOutcome(DeliveryStatusSuccess, o)
	return nil
}

// RecordFailure implements Store
func (s *MemoryStore) RecordFailure(_ context.Context, id string, threshold int, o Outcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok {
		return false, ErrNotFound
	}
	w.FailureCount++
	w.LastTriggeredAt = &o.At
	w.setOutcome(DeliveryStatusFailed, o)
	if w.Active && w.FailureCount >= threshold {
		w.Active = false
		return true, nil
	}
	return false, nil
}

// RecordThrottled implements Store
func (s *MemoryStore) RecordThrottled(_ context.Context, id string, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[id]
	if !ok {
		return ErrNotFound
	}
	w.setOutcome(DeliveryStatusThrottled, o)
	return nil
}
