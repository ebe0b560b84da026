package webhooks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHook(id, orgID string, events ...EventType) *Webhook {
	if len(events) == 0 {
		events = []EventType{EventScanComplete}
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &Webhook{
		ID:        id,
		OrgID:     orgID,
		URL:       "https://example.com/hooks/" + id,
		Events:    events,
		Secret:    "whsec_" + id,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStore_CreateEnforcesCap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Create(ctx, newHook(fmt.Sprintf("wh_%d", i), "org_1"), 2))
	}
	assert.ErrorIs(t, s.Create(ctx, newHook("wh_2", "org_1"), 2), ErrLimitReached)

	// other orgs have their own cap
	require.NoError(t, s.Create(ctx, newHook("wh_3", "org_2"), 2))

	// inactive webhooks do not count
	_, err := s.SetActive(ctx, "org_1", "wh_0", false)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, newHook("wh_4", "org_1"), 2))
}

func TestMemoryStore_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Create(ctx, newHook(fmt.Sprintf("wh_%d", i), "org_1"), 5)
		}(i)
	}
	wg.Wait()

	hooks, err := s.List(ctx, "org_1")
	require.NoError(t, err)
	assert.Len(t, hooks, 5)
}

func TestMemoryStore_OrgScoping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newHook("wh_1", "org_1"), 5))

	_, err := s.Get(ctx, "org_2", "wh_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "org_2", "wh_1"), ErrNotFound)
	_, err = s.SetActive(ctx, "org_2", "wh_1", false)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Get(ctx, "org_1", "wh_1")
	require.NoError(t, err)
	assert.Equal(t, "wh_1", got.ID)

	require.NoError(t, s.Delete(ctx, "org_1", "wh_1"))
	_, err = s.Get(ctx, "org_1", "wh_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newHook("wh_1", "org_1"), 5))

	got, err := s.Get(ctx, "org_1", "wh_1")
	require.NoError(t, err)
	got.Events[0] = EventAuditComplete
	got.Active = false

	again, err := s.Get(ctx, "org_1", "wh_1")
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventScanComplete}, again.Events)
	assert.True(t, again.Active)
}

func TestMemoryStore_ListActiveForEvent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	older := newHook("wh_b", "org_1", EventScanComplete, EventPageGenerated)
	newer := newHook("wh_a", "org_1", EventPageGenerated)
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)
	require.NoError(t, s.Create(ctx, older, 5))
	require.NoError(t, s.Create(ctx, newer, 5))
	require.NoError(t, s.Create(ctx, newHook("wh_c", "org_1", EventAuditComplete), 5))
	require.NoError(t, s.Create(ctx, newHook("wh_d", "org_2", EventPageGenerated), 5))

	hooks, err := s.ListActiveForEvent(ctx, "org_1", EventPageGenerated)
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "wh_b", hooks[0].ID)
	assert.Equal(t, "wh_a", hooks[1].ID)

	_, err = s.SetActive(ctx, "org_1", "wh_b", false)
	require.NoError(t, err)
	hooks, err = s.ListActiveForEvent(ctx, "org_1", EventPageGenerated)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "wh_a", hooks[0].ID)
}

func TestMemoryStore_FailureAccounting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newHook("wh_1", "org_1"), 5))
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	failed := Outcome{StatusCode: 500, Error: "receiver returned status 500", At: at}

	for i := 1; i < 3; i++ {
		disabled, err := s.RecordFailure(ctx, "wh_1", 3, failed)
		require.NoError(t, err)
		assert.False(t, disabled)
	}

	require.NoError(t, s.RecordSuccess(ctx, "wh_1", Outcome{StatusCode: 204, At: at}))
	got, _ := s.Get(ctx, "org_1", "wh_1")
	assert.Equal(t, 0, got.FailureCount)
	assert.Equal(t, DeliveryStatusSuccess, got.LastStatus)
	assert.Equal(t, 204, got.LastStatusCode)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(at))

	for i := 1; i < 3; i++ {
		_, err := s.RecordFailure(ctx, "wh_1", 3, failed)
		require.NoError(t, err)
	}
	disabled, err := s.RecordFailure(ctx, "wh_1", 3, failed)
	require.NoError(t, err)
	assert.True(t, disabled)

	// already inactive: the count moves on but nothing is disabled again
	disabled, err = s.RecordFailure(ctx, "wh_1", 3, failed)
	require.NoError(t, err)
	assert.False(t, disabled)

	got, _ = s.Get(ctx, "org_1", "wh_1")
	assert.False(t, got.Active)
	assert.Equal(t, 4, got.FailureCount)
	assert.Equal(t, DeliveryStatusFailed, got.LastStatus)
	assert.Equal(t, 500, got.LastStatusCode)
	assert.Equal(t, "receiver returned status 500", got.LastError)

	reactivated, err := s.SetActive(ctx, "org_1", "wh_1", true)
	require.NoError(t, err)
	assert.True(t, reactivated.Active)
	assert.Equal(t, 0, reactivated.FailureCount)

	_, err = s.RecordFailure(ctx, "missing", 3, failed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.RecordSuccess(ctx, "missing", failed), ErrNotFound)
	assert.ErrorIs(t, s.RecordThrottled(ctx, "missing", failed), ErrNotFound)
}

func TestMemoryStore_RecordThrottled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newHook("wh_1", "org_1"), 5))
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	_, err := s.RecordFailure(ctx, "wh_1", 10, Outcome{StatusCode: 500, At: at})
	require.NoError(t, err)

	later := at.Add(time.Minute)
	require.NoError(t, s.RecordThrottled(ctx, "wh_1", Outcome{Error: "rate limit exceeded", At: later}))

	got, err := s.Get(ctx, "org_1", "wh_1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryStatusThrottled, got.LastStatus)
	assert.Equal(t, 0, got.LastStatusCode)
	assert.Equal(t, "rate limit exceeded", got.LastError)
	assert.Equal(t, 1, got.FailureCount)
	assert.True(t, got.UpdatedAt.Equal(later))
	assert.True(t, got.LastTriggeredAt.Equal(at))
	assert.True(t, got.Active)
}

func TestMemoryStore_ActivateRespectsCap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Create(ctx, newHook("wh_1", "org_1"), 2))
	require.NoError(t, s.Create(ctx, newHook("wh_2", "org_1"), 2))
	_, err := s.SetActive(ctx, "org_1", "wh_2", false)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, newHook("wh_3", "org_1"), 2))

	_, err = s.Activate(ctx, "org_1", "wh_2", 2)
	assert.ErrorIs(t, err, ErrLimitReached)

	// an already active webhook is not counted against itself
	_, err = s.RecordFailure(ctx, "wh_1", 10, Outcome{At: time.Now()})
	require.NoError(t, err)
	w, err := s.Activate(ctx, "org_1", "wh_1", 2)
	require.NoError(t, err)
	assert.True(t, w.Active)
	assert.Equal(t, 0, w.FailureCount)

	_, err = s.Activate(ctx, "org_2", "wh_2", 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SetActive(ctx, "org_1", "wh_3", false)
	require.NoError(t, err)
	w, err = s.Activate(ctx, "org_1", "wh_2", 2)
	require.NoError(t, err)
	assert.True(t, w.Active)
}

func TestMemoryStore_ConcurrentActivateHoldsCap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("wh_%d", i)
		require.NoError(t, s.Create(ctx, newHook(id, "org_1"), 10))
		_, err := s.SetActive(ctx, "org_1", id, false)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.Activate(ctx, "org_1", id, 3); err == nil {
				ok.Add(1)
			}
		}(fmt.Sprintf("wh_%d", i))
	}
	wg.Wait()

	assert.EqualValues(t, 3, ok.Load())
	active, err := s.ListActiveForEvent(ctx, "org_1", EventScanComplete)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}
