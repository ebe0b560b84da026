package orgs

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedDirectory caches plan and overage lookups per organization for a
// short TTL. Plan changes become visible after at most one TTL unless
// Invalidate is called.
type CachedDirectory struct {
	next    Directory
	plans   *lru.LRU[string, PlanTier]
	overage *lru.LRU[string, *OverageSettings]
}

// NewCachedDirectory wraps next with an LRU of size entries
func NewCachedDirectory(next Directory, size int, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:    next,
		plans:   lru.NewLRU[string, PlanTier](size, nil, ttl),
		overage: lru.NewLRU[string, *OverageSettings](size, nil, ttl),
	}
}

// GetPlan implements Directory
func (c *CachedDirectory) GetPlan(ctx context.Context, orgID string) (PlanTier, error) {
	if plan, ok := c.plans.Get(orgID); ok {
		return plan, nil
	}
	plan, err := c.next.GetPlan(ctx, orgID)
	if err != nil {
		return "", err
	}
	c.plans.Add(orgID, plan)
	return plan, nil
}

// GetPlanLimits implements Directory. Limits come from the in-memory catalog
// and are not cached here.
func (c *CachedDirectory) GetPlanLimits(ctx context.Context, plan PlanTier) (*PlanLimits, error) {
	return c.next.GetPlanLimits(ctx, plan)
}

// GetOverageSettings implements OverageDirectory. When the wrapped directory
// has no overage settings, nil is returned.
func (c *CachedDirectory) GetOverageSettings(ctx context.Context, orgID string) (*OverageSettings, error) {
	od, ok := c.next.(OverageDirectory)
	if !ok {
		return nil, nil
	}
	if s, ok := c.overage.Get(orgID); ok {
		return s, nil
	}
	s, err := od.GetOverageSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.overage.Add(orgID, s)
	return s, nil
}

// Invalidate drops cached entries for an organization
func (c *CachedDirectory) Invalidate(orgID string) {
	c.plans.Remove(orgID)
	c.overage.Remove(orgID)
}
