package orgs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrOrgNotFound  = errors.New("organization not found")
	ErrPlanNotFound = errors.New("plan not found")
)

// Organization is the slice of an organization record the metering core reads
type Organization struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Plan             PlanTier  `json:"plan"`
	OverageEnabled   bool      `json:"overage_enabled"`
	SpendingCapCents int64     `json:"spending_cap_cents,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Overage returns the organization's overage settings
func (o *Organization) Overage() *OverageSettings {
	return &OverageSettings{Enabled: o.OverageEnabled, SpendingCapCents: o.SpendingCapCents}
}

// Directory resolves organizations to plans and plans to limits
type Directory interface {
	GetPlan(ctx context.Context, orgID string) (PlanTier, error)
	GetPlanLimits(ctx context.Context, plan PlanTier) (*PlanLimits, error)
}

// OverageDirectory is implemented by directories that know each
// organization's overage opt-in and spending cap. Without it, a plan's
// overage policy applies to every organization on the plan.
type OverageDirectory interface {
	Directory
	GetOverageSettings(ctx context.Context, orgID string) (*OverageSettings, error)
}

// catalogLimits is the GetPlanLimits shared by every directory
func catalogLimits(catalog *Catalog, plan PlanTier) (*PlanLimits, error) {
	limits, ok := catalog.Limits(plan)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, plan)
	}
	return limits, nil
}

// MemoryDirectory keeps organizations in memory
type MemoryDirectory struct {
	catalog *Catalog

	mu   sync.RWMutex
	orgs map[string]*Organization
}

// NewMemoryDirectory creates an empty directory backed by catalog
func NewMemoryDirectory(catalog *Catalog) *MemoryDirectory {
	return &MemoryDirectory{catalog: catalog, orgs: make(map[string]*Organization)}
}

// Put adds or replaces an organization
func (d *MemoryDirectory) Put(org *Organization) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *org
	d.orgs[org.ID] = &cp
}

// GetOrganization returns a copy of the organization
func (d *MemoryDirectory) GetOrganization(_ context.Context, orgID string) (*Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	org, ok := d.orgs[orgID]
	if !ok {
		return nil, ErrOrgNotFound
	}
	cp := *org
	return &cp, nil
}

// GetPlan implements Directory
func (d *MemoryDirectory) GetPlan(ctx context.Context, orgID string) (PlanTier, error) {
	org, err := d.GetOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	return org.Plan, nil
}

// GetPlanLimits implements Directory
func (d *MemoryDirectory) GetPlanLimits(_ context.Context, plan PlanTier) (*PlanLimits, error) {
	return catalogLimits(d.catalog, plan)
}

// GetOverageSettings implements OverageDirectory
func (d *MemoryDirectory) GetOverageSettings(ctx context.Context, orgID string) (*OverageSettings, error) {
	org, err := d.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return org.Overage(), nil
}
