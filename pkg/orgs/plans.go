package orgs

import (
	"fmt"

	"github.com/platinummonkey/lumen/pkg/usage"
)

// PlanTier identifies a subscription plan
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanAgency     PlanTier = "agency"
	PlanEnterprise PlanTier = "enterprise"
)

// OveragePolicy says whether a plan may go past its included quota and
// what each extra unit costs
type OveragePolicy struct {
	Allowed        bool                         `yaml:"allowed" json:"allowed"`
	UnitPriceCents map[usage.ResourceKind]int64 `yaml:"unit_price_cents" json:"unit_price_cents,omitempty"`
}

// PlanLimits holds the monthly caps of one plan. A cap of usage.Unlimited
// disables the check for that resource; a missing resource has cap 0.
type PlanLimits struct {
	Plan    PlanTier                     `yaml:"-" json:"plan"`
	Caps    map[usage.ResourceKind]int64 `yaml:"caps" json:"caps"`
	Overage OveragePolicy                `yaml:"overage" json:"overage"`
}

// Cap returns the cap for kind
func (l *PlanLimits) Cap(kind usage.ResourceKind) int64 {
	return l.Caps[kind]
}

// UnitPrice returns the overage price of one unit of kind, in cents
func (l *PlanLimits) UnitPrice(kind usage.ResourceKind) int64 {
	return l.Overage.UnitPriceCents[kind]
}

// Validate checks caps and prices
func (l *PlanLimits) Validate() error {
	for kind, limit := range l.Caps {
		if !kind.Valid() {
			return fmt.Errorf("plan %s: unknown resource %q", l.Plan, kind)
		}
		if limit < usage.Unlimited {
			return fmt.Errorf("plan %s: cap for %s must be >= -1, got %d", l.Plan, kind, limit)
		}
	}
	for kind, price := range l.Overage.UnitPriceCents {
		if !kind.Valid() {
			return fmt.Errorf("plan %s: unknown resource %q in overage prices", l.Plan, kind)
		}
		if price < 0 {
			return fmt.Errorf("plan %s: negative overage price for %s", l.Plan, kind)
		}
	}
	return nil
}

// OverageSettings are an organization's own overage choices
type OverageSettings struct {
	Enabled bool `json:"enabled"`
	// SpendingCapCents bounds overage spend per period; 0 means no cap
	SpendingCapCents int64 `json:"spending_cap_cents"`
}

// HasSpendingCap reports whether overage spend is bounded
func (s *OverageSettings) HasSpendingCap() bool {
	return s != nil && s.SpendingCapCents > 0
}

// DefaultPlans returns the built-in plan table
func DefaultPlans() map[PlanTier]*PlanLimits {
	return map[PlanTier]*PlanLimits{
		PlanFree: {
			Plan: PlanFree,
			Caps: map[usage.ResourceKind]int64{
				usage.Checks:    50,
				usage.Pages:     3,
				usage.Articles:  0,
				usage.Audits:    1,
				usage.AICredits: 100,
			},
		},
		PlanStarter: {
			Plan: PlanStarter,
			Caps: map[usage.ResourceKind]int64{
				usage.Checks:    500,
				usage.Pages:     25,
				usage.Articles:  10,
				usage.Audits:    10,
				usage.AICredits: 2000,
			},
			Overage: OveragePolicy{
				Allowed: true,
				UnitPriceCents: map[usage.ResourceKind]int64{
					usage.Checks:    2,
					usage.Pages:     200,
					usage.Articles:  300,
					usage.Audits:    100,
					usage.AICredits: 1,
				},
			},
		},
		PlanPro: {
			Plan: PlanPro,
			Caps: map[usage.ResourceKind]int64{
				usage.Checks:    2000,
				usage.Pages:     100,
				usage.Articles:  50,
				usage.Audits:    50,
				usage.AICredits: 10000,
			},
			Overage: OveragePolicy{
				Allowed: true,
				UnitPriceCents: map[usage.ResourceKind]int64{
					usage.Checks:    1,
					usage.Pages:     150,
					usage.Articles:  250,
					usage.Audits:    75,
					usage.AICredits: 1,
				},
			},
		},
		PlanAgency: {
			Plan: PlanAgency,
			Caps: map[usage.ResourceKind]int64{
				usage.Checks:    10000,
				usage.Pages:     500,
				usage.Articles:  250,
				usage.Audits:    250,
				usage.AICredits: 50000,
			},
			Overage: OveragePolicy{
				Allowed: true,
				UnitPriceCents: map[usage.ResourceKind]int64{
					usage.Checks:    1,
					usage.Pages:     100,
					usage.Articles:  200,
					usage.Audits:    50,
					usage.AICredits: 1,
				},
			},
		},
		PlanEnterprise: {
			Plan: PlanEnterprise,
			Caps: map[usage.ResourceKind]int64{
				usage.Checks:    usage.Unlimited,
				usage.Pages:     usage.Unlimited,
				usage.Articles:  usage.Unlimited,
				usage.Audits:    usage.Unlimited,
				usage.AICredits: usage.Unlimited,
			},
		},
	}
}
