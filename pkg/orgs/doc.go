// Package orgs resolves organizations to subscription plans and plans to
// their monthly resource caps.
//
// # Plans
//
// DefaultPlans ships five tiers (free, starter, pro, agency, enterprise).
// A Catalog starts from those and can be overridden from a YAML file:
//
//	plans:
//	  pro:
//	    caps: {checks: 2500, pages: 120, articles: 50, audits: 50, ai_credits: 10000}
//	    overage:
//	      allowed: true
//	      unit_price_cents: {pages: 150}
//
// Catalog.Watch reloads the file on change. A file that fails validation is
// logged and ignored.
//
// # Directories
//
// Directory is what the quota enforcer consumes:
//
//	plan, err := dir.GetPlan(ctx, orgID)
//	limits, err := dir.GetPlanLimits(ctx, plan)
//	cap := limits.Cap(usage.Pages) // usage.Unlimited means no cap
//
// MemoryDirectory and PostgresDirectory are the two backends.
// CachedDirectory puts an expiring LRU in front of either one.
//
// # Related Packages
//
//   - pkg/usage: resource kinds and counters
//   - pkg/quota: enforcement built on Directory
package orgs
