// Package usage keeps per-organization, per-billing-period counters of
// metered resources.
//
// Counters are keyed by (org, period, resource), are never negative and are
// never deleted; a new YYYY-MM period simply starts new rows. Three stores
// are provided: Postgres and Redis (both support atomic capped increments)
// and an in-memory store for development.
//
// All writes go through an Accountant:
//
//	acct := usage.NewAccountant(usage.NewPostgresStore(db))
//	key := usage.Key{OrgID: orgID, Period: usage.CurrentPeriod(time.Now()), Kind: usage.Pages}
//	count, ok, err := acct.IncrementWithinCap(ctx, key, 1, 100)
package usage
