// Package quota enforces monthly plan limits.
//
// The Enforcer records usage before the protected operation runs. Two
// concurrent requests therefore cannot both see a stale "under limit" count
// and overshoot the cap. If the operation then fails, the caller gives the
// units back with Rollback:
//
//	d, err := enforcer.CheckAndReserve(ctx, orgID, enforcer.CurrentPeriod(), usage.Pages, 1)
//	if err != nil {
//		return err // *ConfigurationError
//	}
//	if !d.Allowed {
//		return d.Err() // *QuotaExceededError, code USAGE_LIMIT_REACHED
//	}
//	if err := generate(ctx); err != nil {
//		enforcer.RollbackDecision(ctx, d)
//		return err
//	}
//
// Guard wraps that sequence.
//
// Past the cap, plans with an overage policy keep allowing requests for
// organizations that opted in. These decisions are marked IsOverage. An
// organization's spending cap is turned into a unit ceiling and enforced
// the same way as the plan cap.
package quota
