// Package ratelimit provides sliding-window request rate limiting.
//
// A Limiter counts accepted requests per identifier over a trailing window
// and rejects on read once Max is reached, so there is no burst at window
// boundaries. Limiters are plain values owned by a Registry; nothing here is
// global.
//
//	registry := ratelimit.NewRegistry(ratelimit.DefaultPresets())
//	res, _ := registry.MustGet(ratelimit.BulkScan).Allow(ctx, orgID)
//	if !res.Allowed {
//		return res.Err(ratelimit.BulkScan, orgID)
//	}
//
// In-process windows are per instance, an approximation under scale-out.
// RedisLimiter runs the same algorithm in Redis when a shared window is
// wanted. Registry.SweepAll is meant to run periodically to evict idle
// identifiers.
package ratelimit
