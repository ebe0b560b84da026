package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// slidingWindowScript keeps one sorted set per identifier, scored by
// millisecond timestamps. Prune, count, and conditional add run atomically.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max, ARGV[4] unique member
// Returns {allowed, remaining, reset_after_ms}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

local allowed = 0
if count < max then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end

local reset = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window - now
end

return {allowed, max - count, reset}
`)

// peekScript counts the window without pruning or adding to it.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] max, ARGV[4] exclusive lower bound
// Returns {allowed, remaining, reset_after_ms}
var peekScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local count = redis.call('ZCOUNT', key, ARGV[4], '+inf')
local reset = 0
local oldest = redis.call('ZRANGEBYSCORE', key, ARGV[4], '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
if oldest[2] then
	reset = tonumber(oldest[2]) + window - now
end

local allowed = 0
if count < max then
	allowed = 1
end
local remaining = max - count
if remaining < 0 then
	remaining = 0
end

return {allowed, remaining, reset}
`)

// RedisLimiter implements the same sliding window as Limiter but keeps the
// windows in Redis so every instance shares them. When Redis is unavailable
// it fails open: a broken cache must not take the API down.
type RedisLimiter struct {
	client *redis.Client
	config Config
	prefix string
	now    Clock
	logger logrus.FieldLogger
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, config Config, logger logrus.FieldLogger) *RedisLimiter {
	if err := config.Validate(); err != nil {
		panic(err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisLimiter{
		client: client,
		config: config,
		prefix: "ratelimit:" + config.Name + ":",
		now:    time.Now,
		logger: logger,
	}
}

// Config returns the limiter's window/max pair
func (l *RedisLimiter) Config() Config {
	return l.config
}

// Allow runs the sliding-window check in Redis
func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (Result, error) {
	now := l.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	return l.run(ctx, slidingWindowScript, identifier,
		now, l.config.Window.Milliseconds(), l.config.Max, member)
}

// Peek implements Checker
func (l *RedisLimiter) Peek(ctx context.Context, identifier string) (Result, error) {
	now := l.now().UnixMilli()
	return l.run(ctx, peekScript, identifier,
		now, l.config.Window.Milliseconds(), l.config.Max, "("+strconv.FormatInt(now-l.config.Window.Milliseconds(), 10))
}

func (l *RedisLimiter) run(ctx context.Context, script *redis.Script, identifier string, args ...interface{}) (Result, error) {
	vals, err := script.Run(ctx, l.client, []string{l.prefix + identifier}, args...).Int64Slice()
	if err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"limiter":    l.config.Name,
			"identifier": identifier,
		}).Warn("Redis rate limit check failed, allowing request")
		return Result{Allowed: true, Limit: l.config.Max, Remaining: l.config.Max}, nil
	}
	if len(vals) != 3 {
		return Result{Allowed: true, Limit: l.config.Max, Remaining: l.config.Max}, nil
	}

	return Result{
		Allowed:    vals[0] == 1,
		Limit:      l.config.Max,
		Remaining:  int(vals[1]),
		ResetAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
