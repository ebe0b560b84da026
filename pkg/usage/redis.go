package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// ARGV[1] field, ARGV[2] delta
var deltaScript = redis.NewScript(`
local v = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if v < 0 then
	redis.call('HSET', KEYS[1], ARGV[1], 0)
	v = 0
end
return v
`)

// ARGV[1] field, ARGV[2] amount, ARGV[3] limit. Returns {ok, count}
var cappedIncrementScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local amount = tonumber(ARGV[2])
if current + amount > tonumber(ARGV[3]) then
	return {0, current}
end
return {1, redis.call('HINCRBY', KEYS[1], ARGV[1], amount)}
`)

// RedisStore keeps one hash per org and period with a field per resource.
// Keys carry no TTL; past periods are history.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed usage store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "usage:"}
}

func (s *RedisStore) hashKey(orgID string, period Period) string {
	return s.prefix + orgID + ":" + string(period)
}

// ReadUsage implements Store
func (s *RedisStore) ReadUsage(ctx context.Context, key Key) (int64, error) {
	v, err := s.client.HGet(ctx, s.hashKey(key.OrgID, key.Period), string(key.Kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return v, nil
}

// ReadPeriod implements Store
func (s *RedisStore) ReadPeriod(ctx context.Context, orgID string, period Period) (map[ResourceKind]int64, error) {
	fields, err := s.client.HGetAll(ctx, s.hashKey(orgID, period)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage period: %w", err)
	}

	out := make(map[ResourceKind]int64, len(fields))
	for field, raw := range fields {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt usage counter %s: %w", field, err)
		}
		out[ResourceKind(field)] = v
	}
	return out, nil
}

// WriteUsageDelta implements Store
func (s *RedisStore) WriteUsageDelta(ctx context.Context, key Key, delta int64) (int64, error) {
	v, err := deltaScript.Run(ctx, s.client, []string{s.hashKey(key.OrgID, key.Period)}, string(key.Kind), delta).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to write usage delta: %w", err)
	}
	return v, nil
}

// IncrementWithCap implements CappedStore
func (s *RedisStore) IncrementWithCap(ctx context.Context, key Key, amount, limit int64) (int64, bool, error) {
	vals, err := cappedIncrementScript.Run(ctx, s.client,
		[]string{s.hashKey(key.OrgID, key.Period)},
		string(key.Kind), amount, limit,
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	if len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected reply from usage script: %v", vals)
	}
	return vals[1], vals[0] == 1, nil
}
