package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "breaker:"

// acquireScript transitions open -> half-open once the reset timeout elapsed
// and admits exactly one trial call. Returns {state, allowed}.
var acquireScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state or state == 'closed' then
  return {'closed', 1}
end
local now = tonumber(ARGV[1])
local reset = tonumber(ARGV[2])
if state == 'open' then
  local last = tonumber(redis.call('HGET', KEYS[1], 'last_failure_ms') or '0')
  if now - last >= reset then
    redis.call('HSET', KEYS[1], 'state', 'half_open', 'trial', '1')
    return {'half_open', 1}
  end
  return {'open', 0}
end
local trial = redis.call('HGET', KEYS[1], 'trial')
if trial == '1' then
  return {'half_open', 0}
end
redis.call('HSET', KEYS[1], 'trial', '1')
return {'half_open', 1}
`)

// failureScript counts a failure and trips the breaker at the threshold.
// A failed half-open trial reopens immediately. Returns {state, tripped}.
var failureScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
local now = ARGV[1]
if state == 'half_open' then
  redis.call('HSET', KEYS[1], 'state', 'open', 'last_failure_ms', now, 'trial', '0')
  return {'open', 0}
end
if state == 'open' then
  return {'open', 0}
end
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
if failures >= tonumber(ARGV[2]) then
  redis.call('HSET', KEYS[1], 'state', 'open', 'last_failure_ms', now)
  return {'open', 1}
end
return {'closed', 0}
`)

// releaseScript frees the trial slot when a half-open call finished with an
// outcome that counts neither as success nor failure.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') == 'half_open' then
  redis.call('HSET', KEYS[1], 'trial', '0')
end
return 1
`)

// RedisStore shares breaker state between app instances through the Redis
// counter store. Transitions run as scripts so they stay atomic under
// concurrent workers.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a breaker state store on the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) Acquire(ctx context.Context, key string, _ int, resetTimeout time.Duration) (State, bool, error) {
	res, err := acquireScript.Run(ctx, s.client, []string{redisKey(key)},
		time.Now().UnixMilli(), resetTimeout.Milliseconds()).Result()
	if err != nil {
		return StateClosed, false, err
	}
	state, allowed, err := parseScriptReply(res)
	if err != nil {
		return StateClosed, false, err
	}
	return state, allowed, nil
}

func (s *RedisStore) Success(ctx context.Context, key string) error {
	return s.client.HSet(ctx, redisKey(key), "state", string(StateClosed), "failures", 0, "trial", 0).Err()
}

func (s *RedisStore) Failure(ctx context.Context, key string, threshold int, _ time.Duration) (State, bool, error) {
	res, err := failureScript.Run(ctx, s.client, []string{redisKey(key)},
		time.Now().UnixMilli(), threshold).Result()
	if err != nil {
		return StateClosed, false, err
	}
	return parseFailureReply(res)
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, s.client, []string{redisKey(key)}).Err()
}

func (s *RedisStore) State(ctx context.Context, key string) (State, error) {
	state, err := s.client.HGet(ctx, redisKey(key), "state").Result()
	if err == redis.Nil {
		return StateClosed, nil
	}
	if err != nil {
		return StateClosed, err
	}
	return State(state), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKey(key)).Err()
}

func parseScriptReply(res interface{}) (State, bool, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return StateClosed, false, fmt.Errorf("unexpected breaker script reply: %v", res)
	}
	state, _ := vals[0].(string)
	flag, _ := vals[1].(int64)
	return State(state), flag == 1, nil
}

func parseFailureReply(res interface{}) (State, bool, error) {
	return parseScriptReply(res)
}
