package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Check-and-increment atomically so concurrent requests from one identity
// can neither jointly overshoot the quota nor lose an increment.
var quotaScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
  return {count, 0}
end
if ARGV[2] == "1" then
  count = redis.call("INCR", KEYS[1])
  redis.call("PEXPIREAT", KEYS[1], ARGV[3])
end
return {count, 1}
`)

type RedisLimiter struct {
	Client   *redis.Client
	Prefix   string
	Fallback *InMemoryLimiter
	now      func() time.Time
}

func NewRedis(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		Client:   client,
		Prefix:   "quota:",
		Fallback: NewInMemory(),
		now:      time.Now,
	}
}

func (l *RedisLimiter) Check(key string, total int, increase bool) Decision {
	if total <= 0 {
		total = 1
	}
	if l.Client == nil {
		return l.Fallback.Check(key, total, increase)
	}
	now := l.now().UTC()
	resetAt := NextReset(now)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	inc := "0"
	if increase {
		inc = "1"
	}
	res, err := quotaScript.Run(ctx, l.Client, []string{l.Prefix + key},
		total, inc, resetAt.UnixMilli()).Result()
	if err != nil {
		return l.Fallback.Check(key, total, increase)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.Fallback.Check(key, total, increase)
	}
	count, _ := vals[0].(int64)
	admitted, _ := vals[1].(int64)
	remaining := total - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Exceeded:  admitted == 0,
		Count:     int(count),
		Total:     total,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
