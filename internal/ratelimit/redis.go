package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and starts the window on the
// first hit, all in one round trip so concurrent callers cannot interleave.
// A key that somehow lost its TTL is given a fresh one.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Redis is a Limiter shared by every instance pointed at the same Redis.
// Window expiry is delegated to key TTLs, so no janitor is needed.
type Redis struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, policy Policy, key string) (Decision, error) {
	now := r.now()
	res, err := fixedWindowScript.Run(ctx, r.client, []string{storageKey(policy, key)}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	resetAt := now.Add(time.Duration(res[1]) * time.Millisecond)
	return decide(policy, int(res[0]), resetAt, now), nil
}
