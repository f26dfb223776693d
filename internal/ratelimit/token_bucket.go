package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// reserveScript refills the bucket from the server clock and withdraws
// ARGV[4] tokens at once, or none. Tokens come back as a string so the
// fractional part survives the Lua to RESP conversion.
const reserveScript = `
local rate, burst, ttl, cost = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4])
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local tokens = burst
local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
if state[1] then
  local elapsed = math.max(0, now - tonumber(state[2]))
  tokens = math.min(burst, tonumber(state[1]) + elapsed * rate / 1000)
end

local granted = 0
if tokens >= cost then
  granted = 1
  tokens = tokens - cost
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {granted, tostring(tokens)}
`

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(reserveScript),
	}
}

// Allow withdraws cost tokens from the bucket at key. A request costing more
// than burst can never pass and is refused without touching redis.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst, cost int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, errors.New("rate limiter not configured")
	}
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return Result{}, errors.New("rate limiter rate and burst must be positive")
	}
	if cost < 1 {
		cost = 1
	}
	if cost > burst {
		return Result{Limit: burst}, nil
	}

	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds(), cost).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	out := Result{
		Allowed:   toInt(res[0]) == 1,
		Limit:     burst,
		Remaining: int(toFloat(res[1])),
	}
	if !out.Allowed {
		out.RetryAfter = retryAfter(toFloat(res[1]), float64(cost), rate)
	}
	return out, nil
}

func retryAfter(tokens, cost, rate float64) time.Duration {
	missing := cost - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / rate * float64(time.Second))
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		parsed, _ := strconv.ParseFloat(val, 64)
		return parsed
	default:
		return 0
	}
}
