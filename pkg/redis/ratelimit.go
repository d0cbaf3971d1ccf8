package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tagomatech/ETL/pkg/config"
)

// Quota is a request budget per sliding window, shared by every process using the same key
type Quota struct {
	Key    string
	Limit  int
	Window time.Duration
}

// BarchartQuota converts the per-process Barchart throttle into a per-minute shared budget
func BarchartQuota(cfg config.BarchartConfig) Quota {
	limit := int(math.Floor(cfg.RatePerSecond * 60))
	if limit < 1 {
		limit = 1
	}
	return Quota{Key: "barchart", Limit: limit, Window: time.Minute}
}

// reserveScript admits one request when the window has room.
// It returns 0 when admitted, otherwise the milliseconds until the oldest entry leaves the window.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) < limit then
	local seq = redis.call('INCR', key .. ':seq')
	redis.call('PEXPIRE', key .. ':seq', window)
	redis.call('ZADD', key, now, now .. '-' .. seq)
	redis.call('PEXPIRE', key, window)
	return 0
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
	wait = 1
end
return wait
`)

// SharedLimiter throttles requests across processes with a Redis sorted set
// ⭐ SSOT: 프로세스 간 레이트 리밋은 여기서만
type SharedLimiter struct {
	client *Client
	prefix string
	now    func() time.Time
}

// NewSharedLimiter creates a limiter whose keys live under prefix
func NewSharedLimiter(client *Client, prefix string) *SharedLimiter {
	return &SharedLimiter{client: client, prefix: prefix, now: time.Now}
}

// Reserve admits one request or reports how long to wait before trying again
// A disabled client admits everything.
func (l *SharedLimiter) Reserve(ctx context.Context, q Quota) (time.Duration, error) {
	if !l.client.Enabled() {
		return 0, nil
	}
	if q.Limit < 1 || q.Window <= 0 {
		return 0, fmt.Errorf("invalid quota %q: limit %d per %s", q.Key, q.Limit, q.Window)
	}

	key := fmt.Sprintf("%s:ratelimit:%s", l.prefix, q.Key)
	wait, err := reserveScript.Run(ctx, l.client.Redis(), []string{key},
		l.now().UnixMilli(), q.Window.Milliseconds(), q.Limit).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	return time.Duration(wait) * time.Millisecond, nil
}

// Wait blocks until a request is admitted or ctx is done
func (l *SharedLimiter) Wait(ctx context.Context, q Quota) error {
	for {
		wait, err := l.Reserve(ctx, q)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Waiter binds the limiter to one quota, matching httputil.WithWaiter
func (l *SharedLimiter) Waiter(q Quota) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return l.Wait(ctx, q)
	}
}
