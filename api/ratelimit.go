package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// slidingWindow trims entries older than the window, then admits the request when fewer
// than limit remain. KEYS[1] key; ARGV now-ms, window-ms, limit, member.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// SendLimiter is a per-key sliding window limiter shared by every instance through redis
type SendLimiter struct {
	Redis  redis.Scripter
	Prefix string
	Limit  int
	Window time.Duration
}

// NewSendLimiter creates a limiter allowing limit events per window
func NewSendLimiter(r redis.Scripter, prefix string, limit int, window time.Duration) *SendLimiter {
	return &SendLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window}
}

// Allow records one event for key and reports whether it is within the limit. A redis
// failure fails open so an outage never stops chat.
func (l *SendLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.Redis == nil || l.Limit <= 0 {
		return true, nil
	}
	now := time.Now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.Redis,
		[]string{fmt.Sprintf("%s:%s", l.Prefix, key)},
		now, l.Window.Milliseconds(), l.Limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int()
	if err != nil {
		zap.S().Warnw("rate limiter unavailable, allowing request", "key", key, "error", err)
		return true, err
	}
	return res == 1, nil
}
