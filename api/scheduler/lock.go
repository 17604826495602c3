package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while owner still holds it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Locker shared by every instance pointed at the same Redis
type RedisLock struct {
	Redis  redis.Cmdable
	Prefix string
}

// NewRedisLock creates a job lock under the "sleeprism:lock:" prefix
func NewRedisLock(rdb redis.Cmdable) *RedisLock {
	return &RedisLock{Redis: rdb, Prefix: "sleeprism:lock:"}
}

// TryAcquireLock implements Locker
func (l *RedisLock) TryAcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return l.Redis.SetNX(ctx, l.Prefix+name, owner, ttl).Result()
}

// ReleaseLock implements Locker
func (l *RedisLock) ReleaseLock(ctx context.Context, name, owner string) error {
	return releaseScript.Run(ctx, l.Redis, []string{l.Prefix + name}, owner).Err()
}
