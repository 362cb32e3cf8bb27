package lock

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// releaseScript deletes the key only while it still carries our token, so an
// expired hold re-acquired by someone else is never released by us.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(addr string) (rueidis.Client, error) {
	return rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
}

// RedisLocker implements Locker with SET NX PX so holds are shared by every
// API process talking to the same Redis.
type RedisLocker struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client rueidis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	cmd := r.client.B().Set().Key(fullKey).Value(token).Nx().Px(r.ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrLocked
		}
		return nil, err
	}

	return func() {
		// Release on a fresh context: the caller's may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Exec(releaseCtx, r.client, []string{fullKey}, []string{token}).Error(); err != nil {
			log.Printf("[Lock] Failed to release %s: %v", fullKey, err)
		}
	}, nil
}
