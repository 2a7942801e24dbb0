package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces credential keys in a shared redis.
const KeyPrefix = "reklama:credential:"

// redisKV is the part of the redis client the slot needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSlot keeps the credential in redis. Keys expire together with the token
// when the token carries an expiry.
type RedisSlot struct {
	rdb redisKV
	key string
	now func() time.Time
}

func NewRedisSlot(rdb redisKV, name string) *RedisSlot {
	return &RedisSlot{rdb: rdb, key: KeyPrefix + name, now: time.Now}
}

func (r *RedisSlot) Load(ctx context.Context) (string, error) {
	v, err := r.rdb.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", r.key, err)
	}
	if v == "" {
		return "", ErrNoCredential
	}
	return v, nil
}

func (r *RedisSlot) Save(ctx context.Context, credential string) error {
	var ttl time.Duration
	if info := InspectToken(credential); !info.ExpiresAt.IsZero() {
		ttl = info.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.Delete(ctx)
		}
	}
	if err := r.rdb.Set(ctx, r.key, credential, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisSlot) Delete(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}

// ConnectRedis opens a client and checks it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}
