package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

const (
	codeNamespace = "kiosk_code"
	rateNamespace = "kiosk_code_rate"
)

// RedisCache wraps a redis client with namespaced keys
type RedisCache struct {
	client redis.UniversalClient // works with both single and cluster
}

// NewRedisCache creates a new RedisCache instance
func NewRedisCache(addrs []string, password string, useCluster bool) *RedisCache {
	var rdb redis.UniversalClient

	if useCluster && len(addrs) > 1 {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: password,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addrs[0],
			Password: password,
			DB:       0,
		})
	}

	return &RedisCache{client: rdb}
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func key(namespace, k string) string {
	return namespace + ":" + k
}

// redisCodeStore implements domain.CodeStore
type redisCodeStore struct {
	cache *RedisCache
}

// NewRedisCodeStore creates a code store backed by redis
func NewRedisCodeStore(c *RedisCache) domain.CodeStore {
	return &redisCodeStore{cache: c}
}

// Save stores the code with a TTL, replacing any previous code of the session
func (s *redisCodeStore) Save(ctx context.Context, sessionID uuid.UUID, code string, ttl time.Duration) error {
	if err := s.cache.client.Set(ctx, key(codeNamespace, sessionID.String()), code, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	return nil
}

// Get returns domain.ErrCodeNotFound when the key expired or never existed
func (s *redisCodeStore) Get(ctx context.Context, sessionID uuid.UUID) (string, error) {
	code, err := s.cache.client.Get(ctx, key(codeNamespace, sessionID.String())).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrCodeNotFound
		}
		return "", fmt.Errorf("failed to read verification code: %w", err)
	}
	return code, nil
}

// Delete removes the code of a session
func (s *redisCodeStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.cache.client.Del(ctx, key(codeNamespace, sessionID.String())).Err(); err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}

// redisLimiter implements domain.SendLimiter
type redisLimiter struct {
	cache       *RedisCache
	window      time.Duration
	maxInWindow int
	cooldown    time.Duration
}

// NewRedisLimiter creates a send limiter shared by every terminal using the same redis
func NewRedisLimiter(c *RedisCache, window time.Duration, maxInWindow int, cooldown time.Duration) domain.SendLimiter {
	return &redisLimiter{cache: c, window: window, maxInWindow: maxInWindow, cooldown: cooldown}
}

// Allow checks, in order: the block after too many sends, the cooldown since the
// last send, and the send count of the current window
func (l *redisLimiter) Allow(ctx context.Context, phone string) error {
	blockKey := key(rateNamespace, "block:"+phone)
	lastKey := key(rateNamespace, "last:"+phone)
	countKey := key(rateNamespace, "count:"+phone)

	if ttl, _ := l.cache.client.TTL(ctx, blockKey).Result(); ttl > 0 {
		return domain.NewValidationError("phone", fmt.Sprintf("too many code requests, try again in %d seconds", int(ttl.Seconds())))
	}

	if ttl, _ := l.cache.client.TTL(ctx, lastKey).Result(); ttl > 0 {
		return domain.NewValidationError("phone", fmt.Sprintf("wait %d seconds before requesting another code", int(ttl.Seconds())))
	}

	// the window counter always carries a TTL, set by the first send of the window
	var incr *redis.IntCmd
	_, err := l.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, countKey)
		pipe.ExpireNX(ctx, countKey, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to count code requests: %w", err)
	}
	cnt := incr.Val()

	if int(cnt) > l.maxInWindow {
		_ = l.cache.client.Set(ctx, blockKey, "1", l.window*3).Err()
		return domain.NewValidationError("phone", fmt.Sprintf("too many code requests, try again in %d seconds", int((l.window*3).Seconds())))
	}

	if l.cooldown > 0 {
		_ = l.cache.client.Set(ctx, lastKey, "1", l.cooldown).Err()
	}

	return nil
}
