package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
)

// memoryCodeStore implements domain.CodeStore in process memory.
// It suits a single terminal that runs without redis.
type memoryCodeStore struct {
	c *gocache.Cache
}

// NewMemoryCodeStore creates an in-memory code store
func NewMemoryCodeStore(cleanupInterval time.Duration) domain.CodeStore {
	return &memoryCodeStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *memoryCodeStore) Save(_ context.Context, sessionID uuid.UUID, code string, ttl time.Duration) error {
	s.c.Set(sessionID.String(), code, ttl)
	return nil
}

func (s *memoryCodeStore) Get(_ context.Context, sessionID uuid.UUID) (string, error) {
	v, ok := s.c.Get(sessionID.String())
	if !ok {
		return "", domain.ErrCodeNotFound
	}
	return v.(string), nil
}

func (s *memoryCodeStore) Delete(_ context.Context, sessionID uuid.UUID) error {
	s.c.Delete(sessionID.String())
	return nil
}

// memoryLimiter implements domain.SendLimiter in process memory
type memoryLimiter struct {
	mu          sync.Mutex
	c           *gocache.Cache
	window      time.Duration
	maxInWindow int
	cooldown    time.Duration
}

// NewMemoryLimiter creates an in-memory send limiter
func NewMemoryLimiter(window time.Duration, maxInWindow int, cooldown time.Duration) domain.SendLimiter {
	return &memoryLimiter{
		c:           gocache.New(window, window),
		window:      window,
		maxInWindow: maxInWindow,
		cooldown:    cooldown,
	}
}

func (l *memoryLimiter) Allow(_ context.Context, phone string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exp, ok := l.c.GetWithExpiration("block:" + phone); ok {
		return domain.NewValidationError("phone", fmt.Sprintf("too many code requests, try again in %d seconds", secondsUntil(exp)))
	}

	if _, exp, ok := l.c.GetWithExpiration("last:" + phone); ok {
		return domain.NewValidationError("phone", fmt.Sprintf("wait %d seconds before requesting another code", secondsUntil(exp)))
	}

	// IncrementInt keeps the expiry of the window's first send
	countKey := "count:" + phone
	cnt, err := l.c.IncrementInt(countKey, 1)
	if err != nil {
		cnt = 1
		l.c.Set(countKey, cnt, l.window)
	}

	if cnt > l.maxInWindow {
		l.c.Set("block:"+phone, true, l.window*3)
		return domain.NewValidationError("phone", fmt.Sprintf("too many code requests, try again in %d seconds", int((l.window*3).Seconds())))
	}

	if l.cooldown > 0 {
		l.c.Set("last:"+phone, true, l.cooldown)
	}

	return nil
}

func secondsUntil(t time.Time) int {
	s := int(time.Until(t).Seconds())
	if s < 1 {
		return 1
	}
	return s
}
