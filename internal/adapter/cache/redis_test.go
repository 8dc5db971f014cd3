package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCache_ClientKind(t *testing.T) {
	tests := []struct {
		name    string
		addrs   []string
		cluster bool
		want    interface{}
	}{
		{name: "single node", addrs: []string{"127.0.0.1:6379"}, want: &redis.Client{}},
		{name: "cluster flag with one address", addrs: []string{"127.0.0.1:6379"}, cluster: true, want: &redis.Client{}},
		{name: "cluster", addrs: []string{"127.0.0.1:7000", "127.0.0.1:7001"}, cluster: true, want: &redis.ClusterClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRedisCache(tt.addrs, "", tt.cluster)
			defer c.Close()
			assert.IsType(t, tt.want, c.client)
		})
	}
}

func TestRedisCache_PingUnreachable(t *testing.T) {
	// port 1 is never a redis server
	c := NewRedisCache([]string{"127.0.0.1:1"}, "", false)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, c.Ping(ctx))
}

func TestKeyNamespacing(t *testing.T) {
	assert.Equal(t, "kiosk_code:abc", key(codeNamespace, "abc"))
	assert.Equal(t, "kiosk_code_rate:block:+5491155551234", key(rateNamespace, "block:+5491155551234"))
}

// scriptedRedis answers commands without a server. Every command succeeds with
// its zero value unless failOn names it; INCR returns count.
type scriptedRedis struct {
	failOn string
	count  int64
	seen   [][]interface{}
}

func (s *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (s *scriptedRedis) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return s.answer(cmd)
	}
}

func (s *scriptedRedis) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := s.answer(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *scriptedRedis) answer(cmd redis.Cmder) error {
	s.seen = append(s.seen, cmd.Args())
	if cmd.Name() == s.failOn {
		err := errors.New(s.failOn + " refused")
		cmd.SetErr(err)
		return err
	}
	if incr, ok := cmd.(*redis.IntCmd); ok && cmd.Name() == "incr" {
		incr.SetVal(s.count)
	}
	return nil
}

func newScriptedLimiter(t *testing.T, script *scriptedRedis) domain.SendLimiter {
	t.Helper()
	c := NewRedisCache([]string{"127.0.0.1:1"}, "", false)
	t.Cleanup(func() { _ = c.Close() })
	c.client.AddHook(script)
	return NewRedisLimiter(c, time.Minute, 3, 0)
}

func TestRedisLimiter_WindowCounter(t *testing.T) {
	tests := []struct {
		name      string
		script    *scriptedRedis
		wantErr   bool
		wantValid bool
	}{
		{name: "first send", script: &scriptedRedis{count: 1}},
		{name: "expiry fails", script: &scriptedRedis{count: 1, failOn: "expire"}, wantErr: true},
		{name: "count fails", script: &scriptedRedis{count: 1, failOn: "incr"}, wantErr: true},
		{name: "over the window limit", script: &scriptedRedis{count: 4}, wantErr: true, wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newScriptedLimiter(t, tt.script)

			err := limiter.Allow(context.Background(), "+5491155551234")
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantValid, domain.IsValidationError(err))
			}
		})
	}
}

func TestRedisLimiter_CounterAlwaysCarriesExpiry(t *testing.T) {
	script := &scriptedRedis{count: 2}
	limiter := newScriptedLimiter(t, script)

	require.NoError(t, limiter.Allow(context.Background(), "+5491155551234"))

	var expire []interface{}
	for _, args := range script.seen {
		if args[0] == "expire" {
			expire = args
		}
	}
	require.NotNil(t, expire, "the window counter was sent without an expiry")
	assert.Equal(t, "kiosk_code_rate:count:+5491155551234", expire[1])
	assert.Equal(t, int64(60), expire[2])
	assert.Equal(t, "NX", expire[3])
}
