package coord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores sessions as redis hashes and uses redis pub/sub.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects lazily to the redis server at url
// (redis://[user:pass@]host:port/db).
func NewRedisBackend(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Fail fast so an unreachable server degrades the store quickly.
	opts.MaxRetries = 1
	opts.DialTimeout = 2 * time.Second
	return NewRedisBackendFromClient(redis.NewClient(opts)), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Ping(ctx context.Context) error {
	return wrapRedis(b.client.Ping(ctx).Err())
}

func (b *RedisBackend) SaveSession(ctx context.Context, sessionID string, fields map[string]string, ttl time.Duration) error {
	key := SessionKey(sessionID)
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return wrapRedis(err)
}

func (b *RedisBackend) LoadSession(ctx context.Context, sessionID string) (map[string]string, error) {
	fields, err := b.client.HGetAll(ctx, SessionKey(sessionID)).Result()
	if err != nil {
		return nil, wrapRedis(err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}
	return fields, nil
}

func (b *RedisBackend) DeleteSession(ctx context.Context, sessionID string) error {
	return wrapRedis(b.client.Del(ctx, SessionKey(sessionID)).Err())
}

func (b *RedisBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	return wrapRedis(b.client.Publish(ctx, channel, payload).Err())
}

// Subscribe opens a dedicated subscriber connection for channel.
func (b *RedisBackend) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so publishes after this call are seen.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, wrapRedis(err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan []byte, 64)}
	go sub.pump()
	return sub, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan []byte
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		s.out <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }

// wrapRedis maps client shutdown, dropped connections and dial failures onto
// ErrBackendUnavailable.
func wrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || IsConnectionError(err) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return err
}
