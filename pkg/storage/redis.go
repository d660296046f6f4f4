package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/redis/go-redis/v9"
)

// RedisKV implements KVStore on a redis server, letting several duelwatch
// instances share one persisted cache
type RedisKV struct {
	client redis.UniversalClient
	closed atomic.Bool
}

// NewRedisKV connects to redis and verifies the connection
func NewRedisKV(ctx context.Context, cfg *Config) (*RedisKV, error) {
	poolSize := cfg.PoolSize
	if poolSize == 0 {
		poolSize = constants.DefaultRedisPoolSize
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = constants.DefaultRedisDialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddress,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		PoolSize:    poolSize,
		DialTimeout: dialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisKV{client: client}, nil
}

// NewRedisKVFromClient wraps an existing client
func NewRedisKVFromClient(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (s *RedisKV) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Put stores a key-value pair
func (s *RedisKV) Put(ctx context.Context, key, value []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	return s.client.Set(ctx, string(key), value, 0).Err()
}

// Get retrieves a value by key
func (s *RedisKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, string(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Delete removes a key-value pair
func (s *RedisKV) Delete(ctx context.Context, key []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	return s.client.Del(ctx, string(key)).Err()
}

// Iterate scans keys with the given prefix. Order is not guaranteed.
func (s *RedisKV) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}

	iter := s.client.Scan(ctx, 0, escapeGlob(string(prefix))+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return err
		}
		if !fn([]byte(key), value) {
			break
		}
	}
	return iter.Err()
}

// Close closes the client
func (s *RedisKV) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
