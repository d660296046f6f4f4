// Package storage provides the small key-value layer cache persistence is written to.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")
)

// KVStore is a minimal byte-oriented key-value store
type KVStore interface {
	// Put stores value under key, replacing any existing value
	Put(ctx context.Context, key, value []byte) error

	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key []byte) error

	// Iterate calls fn for every key with the given prefix until fn returns false
	Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// Close releases the store
	Close() error
}

// Config selects and configures a KVStore backend
type Config struct {
	// Backend is one of: pebble, redis, memory
	Backend string

	// Pebble settings
	Path         string
	CacheMB      int
	MaxOpenFiles int

	// Redis settings
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	PoolSize      int
	DialTimeout   time.Duration
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case "pebble":
		if c.Path == "" {
			return errors.New("path cannot be empty")
		}
		if c.CacheMB < 0 {
			return errors.New("cache size cannot be negative")
		}
		if c.MaxOpenFiles < 0 {
			return errors.New("max open files cannot be negative")
		}
	case "redis":
		if c.RedisAddress == "" {
			return errors.New("redis address cannot be empty")
		}
		if c.PoolSize < 0 {
			return errors.New("pool size cannot be negative")
		}
	case "memory":
	default:
		return errors.New("unknown backend " + c.Backend)
	}
	return nil
}

// Open creates the configured backend
func Open(ctx context.Context, cfg *Config) (KVStore, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "pebble":
		return NewPebbleKV(cfg)
	case "redis":
		return NewRedisKV(ctx, cfg)
	default:
		return NewMemoryKV(), nil
	}
}
