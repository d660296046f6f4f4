package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/cockroachdb/pebble"
)

// PebbleKV implements KVStore using PebbleDB
type PebbleKV struct {
	db     *pebble.DB
	closed atomic.Bool
}

// NewPebbleKV opens (or creates) a pebble database at cfg.Path
func NewPebbleKV(cfg *Config) (*PebbleKV, error) {
	cacheMB := cfg.CacheMB
	if cacheMB == 0 {
		cacheMB = constants.DefaultPebbleCacheMB
	}
	maxOpenFiles := cfg.MaxOpenFiles
	if maxOpenFiles == 0 {
		maxOpenFiles = constants.DefaultPebbleMaxOpenFiles
	}

	cache := pebble.NewCache(int64(cacheMB) << 20) // Convert MB to bytes
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:        cache,
		MaxOpenFiles: maxOpenFiles,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleKV{db: db}, nil
}

func (s *PebbleKV) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Put stores a key-value pair
func (s *PebbleKV) Put(ctx context.Context, key, value []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	return s.db.Set(key, value, pebble.Sync)
}

// Get retrieves a value by key
func (s *PebbleKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// Copy the value as it's only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Delete removes a key-value pair
func (s *PebbleKV) Delete(ctx context.Context, key []byte) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	return s.db.Delete(key, pebble.Sync)
}

// Iterate iterates over keys with the given prefix
func (s *PebbleKV) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Keys and values are only valid until the next iteration
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())

		if !fn(key, value) {
			break
		}
	}

	return iter.Error()
}

// Close closes the database
func (s *PebbleKV) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}
	return s.db.Close()
}

// prefixUpperBound returns the upper bound for prefix iteration
func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // All 0xff, no upper bound
}
