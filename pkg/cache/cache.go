// Package cache implements the query cache: four kinds of entries with
// per-kind TTLs, targeted invalidation and debounced persistence to a KVStore.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/pkg/storage"
	"go.uber.org/zap"
)

// Kind identifies one of the cached result families
type Kind string

const (
	KindWalletStats      Kind = "walletStats"
	KindDuelHistory      Kind = "duelHistory"
	KindLiveFeed         Kind = "liveFeed"
	KindDuelTransactions Kind = "duelTransactions"
)

// Kinds lists every kind in persistence order
var Kinds = []Kind{KindWalletStats, KindDuelHistory, KindLiveFeed, KindDuelTransactions}

// ErrUnknownKind is returned for a kind outside Kinds
var ErrUnknownKind = errors.New("unknown cache kind")

// Observer receives hit/miss notifications
type Observer interface {
	ObserveCache(kind Kind, hit bool)
}

// Config holds cache settings
type Config struct {
	// TTL per kind; missing kinds use the package defaults
	TTL map[Kind]time.Duration

	// Namespace prefixes the persisted keys
	Namespace string

	// PersistDelay debounces persistence after a mutation
	PersistDelay time.Duration
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		TTL: map[Kind]time.Duration{
			KindWalletStats:      constants.DefaultWalletStatsTTL,
			KindDuelHistory:      constants.DefaultDuelHistoryTTL,
			KindLiveFeed:         constants.DefaultLiveFeedTTL,
			KindDuelTransactions: constants.DefaultDuelTransactionsTTL,
		},
		Namespace:    constants.DefaultCacheNamespace,
		PersistDelay: constants.DefaultPersistDelay,
	}
}

// entry is a cached value with its write time in unix milliseconds
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// liveSlot is the single live feed entry, remembering the key it was filled for
type liveSlot struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Store is the query cache. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	ttl     map[Kind]time.Duration
	entries map[Kind]map[string]entry
	live    *liveSlot

	kv        storage.KVStore
	namespace string
	delay     time.Duration
	dirty     chan struct{}

	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// NewStore creates a cache persisting to kv. A nil kv disables persistence.
func NewStore(cfg Config, kv storage.KVStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	ttl := make(map[Kind]time.Duration, len(Kinds))
	for _, k := range Kinds {
		ttl[k] = defaults.TTL[k]
		if d, ok := cfg.TTL[k]; ok && d > 0 {
			ttl[k] = d
		}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.PersistDelay <= 0 {
		cfg.PersistDelay = defaults.PersistDelay
	}

	return &Store{
		ttl:       ttl,
		entries:   newEntryMaps(),
		kv:        kv,
		namespace: cfg.Namespace,
		delay:     cfg.PersistDelay,
		dirty:     make(chan struct{}, 1),
		logger:    logger,
		now:       time.Now,
	}
}

func newEntryMaps() map[Kind]map[string]entry {
	return map[Kind]map[string]entry{
		KindWalletStats:      {},
		KindDuelHistory:      {},
		KindDuelTransactions: {},
	}
}

// SetObserver installs a hit/miss observer
func (s *Store) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// SetClock replaces the time source
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// TTL returns the freshness window of a kind
func (s *Store) TTL(kind Kind) time.Duration {
	return s.ttl[kind]
}

// LiveFeedKey returns the slot key used for a live feed of the given size
func LiveFeedKey(limit int) string {
	return fmt.Sprintf("liveFeed-%d", limit)
}

// HistoryKey returns the key of one duel history page
func HistoryKey(address string, limit, page int) string {
	return fmt.Sprintf("%s-%d-%d", address, limit, page)
}

// Get decodes the fresh entry for kind/key into out and reports whether it was found.
func (s *Store) Get(kind Kind, key string, out any) bool {
	s.mu.Lock()
	data, ok := s.lookup(kind, key)
	observer := s.observer
	s.mu.Unlock()

	if ok {
		if err := json.Unmarshal(data, out); err != nil {
			s.logger.Warn("discarding undecodable cache entry",
				zap.String("kind", string(kind)),
				zap.String("key", key),
				zap.Error(err),
			)
			s.Invalidate(kind, key)
			ok = false
		}
	}

	if observer != nil {
		observer.ObserveCache(kind, ok)
	}
	return ok
}

// lookup must be called with mu held
func (s *Store) lookup(kind Kind, key string) (json.RawMessage, bool) {
	now := s.now()
	ttl := s.ttl[kind]

	if kind == KindLiveFeed {
		if s.live == nil || s.live.Key != key || expired(now, s.live.Timestamp, ttl) {
			return nil, false
		}
		return s.live.Data, true
	}

	m, ok := s.entries[kind]
	if !ok {
		return nil, false
	}
	e, ok := m[key]
	if !ok || expired(now, e.Timestamp, ttl) {
		return nil, false
	}
	return e.Data, true
}

func expired(now time.Time, stamp int64, ttl time.Duration) bool {
	return now.UnixMilli()-stamp >= ttl.Milliseconds()
}

// Set stores value under kind/key and schedules persistence
func (s *Store) Set(kind Kind, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", kind, err)
	}

	s.mu.Lock()
	stamp := s.now().UnixMilli()
	if kind == KindLiveFeed {
		s.live = &liveSlot{Key: key, Data: data, Timestamp: stamp}
	} else {
		m, ok := s.entries[kind]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
		m[key] = entry{Data: data, Timestamp: stamp}
	}
	s.mu.Unlock()

	s.schedulePersist()
	return nil
}

// Invalidate drops entries of a kind. Without keys the whole kind is cleared.
// For duelHistory a key also removes every key it prefixes, so invalidating
// an address drops all of its pages.
func (s *Store) Invalidate(kind Kind, keys ...string) {
	s.mu.Lock()
	switch {
	case kind == KindLiveFeed:
		// the slot holds one value; any key resets it
		s.live = nil
	case len(keys) == 0:
		if _, ok := s.entries[kind]; ok {
			s.entries[kind] = map[string]entry{}
		}
	default:
		m := s.entries[kind]
		for _, key := range keys {
			delete(m, key)
			if kind != KindDuelHistory {
				continue
			}
			for k := range m {
				if strings.HasPrefix(k, key) {
					delete(m, k)
				}
			}
		}
	}
	s.mu.Unlock()

	s.schedulePersist()
}

// Len returns the number of entries held for a kind, fresh or not
func (s *Store) Len(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == KindLiveFeed {
		if s.live == nil {
			return 0
		}
		return 1
	}
	return len(s.entries[kind])
}

func (s *Store) schedulePersist() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Run persists the cache a short delay after each burst of mutations until
// ctx is cancelled, then flushes once more.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
			s.persist(flushCtx)
			cancel()
			return
		case <-s.dirty:
		}

		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			flushCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
			s.persist(flushCtx)
			cancel()
			return
		case <-timer.C:
		}
		s.persist(ctx)
	}
}

// persist writes the cache and logs failures
func (s *Store) persist(ctx context.Context) {
	if err := s.Flush(ctx); err != nil {
		s.logger.Warn("failed to persist cache", zap.Error(err))
	}
}
