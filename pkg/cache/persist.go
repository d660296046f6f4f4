package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0xmhha/duelwatch/pkg/storage"
	"go.uber.org/zap"
)

// errNullKind marks a persisted kind holding a JSON null
var errNullKind = errors.New("persisted kind is null")

// PersistKey returns the storage key holding one kind
func (s *Store) PersistKey(kind Kind) []byte {
	return []byte(s.namespace + ":" + string(kind))
}

// snapshot encodes every kind; must be called with mu held
func (s *Store) snapshot() (map[Kind][]byte, error) {
	out := make(map[Kind][]byte, len(Kinds))
	for _, kind := range Kinds {
		var (
			data []byte
			err  error
		)
		if kind == KindLiveFeed {
			if s.live == nil {
				continue
			}
			data, err = json.Marshal(s.live)
		} else {
			data, err = json.Marshal(s.entries[kind])
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		out[kind] = data
	}
	return out, nil
}

// Flush synchronously writes the whole cache to storage
func (s *Store) Flush(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	s.mu.Lock()
	snap, err := s.snapshot()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, kind := range Kinds {
		key := s.PersistKey(kind)
		data, ok := snap[kind]
		if !ok {
			if err := s.kv.Delete(ctx, key); err != nil {
				return fmt.Errorf("failed to clear %s: %w", kind, err)
			}
			continue
		}
		if err := s.kv.Put(ctx, key, data); err != nil {
			return fmt.Errorf("failed to write %s: %w", kind, err)
		}
	}
	return nil
}

// Load restores persisted state. If any kind fails to decode, all four
// persisted kinds are wiped and the cache starts empty.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	entries := newEntryMaps()
	var live *liveSlot

	for _, kind := range Kinds {
		raw, err := s.kv.Get(ctx, s.PersistKey(kind))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", kind, err)
		}

		if kind == KindLiveFeed {
			var slot *liveSlot
			if err := json.Unmarshal(raw, &slot); err != nil {
				s.wipe(ctx, kind, err)
				return nil
			}
			if slot == nil {
				s.wipe(ctx, kind, errNullKind)
				return nil
			}
			live = slot
			continue
		}

		var m map[string]entry
		if err := json.Unmarshal(raw, &m); err != nil {
			s.wipe(ctx, kind, err)
			return nil
		}
		if m == nil {
			s.wipe(ctx, kind, errNullKind)
			return nil
		}
		entries[kind] = m
	}

	s.mu.Lock()
	s.entries = entries
	s.live = live
	s.mu.Unlock()

	s.logger.Info("cache loaded",
		zap.Int("walletStats", len(entries[KindWalletStats])),
		zap.Int("duelHistory", len(entries[KindDuelHistory])),
		zap.Int("duelTransactions", len(entries[KindDuelTransactions])),
		zap.Bool("liveFeed", live != nil),
	)
	return nil
}

// wipe deletes all persisted kinds after a corrupt read
func (s *Store) wipe(ctx context.Context, bad Kind, cause error) {
	s.logger.Warn("persisted cache is corrupt, clearing",
		zap.String("kind", string(bad)),
		zap.Error(cause),
	)

	s.mu.Lock()
	s.entries = newEntryMaps()
	s.live = nil
	s.mu.Unlock()

	for _, kind := range Kinds {
		if err := s.kv.Delete(ctx, s.PersistKey(kind)); err != nil {
			s.logger.Warn("failed to clear persisted cache",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}
}
