package service

import (
	"context"
	"fmt"
	"time"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/pkg/cache"
	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

const listenerBuffer = 64

// Listener follows live battle events, invalidates the cache entries each
// event can change and publishes a notification for it. When the upstream
// subscription ends it publishes SubscriptionLost and stops; it does not
// reconnect.
type Listener struct {
	logs   *eventlog.Client
	battle *eventlog.Contract
	cache  *cache.Store
	bus    *notify.Bus

	// seen remembers delivered logs by tx hash and log index
	seen *ttlcache.Cache[string, time.Time]

	logger *zap.Logger
}

// NewListener creates a live listener
func NewListener(logs *eventlog.Client, battle *eventlog.Contract, store *cache.Store, bus *notify.Bus, dedupTTL time.Duration, logger *zap.Logger) *Listener {
	if dedupTTL <= 0 {
		dedupTTL = constants.DefaultDedupTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		logs:   logs,
		battle: battle,
		cache:  store,
		bus:    bus,
		seen: ttlcache.New(
			ttlcache.WithTTL[string, time.Time](dedupTTL),
		),
		logger: logger,
	}
}

// Run subscribes and processes events until ctx is cancelled (nil) or the
// subscription fails (the upstream error).
func (l *Listener) Run(ctx context.Context) error {
	go l.seen.Start()
	defer l.seen.Stop()

	sink := make(chan eventlog.Record, listenerBuffer)
	sub, err := l.logs.Subscribe(ctx, l.battle, contracts.BattleEvents, sink)
	if err != nil {
		l.lost(err)
		return fmt.Errorf("failed to subscribe to battle events: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case rec := <-sink:
			l.Handle(rec)
		case err := <-sub.Err():
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = eventlog.ErrSubscriptionClosed
			}
			l.lost(err)
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Listener) lost(err error) {
	l.logger.Error("live subscription lost", zap.Error(err))
	l.bus.Publish(notify.SubscriptionLost{Reason: err.Error()})
}

// Handle applies one live record. Duplicate deliveries are ignored; removed
// (reorged) logs invalidate but are not published.
func (l *Listener) Handle(rec eventlog.Record) {
	key := rec.Key()
	if rec.Removed {
		key += ":removed"
	}
	if l.seen.Has(key) {
		l.logger.Debug("skipping duplicate log", zap.String("key", key))
		return
	}
	l.seen.Set(key, time.Now(), ttlcache.DefaultTTL)

	ev, err := contracts.Decode(rec)
	if err != nil {
		l.logger.Warn("failed to decode live event", zap.String("event", rec.Event), zap.Error(err))
		return
	}

	l.invalidate(ev)

	if rec.Removed {
		l.logger.Info("log removed by reorg",
			zap.String("event", rec.Event),
			zap.Uint64("block", rec.BlockNumber),
			zap.String("tx", rec.TxHash.Hex()))
		return
	}

	n, ok := notify.FromEvent(ev)
	if !ok {
		return
	}
	if !l.bus.Publish(n) {
		l.logger.Warn("failed to publish notification", zap.String("kind", string(n.Kind())))
	}
}

func (l *Listener) invalidate(ev contracts.Event) {
	l.cache.Invalidate(cache.KindLiveFeed)

	history := func(addrs ...common.Address) {
		keys := make([]string, 0, len(addrs))
		for _, a := range addrs {
			keys = append(keys, a.Hex())
		}
		l.cache.Invalidate(cache.KindDuelHistory, keys...)
	}
	stats := func(addrs ...common.Address) {
		keys := make([]string, 0, len(addrs))
		for _, a := range addrs {
			keys = append(keys, a.Hex())
		}
		// fees moved too
		keys = append(keys, ecosystemKey)
		l.cache.Invalidate(cache.KindWalletStats, keys...)
	}
	transactions := func(id fmt.Stringer) {
		l.cache.Invalidate(cache.KindDuelTransactions, id.String())
	}

	switch e := ev.(type) {
	case contracts.DuelInitiated:
		history(e.Player1, e.Player2)
	case contracts.DuelJoined, contracts.DuelNullified:
		// the log names one participant; the other's pages show this duel too
		l.cache.Invalidate(cache.KindDuelHistory)
		transactions(e.Duel())
	case contracts.DuelCompleted:
		history(e.Winner, e.Loser)
		stats(e.Winner, e.Loser)
		transactions(e.DuelID)
	case contracts.ProceedsClaimed:
		history(e.Winner)
		stats(e.Winner)
		transactions(e.DuelID)
	}
}
