package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/pkg/cache"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Tier names reported to the observer
const (
	TierCache    = "cache"
	TierDelegate = "delegate"
	TierChain    = "chain"
)

// Operation names reported to the observer
const (
	OpWalletStats      = "wallet_stats"
	OpDuelHistory      = "duel_history"
	OpLiveFeed         = "live_feed"
	OpDuelTransactions = "duel_transactions"
	OpEcosystem        = "ecosystem"
)

// ecosystemKey holds ecosystem totals alongside wallet stats
const ecosystemKey = "ecosystem"

// ChainSource is the direct tier
type ChainSource interface {
	duel.Source
	Ecosystem(ctx context.Context) (duel.EcosystemStats, error)
}

// Delegate is the optional remote tier
type Delegate interface {
	duel.Source
	Probe(ctx context.Context) error
}

// TierObserver receives the tier that answered each operation
type TierObserver interface {
	ObserveTier(op, tier string, err error)
}

// Config holds query service settings
type Config struct {
	// Timeout bounds each tier call
	Timeout      time.Duration
	HistoryLimit int
	FeedLimit    int
	MaxLimit     int
}

// DefaultConfig returns the default service configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      constants.DefaultRPCTimeout,
		HistoryLimit: constants.DefaultHistoryLimit,
		FeedLimit:    constants.DefaultFeedLimit,
		MaxLimit:     constants.DefaultMaxLimit,
	}
}

// Service answers the four duel queries. Each goes cache first, then the
// delegate API when the session probe found it healthy, then the chain, and
// caches what it got, empty results included. Tier failures never surface:
// the caller gets an empty or zero result instead.
type Service struct {
	cfg      Config
	cache    *cache.Store
	chain    ChainSource
	delegate Delegate

	probeOnce  sync.Once
	delegateUp bool

	observer TierObserver
	logger   *zap.Logger
}

var _ duel.Source = (*Service)(nil)

// New creates the query service. delegate may be nil.
func New(cfg Config, store *cache.Store, chain ChainSource, delegate Delegate, logger *zap.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = defaults.FeedLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cfg:      cfg,
		cache:    store,
		chain:    chain,
		delegate: delegate,
		logger:   logger,
	}
}

// SetObserver installs a tier observer
func (s *Service) SetObserver(o TierObserver) {
	s.observer = o
}

func (s *Service) observe(op, tier string, err error) {
	if s.observer != nil {
		s.observer.ObserveTier(op, tier, err)
	}
}

// ProbeDelegate runs the session's one delegate health probe and reports
// whether the delegate tier is in use. Later calls return the first answer.
// The probe ignores cancellation of ctx; the delegate bounds it with its probe timeout.
func (s *Service) ProbeDelegate(ctx context.Context) bool {
	s.probeOnce.Do(func() {
		if s.delegate == nil {
			return
		}
		if err := s.delegate.Probe(context.WithoutCancel(ctx)); err != nil {
			s.logger.Info("delegate API unavailable, querying chain directly", zap.Error(err))
			return
		}
		s.delegateUp = true
		s.logger.Info("delegate API available")
	})
	return s.delegateUp
}

// fetch runs op against the delegate when healthy, falling back to the chain
func fetch[T any](ctx context.Context, s *Service, op string, get func(context.Context, duel.Source) (T, error)) (T, error) {
	if s.ProbeDelegate(ctx) {
		tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		v, err := get(tctx, s.delegate)
		cancel()
		s.observe(op, TierDelegate, err)
		if err == nil {
			return v, nil
		}
		s.logger.Debug("delegate request failed, falling back to chain", zap.String("op", op), zap.Error(err))
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	v, err := get(tctx, s.chain)
	s.observe(op, TierChain, err)
	return v, err
}

func (s *Service) clamp(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > s.cfg.MaxLimit {
		return s.cfg.MaxLimit
	}
	return limit
}

func (s *Service) store(kind cache.Kind, key string, v any) {
	if err := s.cache.Set(kind, key, v); err != nil {
		s.logger.Warn("failed to cache result", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// WalletStats returns a wallet's aggregate stats; failures yield the zero record
func (s *Service) WalletStats(ctx context.Context, address common.Address) (duel.WalletStats, error) {
	key := address.Hex()

	var stats duel.WalletStats
	if s.cache.Get(cache.KindWalletStats, key, &stats) {
		s.observe(OpWalletStats, TierCache, nil)
		return stats, nil
	}

	get := func(ctx context.Context, src duel.Source) (duel.WalletStats, error) {
		return src.WalletStats(ctx, address)
	}
	stats, err := fetch(ctx, s, OpWalletStats, get)
	if err != nil {
		s.logger.Warn("wallet stats lookup failed, returning zero stats",
			zap.String("address", key), zap.Error(err))
		stats = duel.ZeroStats(address)
	}

	s.store(cache.KindWalletStats, key, stats)
	return stats, nil
}

// DuelHistory returns one page of a wallet's duels, newest first
func (s *Service) DuelHistory(ctx context.Context, address common.Address, limit, page int) (duel.HistoryPage, error) {
	limit = s.clamp(limit, s.cfg.HistoryLimit)
	if page < 1 {
		page = 1
	}
	key := cache.HistoryKey(address.Hex(), limit, page)

	var out duel.HistoryPage
	if s.cache.Get(cache.KindDuelHistory, key, &out) {
		s.observe(OpDuelHistory, TierCache, nil)
		return out, nil
	}

	get := func(ctx context.Context, src duel.Source) (duel.HistoryPage, error) {
		return src.DuelHistory(ctx, address, limit, page)
	}
	out, err := fetch(ctx, s, OpDuelHistory, get)
	if err != nil {
		s.logger.Warn("duel history lookup failed, returning empty page",
			zap.String("address", address.Hex()), zap.Int("page", page), zap.Error(err))
		out = duel.HistoryPage{}
	}
	if out.Duels == nil {
		out.Duels = []duel.Duel{}
	}

	s.store(cache.KindDuelHistory, key, out)
	return out, nil
}

// LiveFeed returns the most recent duels across all players
func (s *Service) LiveFeed(ctx context.Context, limit int) ([]duel.Duel, error) {
	limit = s.clamp(limit, s.cfg.FeedLimit)
	key := cache.LiveFeedKey(limit)

	var out []duel.Duel
	if s.cache.Get(cache.KindLiveFeed, key, &out) {
		s.observe(OpLiveFeed, TierCache, nil)
		return out, nil
	}

	get := func(ctx context.Context, src duel.Source) ([]duel.Duel, error) {
		return src.LiveFeed(ctx, limit)
	}
	out, err := fetch(ctx, s, OpLiveFeed, get)
	if err != nil {
		s.logger.Warn("live feed lookup failed, returning empty feed", zap.Error(err))
		return []duel.Duel{}, nil
	}
	if out == nil {
		out = []duel.Duel{}
	}

	s.store(cache.KindLiveFeed, key, out)
	return out, nil
}

// DuelTransactions returns a duel's audit trail, oldest first. Only a
// malformed duel id is reported as an error.
func (s *Service) DuelTransactions(ctx context.Context, duelID string) ([]duel.Transaction, error) {
	id, err := ParseDuelID(duelID)
	if err != nil {
		return []duel.Transaction{}, err
	}
	key := id.String()

	var out []duel.Transaction
	if s.cache.Get(cache.KindDuelTransactions, key, &out) {
		s.observe(OpDuelTransactions, TierCache, nil)
		return out, nil
	}

	get := func(ctx context.Context, src duel.Source) ([]duel.Transaction, error) {
		return src.DuelTransactions(ctx, key)
	}
	out, err = fetch(ctx, s, OpDuelTransactions, get)
	if err != nil {
		s.logger.Warn("duel transactions lookup failed, returning empty list",
			zap.String("duel_id", key), zap.Error(err))
		return []duel.Transaction{}, nil
	}
	if out == nil {
		out = []duel.Transaction{}
	}

	s.store(cache.KindDuelTransactions, key, out)
	return out, nil
}

// Ecosystem returns platform totals. The delegate API has no equivalent, so
// this always reads the chain. ErrNoEscrow is passed through.
func (s *Service) Ecosystem(ctx context.Context) (duel.EcosystemStats, error) {
	var out duel.EcosystemStats
	if s.cache.Get(cache.KindWalletStats, ecosystemKey, &out) {
		s.observe(OpEcosystem, TierCache, nil)
		return out, nil
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	out, err := s.chain.Ecosystem(tctx)
	s.observe(OpEcosystem, TierChain, err)
	if errors.Is(err, ErrNoEscrow) {
		return duel.EcosystemStats{}, err
	}
	if err != nil {
		s.logger.Warn("ecosystem lookup failed", zap.Error(err))
		return duel.EcosystemStats{}, nil
	}

	s.store(cache.KindWalletStats, ecosystemKey, out)
	return out, nil
}
