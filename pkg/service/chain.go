// Package service answers duel queries: the chain tier reconstructs state
// from contract events, the query service layers caching and the delegate
// API over it, and the listener keeps the cache current from live logs.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrInvalidDuelID is returned for a duel id that is not a non-negative integer
	ErrInvalidDuelID = errors.New("invalid duel id")

	// ErrNoEscrow is returned for escrow reads when no escrow contract is configured
	ErrNoEscrow = errors.New("escrow contract not configured")
)

// Backend is the chain access the chain tier needs
type Backend interface {
	ethereum.LogFilterer
	ethereum.ContractCaller
	ethereum.BlockNumberReader
}

// ChainConfig configures the chain tier
type ChainConfig struct {
	Battle *eventlog.Contract
	// Escrow is optional
	Escrow      *eventlog.Contract
	BlockWindow uint64
	Fee         duel.Fee
	ExplorerURL string
}

// Chain is the direct tier: it reconstructs every answer from event logs
// and view calls. It performs no caching.
type Chain struct {
	logs   *eventlog.Client
	caller *contracts.Caller
	head   ethereum.BlockNumberReader

	battle *eventlog.Contract
	escrow *eventlog.Contract
	window uint64

	recon *duel.Reconstructor
	txs   *duel.TransactionBuilder

	logger *zap.Logger
}

var _ duel.Source = (*Chain)(nil)

// NewChain creates the chain tier over backend
func NewChain(cfg ChainConfig, backend Backend, logger *zap.Logger) (*Chain, error) {
	if cfg.Battle == nil {
		return nil, errors.New("battle contract is required")
	}
	if cfg.BlockWindow == 0 {
		return nil, errors.New("block window must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Chain{
		logs:   eventlog.NewClient(backend, logger),
		caller: contracts.NewCaller(backend),
		head:   backend,
		battle: cfg.Battle,
		escrow: cfg.Escrow,
		window: cfg.BlockWindow,
		recon:  duel.NewReconstructor(cfg.Fee, logger),
		txs:    duel.NewTransactionBuilder(cfg.ExplorerURL),
		logger: logger,
	}, nil
}

// EventLog exposes the underlying event log client
func (c *Chain) EventLog() *eventlog.Client {
	return c.logs
}

// Battle returns the bound battle contract
func (c *Chain) Battle() *eventlog.Contract {
	return c.battle
}

// Fee returns the fee used for reconstruction
func (c *Chain) Fee() duel.Fee {
	return c.recon.Fee()
}

// PageRange returns the inclusive block range of a history page. Page 1 ends
// at head; each later page is the preceding, non-overlapping window of the
// same width. ok is false when the page lies entirely before genesis.
func PageRange(head, window uint64, page int) (from, to uint64, ok bool) {
	if page < 1 {
		page = 1
	}
	n := uint64(page)
	if window == 0 || n-1 > head/window {
		return 0, 0, false
	}

	to = head - (n-1)*window
	if n > 1 {
		if to == 0 {
			return 0, 0, false
		}
		to--
	}

	if n <= head/window {
		from = head - n*window
	}
	return from, to, true
}

// WalletStats reads the battle contract's counters. A wallet the contract
// has never seen yields the zero record.
func (c *Chain) WalletStats(ctx context.Context, address common.Address) (duel.WalletStats, error) {
	counters, err := c.caller.PlayerStats(ctx, c.battle, address)
	if errors.Is(err, contracts.ErrNoStats) {
		return duel.ZeroStats(address), nil
	}
	if err != nil {
		return duel.WalletStats{}, err
	}
	return duel.StatsFromCounters(address, counters, c.recon.Fee()), nil
}

// DuelHistory reconstructs one page of duels the address took part in
func (c *Chain) DuelHistory(ctx context.Context, address common.Address, limit, page int) (duel.HistoryPage, error) {
	empty := duel.HistoryPage{Duels: []duel.Duel{}}

	head, err := c.head.BlockNumber(ctx)
	if err != nil {
		return empty, fmt.Errorf("failed to read head: %w", err)
	}
	from, to, ok := PageRange(head, c.window, page)
	if !ok {
		return empty, nil
	}

	results, err := c.logs.QueryAll(ctx,
		eventlog.Query{Contract: c.battle, Event: contracts.EventDuelInitiated,
			Indexed: [][]interface{}{nil, {address}}, FromBlock: from, ToBlock: to},
		eventlog.Query{Contract: c.battle, Event: contracts.EventDuelInitiated,
			Indexed: [][]interface{}{nil, nil, {address}}, FromBlock: from, ToBlock: to},
	)
	if err != nil {
		return empty, err
	}

	initiated, err := contracts.DecodeAs[contracts.DuelInitiated](append(results[0], results[1]...))
	if err != nil {
		return empty, err
	}

	selected, hasMore := duel.SelectNewest(initiated, limit)
	if len(selected) == 0 {
		return empty, nil
	}

	related, err := c.related(ctx, selected, from, head)
	if err != nil {
		return empty, err
	}

	viewer := address
	return duel.HistoryPage{
		Duels:   c.recon.Reconstruct(selected, related, &viewer),
		HasMore: hasMore,
	}, nil
}

// LiveFeed reconstructs the newest duels across all players in the most
// recent window
func (c *Chain) LiveFeed(ctx context.Context, limit int) ([]duel.Duel, error) {
	head, err := c.head.BlockNumber(ctx)
	if err != nil {
		return []duel.Duel{}, fmt.Errorf("failed to read head: %w", err)
	}
	from, _, _ := PageRange(head, c.window, 1)

	records, err := c.logs.QueryEvents(ctx, eventlog.Query{
		Contract: c.battle, Event: contracts.EventDuelInitiated, FromBlock: from, ToBlock: head,
	})
	if err != nil {
		return []duel.Duel{}, err
	}
	initiated, err := contracts.DecodeAs[contracts.DuelInitiated](records)
	if err != nil {
		return []duel.Duel{}, err
	}

	selected, _ := duel.SelectNewest(initiated, limit)
	if len(selected) == 0 {
		return []duel.Duel{}, nil
	}

	related, err := c.related(ctx, selected, from, head)
	if err != nil {
		return []duel.Duel{}, err
	}
	return c.recon.Reconstruct(selected, related, nil), nil
}

// related fetches the secondary events of the selected duels jointly
func (c *Chain) related(ctx context.Context, selected []contracts.DuelInitiated, from, to uint64) (duel.Related, error) {
	ids := make([]interface{}, 0, len(selected))
	for _, ev := range selected {
		ids = append(ids, ev.DuelID)
	}
	byID := [][]interface{}{ids}

	results, err := c.logs.QueryAll(ctx,
		eventlog.Query{Contract: c.battle, Event: contracts.EventDuelJoined, Indexed: byID, FromBlock: from, ToBlock: to},
		eventlog.Query{Contract: c.battle, Event: contracts.EventDuelCompleted, Indexed: byID, FromBlock: from, ToBlock: to},
		eventlog.Query{Contract: c.battle, Event: contracts.EventDuelNullified, Indexed: byID, FromBlock: from, ToBlock: to},
		eventlog.Query{Contract: c.battle, Event: contracts.EventProceedsClaimed, Indexed: byID, FromBlock: from, ToBlock: to},
	)
	if err != nil {
		return duel.Related{}, err
	}

	var related duel.Related
	if related.Joined, err = contracts.DecodeAs[contracts.DuelJoined](results[0]); err != nil {
		return duel.Related{}, err
	}
	if related.Completed, err = contracts.DecodeAs[contracts.DuelCompleted](results[1]); err != nil {
		return duel.Related{}, err
	}
	if related.Nullified, err = contracts.DecodeAs[contracts.DuelNullified](results[2]); err != nil {
		return duel.Related{}, err
	}
	if related.Claimed, err = contracts.DecodeAs[contracts.ProceedsClaimed](results[3]); err != nil {
		return duel.Related{}, err
	}
	return related, nil
}

// ParseDuelID parses a decimal duel id
func ParseDuelID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDuelID, s)
	}
	return id, nil
}

// DuelTransactions returns every event of one duel, oldest first, including
// escrow movements when an escrow contract is configured
func (c *Chain) DuelTransactions(ctx context.Context, duelID string) ([]duel.Transaction, error) {
	id, err := ParseDuelID(duelID)
	if err != nil {
		return []duel.Transaction{}, err
	}

	head, err := c.head.BlockNumber(ctx)
	if err != nil {
		return []duel.Transaction{}, fmt.Errorf("failed to read head: %w", err)
	}

	byID := [][]interface{}{{id}}
	var queries []eventlog.Query
	for _, name := range contracts.BattleEvents {
		queries = append(queries, eventlog.Query{Contract: c.battle, Event: name, Indexed: byID, FromBlock: 0, ToBlock: head})
	}
	if c.escrow != nil {
		for _, name := range contracts.EscrowEvents {
			queries = append(queries, eventlog.Query{Contract: c.escrow, Event: name, Indexed: byID, FromBlock: 0, ToBlock: head})
		}
	}

	results, err := c.logs.QueryAll(ctx, queries...)
	if err != nil {
		return []duel.Transaction{}, err
	}

	var events []contracts.Event
	for _, records := range results {
		for _, rec := range records {
			ev, err := contracts.Decode(rec)
			if err != nil {
				return []duel.Transaction{}, err
			}
			events = append(events, ev)
		}
	}
	return c.txs.Build(events), nil
}

// Ecosystem reads platform-wide totals from the escrow contract
func (c *Chain) Ecosystem(ctx context.Context) (duel.EcosystemStats, error) {
	if c.escrow == nil {
		return duel.EcosystemStats{}, ErrNoEscrow
	}
	fees, err := c.caller.TotalFees(ctx, c.escrow)
	if err != nil {
		return duel.EcosystemStats{}, err
	}
	return duel.EcosystemStats{TotalFees: duel.WeiToETH(fees)}, nil
}
