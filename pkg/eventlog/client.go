package eventlog

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Query selects one event kind of one contract within an inclusive block range
type Query struct {
	Contract *Contract
	Event    string
	// Indexed filters indexed arguments by position; nil entries match anything
	Indexed   [][]interface{}
	FromBlock uint64
	ToBlock   uint64
}

// QueryObserver receives the outcome of every log query
type QueryObserver interface {
	ObserveQuery(event string, elapsed time.Duration, err error)
}

// Client fetches and decodes contract event logs.
// It performs no retries: failures propagate to the caller.
type Client struct {
	source   ethereum.LogFilterer
	logger   *zap.Logger
	observer QueryObserver
}

// NewClient creates an event log client over any log filterer
func NewClient(source ethereum.LogFilterer, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{source: source, logger: logger}
}

// SetObserver installs a query observer (metrics)
func (c *Client) SetObserver(o QueryObserver) {
	c.observer = o
}

// QueryEvents returns the decoded occurrences of q.Event in [q.FromBlock, q.ToBlock],
// ordered by block number then log index.
func (c *Client) QueryEvents(ctx context.Context, q Query) ([]Record, error) {
	if q.Contract == nil {
		return nil, fmt.Errorf("query for %s has no contract", q.Event)
	}
	if q.FromBlock > q.ToBlock {
		return nil, nil
	}

	topics, err := q.Contract.Topics(q.Event, q.Indexed)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logs, err := c.source.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: []common.Address{q.Contract.Address},
		Topics:    topics,
	})
	if c.observer != nil {
		c.observer.ObserveQuery(q.Event, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s.%s [%d, %d]: %w", q.Contract.Name, q.Event, q.FromBlock, q.ToBlock, err)
	}

	records := make([]Record, 0, len(logs))
	for _, log := range logs {
		rec, err := q.Contract.Parse(log)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s at block %d: %w", q.Contract.Name, q.Event, log.BlockNumber, err)
		}
		records = append(records, rec)
	}
	SortAscending(records)

	c.logger.Debug("queried events",
		zap.String("contract", q.Contract.Name),
		zap.String("event", q.Event),
		zap.Uint64("from", q.FromBlock),
		zap.Uint64("to", q.ToBlock),
		zap.Int("count", len(records)))

	return records, nil
}

// QueryAll runs independent queries concurrently and awaits them jointly.
// If any query fails the whole call fails; partial results are never returned.
func (c *Client) QueryAll(ctx context.Context, queries ...Query) ([][]Record, error) {
	results := make([][]Record, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			records, err := c.QueryEvents(gctx, q)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
