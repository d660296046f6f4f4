package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

// ErrSubscriptionClosed is reported when the upstream log subscription ends without an error
var ErrSubscriptionClosed = errors.New("log subscription closed by upstream")

const rawLogBuffer = 128

// Subscribe streams decoded logs of the named events to sink.
// The returned subscription reports upstream failure on Err(); there is no reconnect.
// Logs that fail to decode are logged and skipped.
func (c *Client) Subscribe(ctx context.Context, contract *Contract, events []string, sink chan<- Record) (ethereum.Subscription, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to subscribe to")
	}

	ids := make([]common.Hash, 0, len(events))
	for _, name := range events {
		ev, err := contract.Event(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, ev.ID)
	}

	raw := make(chan types.Log, rawLogBuffer)
	upstream, err := c.source.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{contract.Address},
		Topics:    [][]common.Hash{ids},
	}, raw)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s events: %w", contract.Name, err)
	}

	c.logger.Info("subscribed to contract events",
		zap.String("contract", contract.Name),
		zap.Strings("events", events))

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer upstream.Unsubscribe()
		for {
			select {
			case log := <-raw:
				rec, err := contract.Parse(log)
				if err != nil {
					c.logger.Warn("dropping undecodable log",
						zap.String("contract", contract.Name),
						zap.String("tx", log.TxHash.Hex()),
						zap.Error(err))
					continue
				}
				select {
				case sink <- rec:
				case <-quit:
					return nil
				case <-ctx.Done():
					return nil
				}
			case err := <-upstream.Err():
				if err == nil {
					err = ErrSubscriptionClosed
				}
				return err
			case <-quit:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	}), nil
}
