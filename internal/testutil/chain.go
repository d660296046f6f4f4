package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// ErrNoCallResult is returned by FakeChain.CallContract when no result was registered
var ErrNoCallResult = errors.New("no call result registered")

// FakeChain is an in-memory log filterer, contract caller and head reader.
// It counts queries so tests can assert on cache behavior.
type FakeChain struct {
	mu   sync.Mutex
	head uint64
	logs []types.Log

	filterErr   error
	failTopic   map[common.Hash]error
	headErr     error
	callResults map[string][]byte
	callErr     error
	feeds       []*logFeed

	filterCalls atomic.Int64
	headCalls   atomic.Int64
	callCalls   atomic.Int64
}

type logFeed struct {
	query ethereum.FilterQuery
	sink  chan<- types.Log
	errc  chan error
	quit  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewFakeChain creates a chain whose head is at block head
func NewFakeChain(head uint64) *FakeChain {
	return &FakeChain{
		head:        head,
		failTopic:   make(map[common.Hash]error),
		callResults: make(map[string][]byte),
	}
}

// AddLogs appends logs to the chain history
func (f *FakeChain) AddLogs(logs ...types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logs...)
}

// SetHead moves the chain head
func (f *FakeChain) SetHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

// FailFilters makes every FilterLogs call return err (nil clears it)
func (f *FakeChain) FailFilters(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterErr = err
}

// FailEvent makes FilterLogs fail for queries on the given event signature
func (f *FakeChain) FailEvent(topic0 common.Hash, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTopic[topic0] = err
}

// FailHead makes BlockNumber return err
func (f *FakeChain) FailHead(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headErr = err
}

// SetCallResult registers the raw return data for calls whose input starts with selector
func (f *FakeChain) SetCallResult(selector []byte, output []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callResults[string(selector)] = output
}

// FailCalls makes every CallContract return err
func (f *FakeChain) FailCalls(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callErr = err
}

// FilterCalls returns how many FilterLogs calls were served
func (f *FakeChain) FilterCalls() int { return int(f.filterCalls.Load()) }

// HeadCalls returns how many BlockNumber calls were served
func (f *FakeChain) HeadCalls() int { return int(f.headCalls.Load()) }

// CallCalls returns how many CallContract calls were served
func (f *FakeChain) CallCalls() int { return int(f.callCalls.Load()) }

// Subscriptions returns how many live log subscriptions are open
func (f *FakeChain) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, feed := range f.feeds {
		feed.mu.Lock()
		if !feed.closed {
			n++
		}
		feed.mu.Unlock()
	}
	return n
}

// BlockNumber implements ethereum.BlockNumberReader
func (f *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.headCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

// FilterLogs implements ethereum.LogFilterer
func (f *FakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.filterCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	if len(q.Topics) > 0 {
		for _, topic0 := range q.Topics[0] {
			if err, ok := f.failTopic[topic0]; ok {
				return nil, err
			}
		}
	}

	var out []types.Log
	for _, log := range f.logs {
		if matches(q, log) {
			out = append(out, log)
		}
	}
	return out, nil
}

// SubscribeFilterLogs implements ethereum.LogFilterer
func (f *FakeChain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	feed := &logFeed{
		query: q,
		sink:  ch,
		errc:  make(chan error, 1),
		quit:  make(chan struct{}),
	}
	f.mu.Lock()
	f.feeds = append(f.feeds, feed)
	f.mu.Unlock()
	return feed, nil
}

// Emit delivers a log to every matching live subscription and records it in history
func (f *FakeChain) Emit(log types.Log) {
	f.mu.Lock()
	if !log.Removed {
		f.logs = append(f.logs, log)
	}
	feeds := append([]*logFeed(nil), f.feeds...)
	f.mu.Unlock()

	for _, feed := range feeds {
		if !matches(feed.query, log) {
			continue
		}
		select {
		case feed.sink <- log:
		case <-feed.quit:
		}
	}
}

// DropSubscriptions fails every live subscription with err
func (f *FakeChain) DropSubscriptions(err error) {
	f.mu.Lock()
	feeds := f.feeds
	f.feeds = nil
	f.mu.Unlock()

	for _, feed := range feeds {
		feed.fail(err)
	}
}

// CallContract implements ethereum.ContractCaller
func (f *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.callCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(msg.Data) < 4 {
		return nil, ErrNoCallResult
	}
	out, ok := f.callResults[string(msg.Data[:4])]
	if !ok {
		return nil, ErrNoCallResult
	}
	return out, nil
}

func (s *logFeed) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errc <- err
}

func (s *logFeed) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.quit)
	close(s.errc)
}

func (s *logFeed) Err() <-chan error { return s.errc }

func matches(q ethereum.FilterQuery, log types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, addr := range q.Addresses {
			if addr == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	for i, wanted := range q.Topics {
		if len(wanted) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range wanted {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var _ event.Subscription = (*logFeed)(nil)
