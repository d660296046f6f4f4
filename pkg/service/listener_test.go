package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xmhha/duelwatch/internal/testutil"
	"github.com/0xmhha/duelwatch/pkg/cache"
	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/0xmhha/duelwatch/pkg/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listenerFixture struct {
	fake     *testutil.FakeChain
	battle   *eventlog.Contract
	store    *cache.Store
	bus      *notify.Bus
	sub      *notify.Subscription
	listener *service.Listener
}

func newListenerFixture(t *testing.T) *listenerFixture {
	t.Helper()
	fake := testutil.NewFakeChain(100)
	battle := testutil.Battle(t)
	store := cache.NewStore(cache.DefaultConfig(), nil, nil)

	bus := notify.NewBus(16, testutil.NewTestLogger(t))
	go bus.Run()
	t.Cleanup(bus.Stop)
	sub := bus.Subscribe("test", nil, 16)

	logs := eventlog.NewClient(fake, testutil.NewTestLogger(t))
	return &listenerFixture{
		fake:     fake,
		battle:   battle,
		store:    store,
		bus:      bus,
		sub:      sub,
		listener: service.NewListener(logs, battle, store, bus, time.Minute, testutil.NewTestLogger(t)),
	}
}

func (f *listenerFixture) receive(t *testing.T) notify.Notification {
	t.Helper()
	select {
	case n := <-f.sub.Channel:
		return n
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
		return nil
	}
}

func (f *listenerFixture) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-f.sub.Channel:
		t.Fatalf("unexpected notification %s", n.Kind())
	case <-time.After(50 * time.Millisecond):
	}
}

// seed fills every cache kind for the given wallets and duel ids
func (f *listenerFixture) seed(t *testing.T, wallets []common.Address, duelIDs ...string) {
	t.Helper()
	require.NoError(t, f.store.Set(cache.KindLiveFeed, cache.LiveFeedKey(20), []int{}))
	for _, w := range wallets {
		require.NoError(t, f.store.Set(cache.KindWalletStats, w.Hex(), map[string]int{}))
		require.NoError(t, f.store.Set(cache.KindDuelHistory, cache.HistoryKey(w.Hex(), 50, 1), []int{}))
		require.NoError(t, f.store.Set(cache.KindDuelHistory, cache.HistoryKey(w.Hex(), 50, 2), []int{}))
	}
	for _, id := range duelIDs {
		require.NoError(t, f.store.Set(cache.KindDuelTransactions, id, []int{}))
	}
}

func (f *listenerFixture) has(kind cache.Kind, key string) bool {
	var v any
	return f.store.Get(kind, key, &v)
}

func TestListener_InvalidationTable(t *testing.T) {
	all := []common.Address{testutil.Alice, testutil.Bob, testutil.Carol}

	tests := []struct {
		name        string
		log         func(t *testing.T, c *eventlog.Contract) eventlog.Record
		kind        notify.Kind
		history     []common.Address
		stats       []common.Address
		transaction bool
	}{
		{
			name: "initiated",
			log: func(t *testing.T, c *eventlog.Contract) eventlog.Record {
				return testutil.Record(t, c, testutil.Initiated(t, c, 1, testutil.Alice, testutil.Bob, testutil.Wei("1"), 50))
			},
			kind:    notify.KindDuelInitiated,
			history: []common.Address{testutil.Alice, testutil.Bob},
		},
		{
			name: "joined",
			log: func(t *testing.T, c *eventlog.Contract) eventlog.Record {
				return testutil.Record(t, c, testutil.Joined(t, c, 1, testutil.Bob, 51))
			},
			kind:        notify.KindDuelJoined,
			history:     all,
			transaction: true,
		},
		{
			name: "completed",
			log: func(t *testing.T, c *eventlog.Contract) eventlog.Record {
				return testutil.Record(t, c, testutil.Completed(t, c, 1, testutil.Alice, testutil.Bob, testutil.Wei("1.9"), testutil.Wei("0.1"), 52))
			},
			kind:        notify.KindDuelCompleted,
			history:     []common.Address{testutil.Alice, testutil.Bob},
			stats:       []common.Address{testutil.Alice, testutil.Bob},
			transaction: true,
		},
		{
			name: "nullified",
			log: func(t *testing.T, c *eventlog.Contract) eventlog.Record {
				return testutil.Record(t, c, testutil.Nullified(t, c, 1, testutil.Alice, testutil.Wei("1"), 53))
			},
			kind:        notify.KindDuelNullified,
			history:     all,
			transaction: true,
		},
		{
			name: "claimed",
			log: func(t *testing.T, c *eventlog.Contract) eventlog.Record {
				return testutil.Record(t, c, testutil.Claimed(t, c, 1, testutil.Alice, testutil.Wei("1.9"), testutil.Wei("0.1"), 54))
			},
			kind:        notify.KindProceedsClaimed,
			history:     []common.Address{testutil.Alice},
			stats:       []common.Address{testutil.Alice},
			transaction: true,
		},
	}

	contains := func(list []common.Address, a common.Address) bool {
		for _, x := range list {
			if x == a {
				return true
			}
		}
		return false
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newListenerFixture(t)
			f.seed(t, all, "1", "2")

			f.listener.Handle(tt.log(t, f.battle))
			assert.Equal(t, tt.kind, f.receive(t).Kind())

			assert.False(t, f.has(cache.KindLiveFeed, cache.LiveFeedKey(20)), "live feed always invalidated")
			for _, w := range all {
				for _, page := range []int{1, 2} {
					assert.Equal(t, !contains(tt.history, w), f.has(cache.KindDuelHistory, cache.HistoryKey(w.Hex(), 50, page)),
						"history of %s page %d", w.Hex(), page)
				}
				assert.Equal(t, !contains(tt.stats, w), f.has(cache.KindWalletStats, w.Hex()), "stats of %s", w.Hex())
			}
			assert.Equal(t, !tt.transaction, f.has(cache.KindDuelTransactions, "1"))
			assert.True(t, f.has(cache.KindDuelTransactions, "2"), "other duels untouched")
		})
	}
}

func TestListener_CounterpartHistoryDropped(t *testing.T) {
	f := newListenerFixture(t)
	f.seed(t, []common.Address{testutil.Alice}, "7")

	// Bob joins and then cancels Alice's duel; neither log names Alice
	f.listener.Handle(testutil.Record(t, f.battle, testutil.Joined(t, f.battle, 7, testutil.Bob, 51)))
	assert.Equal(t, notify.KindDuelJoined, f.receive(t).Kind())
	assert.False(t, f.has(cache.KindDuelHistory, cache.HistoryKey(testutil.Alice.Hex(), 50, 1)))

	f.seed(t, []common.Address{testutil.Alice}, "8")
	f.listener.Handle(testutil.Record(t, f.battle, testutil.Nullified(t, f.battle, 8, testutil.Bob, testutil.Wei("1"), 52)))
	assert.Equal(t, notify.KindDuelNullified, f.receive(t).Kind())
	assert.False(t, f.has(cache.KindDuelHistory, cache.HistoryKey(testutil.Alice.Hex(), 50, 1)))
	assert.False(t, f.has(cache.KindDuelTransactions, "8"))
}

func TestListener_DuplicateDeliveryIgnored(t *testing.T) {
	f := newListenerFixture(t)
	rec := testutil.Record(t, f.battle, testutil.Joined(t, f.battle, 1, testutil.Bob, 51))

	f.listener.Handle(rec)
	assert.Equal(t, notify.KindDuelJoined, f.receive(t).Kind())

	f.seed(t, []common.Address{testutil.Bob}, "1")
	f.listener.Handle(rec)
	f.expectNone(t)
	assert.True(t, f.has(cache.KindDuelTransactions, "1"), "duplicate does not invalidate again")
}

func TestListener_RemovedLogInvalidatesWithoutBroadcast(t *testing.T) {
	f := newListenerFixture(t)
	f.seed(t, []common.Address{testutil.Bob}, "1")

	log := testutil.Joined(t, f.battle, 1, testutil.Bob, 51)
	log.Removed = true
	f.listener.Handle(testutil.Record(t, f.battle, log))

	f.expectNone(t)
	assert.False(t, f.has(cache.KindDuelTransactions, "1"))
	assert.False(t, f.has(cache.KindDuelHistory, cache.HistoryKey(testutil.Bob.Hex(), 50, 1)))
}

func TestListener_RunDeliversLiveEvents(t *testing.T) {
	f := newListenerFixture(t)
	f.seed(t, []common.Address{testutil.Alice, testutil.Bob})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.listener.Run(ctx) }()

	require.Eventually(t, func() bool { return f.fake.Subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	f.fake.Emit(testutil.Initiated(t, f.battle, 9, testutil.Alice, testutil.Bob, testutil.Wei("0.25"), 60))
	n := f.receive(t)
	started, ok := n.(notify.DuelInitiated)
	require.True(t, ok)
	assert.Equal(t, "9", started.DuelID)
	assert.Equal(t, "0.25", started.Wager.String())
	assert.False(t, f.has(cache.KindDuelHistory, cache.HistoryKey(testutil.Alice.Hex(), 50, 1)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_SubscriptionLost(t *testing.T) {
	f := newListenerFixture(t)

	done := make(chan error, 1)
	go func() { done <- f.listener.Run(context.Background()) }()
	require.Eventually(t, func() bool { return f.fake.Subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	boom := errors.New("websocket closed")
	f.fake.DropSubscriptions(boom)

	n := f.receive(t)
	lost, ok := n.(notify.SubscriptionLost)
	require.True(t, ok)
	assert.Contains(t, lost.Reason, "websocket closed")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("listener kept running after losing its subscription")
	}
}
