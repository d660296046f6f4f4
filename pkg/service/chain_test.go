package service_test

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/0xmhha/duelwatch/internal/testutil"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/0xmhha/duelwatch/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChain(t *testing.T, fake *testutil.FakeChain, withEscrow bool) *service.Chain {
	t.Helper()
	cfg := service.ChainConfig{
		Battle:      testutil.Battle(t),
		BlockWindow: 10000,
		Fee:         duel.MustFee(0.05),
		ExplorerURL: "https://abscan.org",
	}
	if withEscrow {
		cfg.Escrow = testutil.Escrow(t)
	}
	c, err := service.NewChain(cfg, fake, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return c
}

func TestPageRange(t *testing.T) {
	tests := []struct {
		name     string
		head     uint64
		page     int
		from, to uint64
		ok       bool
	}{
		{"first page", 50000, 1, 40000, 50000, true},
		{"second page is disjoint", 50000, 2, 30000, 39999, true},
		{"fifth page reaches genesis", 50000, 5, 0, 9999, true},
		{"sixth page is before genesis", 50000, 6, 0, 0, false},
		{"young chain", 500, 1, 0, 500, true},
		{"young chain second page", 500, 2, 0, 0, false},
		{"page zero treated as first", 50000, 0, 40000, 50000, true},
		{"exact boundary", 10000, 2, 0, 0, false},
		{"page far past genesis", 100000, 1844674407370957, 0, 0, false},
		{"largest page", 100000, math.MaxInt, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := service.PageRange(tt.head, 10000, tt.page)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.from, from)
				assert.Equal(t, tt.to, to)
			}
		})
	}
}

func TestNewChain_Validation(t *testing.T) {
	_, err := service.NewChain(service.ChainConfig{BlockWindow: 1}, testutil.NewFakeChain(1), nil)
	assert.Error(t, err)
	_, err = service.NewChain(service.ChainConfig{Battle: testutil.Battle(t)}, testutil.NewFakeChain(1), nil)
	assert.Error(t, err)
}

func TestChain_DuelHistoryPagination(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(1000)
	for i := int64(1); i <= 120; i++ {
		p1, p2 := testutil.Alice, testutil.Bob
		if i%2 == 0 {
			p1, p2 = testutil.Carol, testutil.Alice
		}
		fake.AddLogs(testutil.Initiated(t, battle, i, p1, p2, testutil.Wei("1"), uint64(i)))
	}
	// a duel without Alice
	fake.AddLogs(testutil.Initiated(t, battle, 500, testutil.Bob, testutil.Carol, testutil.Wei("1"), 121))

	c := newChain(t, fake, false)
	page, err := c.DuelHistory(context.Background(), testutil.Alice, 50, 1)
	require.NoError(t, err)

	require.Len(t, page.Duels, 50)
	assert.True(t, page.HasMore)
	assert.Equal(t, "120", page.Duels[0].ID)
	assert.Equal(t, "71", page.Duels[49].ID)
	for _, d := range page.Duels {
		require.NotNil(t, d.CurrentPlayer)
		assert.Equal(t, testutil.Alice, *d.CurrentPlayer)
	}
}

func TestChain_DuelHistoryStatuses(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(100)
	fake.AddLogs(
		testutil.Initiated(t, battle, 1, testutil.Alice, testutil.Bob, testutil.Wei("1"), 10),
		testutil.Joined(t, battle, 1, testutil.Bob, 11),
		testutil.Completed(t, battle, 1, testutil.Alice, testutil.Bob, testutil.Wei("1.9"), testutil.Wei("0.1"), 12),
		testutil.Claimed(t, battle, 1, testutil.Alice, testutil.Wei("1.9"), testutil.Wei("0.1"), 13),

		testutil.Initiated(t, battle, 2, testutil.Alice, testutil.Carol, testutil.Wei("2"), 20),
		testutil.Joined(t, battle, 2, testutil.Carol, 21),
		testutil.Nullified(t, battle, 2, testutil.Alice, testutil.Wei("2"), 22),

		testutil.Initiated(t, battle, 3, testutil.Alice, testutil.Bob, testutil.Wei("0.5"), 30),
		testutil.Joined(t, battle, 3, testutil.Bob, 31),

		testutil.Initiated(t, battle, 4, testutil.Bob, testutil.Alice, testutil.Wei("0.5"), 40),
	)

	c := newChain(t, fake, false)
	page, err := c.DuelHistory(context.Background(), testutil.Alice, 50, 1)
	require.NoError(t, err)
	require.Len(t, page.Duels, 4)
	assert.False(t, page.HasMore)

	byID := map[string]duel.Duel{}
	for _, d := range page.Duels {
		byID[d.ID] = d
	}
	assert.Equal(t, duel.StatusPending, byID["4"].Status)
	assert.Equal(t, duel.StatusActive, byID["3"].Status)
	assert.Equal(t, duel.StatusCancelled, byID["2"].Status)

	done := byID["1"]
	assert.Equal(t, duel.StatusCompleted, done.Status)
	assert.True(t, done.Claimed)
	assert.Equal(t, "1.9", done.NetProfit.String())
	require.NotNil(t, done.Winner)
	assert.Equal(t, testutil.Alice, *done.Winner)
}

func TestChain_DuelHistoryEmpty(t *testing.T) {
	fake := testutil.NewFakeChain(100)
	c := newChain(t, fake, false)

	page, err := c.DuelHistory(context.Background(), testutil.Alice, 50, 1)
	require.NoError(t, err)
	assert.NotNil(t, page.Duels)
	assert.Empty(t, page.Duels)
	assert.False(t, page.HasMore)
	// two initiation queries, no secondary queries
	assert.Equal(t, 2, fake.FilterCalls())
}

func TestChain_DuelHistoryJointFailure(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(100)
	fake.AddLogs(testutil.Initiated(t, battle, 1, testutil.Alice, testutil.Bob, testutil.Wei("1"), 10))
	ev, err := battle.Event("DuelCompleted")
	require.NoError(t, err)
	boom := errors.New("rpc timeout")
	fake.FailEvent(ev.ID, boom)

	c := newChain(t, fake, false)
	page, err := c.DuelHistory(context.Background(), testutil.Alice, 50, 1)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, page.Duels, "no partial reconstruction")
}

func TestChain_LiveFeed(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(20000)
	fake.AddLogs(
		// outside the window
		testutil.Initiated(t, battle, 1, testutil.Alice, testutil.Bob, testutil.Wei("1"), 5000),
		testutil.Initiated(t, battle, 2, testutil.Alice, testutil.Bob, testutil.Wei("1"), 15000),
		testutil.Initiated(t, battle, 3, testutil.Carol, testutil.Bob, testutil.Wei("1"), 16000),
		testutil.Joined(t, battle, 3, testutil.Bob, 16001),
		testutil.Initiated(t, battle, 4, testutil.Carol, testutil.Alice, testutil.Wei("1"), 17000),
	)

	c := newChain(t, fake, false)
	feed, err := c.LiveFeed(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "4", feed[0].ID)
	assert.Equal(t, "3", feed[1].ID)
	assert.Equal(t, duel.StatusActive, feed[1].Status)
	assert.Nil(t, feed[0].CurrentPlayer)
}

func TestChain_DuelTransactions(t *testing.T) {
	battle := testutil.Battle(t)
	escrow := testutil.Escrow(t)
	fake := testutil.NewFakeChain(100)
	fake.AddLogs(
		testutil.Initiated(t, battle, 7, testutil.Alice, testutil.Bob, testutil.Wei("1"), 10),
		testutil.MakeLog(t, escrow, "FundsEscrowed", 10, 5, big.NewInt(7), testutil.Wei("1")),
		testutil.Joined(t, battle, 7, testutil.Bob, 11),
		testutil.Completed(t, battle, 7, testutil.Alice, testutil.Bob, testutil.Wei("1.9"), testutil.Wei("0.1"), 12),
		testutil.MakeLog(t, escrow, "FundsReleased", 12, 6, big.NewInt(7), testutil.Alice, testutil.Wei("1.9"), testutil.Wei("0.1")),
		// another duel
		testutil.Initiated(t, battle, 8, testutil.Alice, testutil.Bob, testutil.Wei("1"), 13),
	)

	c := newChain(t, fake, true)
	txs, err := c.DuelTransactions(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, txs, 5)

	for i := 1; i < len(txs); i++ {
		assert.LessOrEqual(t, txs[i-1].BlockNumber, txs[i].BlockNumber, "oldest first")
	}
	for _, tx := range txs {
		assert.Equal(t, "7", tx.DuelID)
	}
	assert.Equal(t, duel.TxDuelInitiated, txs[0].Type)
	assert.Contains(t, txs[0].ExplorerURL, "https://abscan.org/tx/")
}

func TestChain_DuelTransactionsWithoutEscrow(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(100)
	fake.AddLogs(testutil.Initiated(t, battle, 7, testutil.Alice, testutil.Bob, testutil.Wei("1"), 10))

	c := newChain(t, fake, false)
	txs, err := c.DuelTransactions(context.Background(), "7")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, 5, fake.FilterCalls(), "battle events only")
}

func TestChain_DuelTransactionsInvalidID(t *testing.T) {
	c := newChain(t, testutil.NewFakeChain(100), false)
	for _, id := range []string{"", "abc", "-1", "0x10"} {
		_, err := c.DuelTransactions(context.Background(), id)
		assert.ErrorIs(t, err, service.ErrInvalidDuelID, id)
	}
}

func TestChain_WalletStats(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(100)
	out, err := battle.ABI.Methods["getPlayerStats"].Outputs.Pack(
		big.NewInt(10), big.NewInt(3), testutil.Wei("5"), testutil.Wei("2"))
	require.NoError(t, err)
	fake.SetCallResult(battle.ABI.Methods["getPlayerStats"].ID, out)

	stats, err := newChain(t, fake, false).WalletStats(context.Background(), testutil.Alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), stats.Losses)
	assert.Equal(t, "30.0", stats.WinRate)
	assert.Equal(t, "1.9", stats.NetProfit.String())
}

func TestChain_WalletStatsUnknownWallet(t *testing.T) {
	battle := testutil.Battle(t)
	fake := testutil.NewFakeChain(100)
	zero := big.NewInt(0)
	out, err := battle.ABI.Methods["getPlayerStats"].Outputs.Pack(zero, zero, zero, zero)
	require.NoError(t, err)
	fake.SetCallResult(battle.ABI.Methods["getPlayerStats"].ID, out)

	stats, err := newChain(t, fake, false).WalletStats(context.Background(), testutil.Alice)
	require.NoError(t, err)
	assert.Equal(t, duel.ZeroStats(testutil.Alice), stats)
}

func TestChain_Ecosystem(t *testing.T) {
	escrow := testutil.Escrow(t)
	fake := testutil.NewFakeChain(100)
	out, err := escrow.ABI.Methods["getTotalFees"].Outputs.Pack(testutil.Wei("3.25"))
	require.NoError(t, err)
	fake.SetCallResult(escrow.ABI.Methods["getTotalFees"].ID, out)

	stats, err := newChain(t, fake, true).Ecosystem(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.25", stats.TotalFees.String())

	_, err = newChain(t, fake, false).Ecosystem(context.Background())
	assert.ErrorIs(t, err, service.ErrNoEscrow)
}
