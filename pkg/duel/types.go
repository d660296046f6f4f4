// Package duel holds the derived duel view: entities, fee math and the
// reconstruction of duel state from contract events.
package duel

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Status is a duel's lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Anomaly tags attached to duels whose events do not form a valid lifecycle
const (
	AnomalyCompletedWithoutJoin = "completed_without_join"
)

// Duel is one wagered match reconstructed from contract events
type Duel struct {
	ID      string         `json:"id"`
	Player1 common.Address `json:"player1"`
	Player2 common.Address `json:"player2"`
	// Wager is each player's stake in ETH
	Wager  decimal.Decimal `json:"wager"`
	Status Status          `json:"status"`
	Winner *common.Address `json:"winner"`
	Loser  *common.Address `json:"loser"`
	// NetProfit is the winner's payout after fee; zero until completed
	NetProfit   decimal.Decimal `json:"netProfit"`
	Claimed     bool            `json:"claimed"`
	BlockNumber uint64          `json:"blockNumber"`
	// TransactionHash is the hash of the event that set the current status
	TransactionHash common.Hash     `json:"transactionHash"`
	CurrentPlayer   *common.Address `json:"currentPlayer,omitempty"`
	Anomaly         string          `json:"anomaly,omitempty"`
}

// ProfitFor returns the duel's outcome from one player's perspective:
// the payout for the winner, minus the wager for the loser, zero otherwise.
func (d Duel) ProfitFor(player common.Address) decimal.Decimal {
	if d.Status != StatusCompleted || d.Winner == nil || d.Loser == nil {
		return decimal.Zero
	}
	switch player {
	case *d.Winner:
		return d.NetProfit
	case *d.Loser:
		return d.Wager.Neg()
	default:
		return decimal.Zero
	}
}

// HistoryPage is one page of a wallet's duels, newest first
type HistoryPage struct {
	Duels   []Duel `json:"duels"`
	HasMore bool   `json:"hasMore"`
}

// WalletStats aggregates a wallet's on-chain counters
type WalletStats struct {
	Address      common.Address  `json:"address"`
	TotalDuels   uint64          `json:"totalDuels"`
	Wins         uint64          `json:"wins"`
	Losses       uint64          `json:"losses"`
	TotalWagered decimal.Decimal `json:"totalWagered"`
	TotalETHWon  decimal.Decimal `json:"totalETHWon"`
	TotalProfit  decimal.Decimal `json:"totalProfit"`
	NetProfit    decimal.Decimal `json:"netProfit"`
	// WinRate is a percentage with one decimal, e.g. "30.0"
	WinRate string `json:"winRate"`
}

// EcosystemStats summarizes the platform as a whole
type EcosystemStats struct {
	TotalFees decimal.Decimal `json:"totalFees"`
}

// Source answers the four duel queries. The delegate API and direct chain
// reconstruction both implement it, so either tier yields the same shapes.
type Source interface {
	WalletStats(ctx context.Context, address common.Address) (WalletStats, error)
	DuelHistory(ctx context.Context, address common.Address, limit, page int) (HistoryPage, error)
	LiveFeed(ctx context.Context, limit int) ([]Duel, error)
	DuelTransactions(ctx context.Context, duelID string) ([]Transaction, error)
}
