package duel

import (
	"math/big"

	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ZeroStats is the explicit record for a wallet with no recorded duels
func ZeroStats(address common.Address) WalletStats {
	return WalletStats{
		Address:      address,
		TotalWagered: decimal.Zero,
		TotalETHWon:  decimal.Zero,
		TotalProfit:  decimal.Zero,
		NetProfit:    decimal.Zero,
		WinRate:      WinRate(0, 0),
	}
}

// WinRate formats wins/total as a percentage with one decimal; "0.0" when total is zero
func WinRate(wins, total uint64) string {
	if total == 0 {
		return "0.0"
	}
	rate := decimal.NewFromBigInt(new(big.Int).SetUint64(wins), 0).
		Mul(hundred).
		Div(decimal.NewFromBigInt(new(big.Int).SetUint64(total), 0))
	return rate.StringFixed(1)
}

func counter(n *big.Int) uint64 {
	if n == nil || n.Sign() < 0 || !n.IsUint64() {
		return 0
	}
	return n.Uint64()
}

// StatsFromCounters derives wallet stats from the contract's aggregate counters
func StatsFromCounters(address common.Address, c contracts.PlayerStats, fee Fee) WalletStats {
	total := counter(c.TotalDuels)
	wins := counter(c.Wins)
	if wins > total {
		wins = total
	}
	profit := WeiToETH(c.TotalProfit)

	return WalletStats{
		Address:      address,
		TotalDuels:   total,
		Wins:         wins,
		Losses:       total - wins,
		TotalWagered: WeiToETH(c.TotalWagered),
		TotalETHWon:  profit,
		TotalProfit:  profit,
		NetProfit:    fee.Net(profit),
		WinRate:      WinRate(wins, total),
	}
}
