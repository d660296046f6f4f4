// Package contracts binds the duel and escrow contracts: their ABIs,
// typed event payloads and view calls.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoStats is returned when a player has never been recorded by the battle contract
var ErrNoStats = errors.New("no stats for player")

// NewBattle binds the battle ABI to address
func NewBattle(address common.Address) (*eventlog.Contract, error) {
	return eventlog.NewContract("battle", address, BattleABI)
}

// NewEscrow binds the escrow ABI to address
func NewEscrow(address common.Address) (*eventlog.Contract, error) {
	return eventlog.NewContract("escrow", address, EscrowABI)
}

// PlayerStats is the aggregate counter structure kept by the battle contract (wei amounts)
type PlayerStats struct {
	TotalDuels   *big.Int
	Wins         *big.Int
	TotalWagered *big.Int
	TotalProfit  *big.Int
}

// Caller reads view functions of a bound contract
type Caller struct {
	backend ethereum.ContractCaller
}

// NewCaller creates a view-call helper
func NewCaller(backend ethereum.ContractCaller) *Caller {
	return &Caller{backend: backend}
}

func (c *Caller) call(ctx context.Context, contract *eventlog.Contract, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", contract.Name, method, err)
	}

	to := contract.Address
	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract.Name, method, err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("call %s.%s: empty return data", contract.Name, method)
	}

	values, err := contract.ABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", contract.Name, method, err)
	}
	return values, nil
}

// PlayerStats reads getPlayerStats(player) from the battle contract.
// A player with zero recorded duels yields ErrNoStats.
func (c *Caller) PlayerStats(ctx context.Context, battle *eventlog.Contract, player common.Address) (PlayerStats, error) {
	values, err := c.call(ctx, battle, "getPlayerStats", player)
	if err != nil {
		return PlayerStats{}, err
	}
	if len(values) != 4 {
		return PlayerStats{}, fmt.Errorf("getPlayerStats returned %d values, want 4", len(values))
	}

	nums := make([]*big.Int, 4)
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return PlayerStats{}, fmt.Errorf("getPlayerStats value %d is %T", i, v)
		}
		nums[i] = n
	}

	stats := PlayerStats{
		TotalDuels:   nums[0],
		Wins:         nums[1],
		TotalWagered: nums[2],
		TotalProfit:  nums[3],
	}
	if stats.TotalDuels.Sign() == 0 {
		return stats, ErrNoStats
	}
	return stats, nil
}

// TotalFees reads getTotalFees() from the escrow contract
func (c *Caller) TotalFees(ctx context.Context, escrow *eventlog.Contract) (*big.Int, error) {
	values, err := c.call(ctx, escrow, "getTotalFees")
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getTotalFees returned %d values, want 1", len(values))
	}
	fees, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getTotalFees value is %T", values[0])
	}
	return fees, nil
}
