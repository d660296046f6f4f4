// Package testutil provides chain doubles and event fixtures shared by tests.
package testutil

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Fixed addresses used across tests
var (
	BattleAddress = common.HexToAddress("0x5f8abf7f164fbed5c51f696ddf3c2c17bcbc8fbb")
	EscrowAddress = common.HexToAddress("0x682a307e2274c24f305d6a81682a0b5eb7612a7e")

	Alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	Bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	Carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// Battle returns the battle contract handle bound to BattleAddress
func Battle(t testing.TB) *eventlog.Contract {
	t.Helper()
	c, err := contracts.NewBattle(BattleAddress)
	if err != nil {
		t.Fatalf("bind battle: %v", err)
	}
	return c
}

// Escrow returns the escrow contract handle bound to EscrowAddress
func Escrow(t testing.TB) *eventlog.Contract {
	t.Helper()
	c, err := contracts.NewEscrow(EscrowAddress)
	if err != nil {
		t.Fatalf("bind escrow: %v", err)
	}
	return c
}

// Wei converts a decimal ETH string to wei
func Wei(eth string) *big.Int {
	return decimal.RequireFromString(eth).Shift(18).BigInt()
}

// MakeLog encodes an event of contract c. args follow the ABI input order.
func MakeLog(t testing.TB, c *eventlog.Contract, event string, block uint64, logIndex uint, args ...interface{}) types.Log {
	t.Helper()

	ev, err := c.Event(event)
	if err != nil {
		t.Fatalf("make log: %v", err)
	}
	if len(args) != len(ev.Inputs) {
		t.Fatalf("make log %s: got %d args, want %d", event, len(args), len(ev.Inputs))
	}

	topics := []common.Hash{ev.ID}
	var data []interface{}
	for i, input := range ev.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		topic, err := abi.MakeTopics([]interface{}{args[i]})
		if err != nil {
			t.Fatalf("make log %s topic %s: %v", event, input.Name, err)
		}
		topics = append(topics, topic[0][0])
	}

	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		t.Fatalf("make log %s data: %v", event, err)
	}

	return types.Log{
		Address:     c.Address,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		TxHash:      TxHash(event, block, logIndex),
		Index:       logIndex,
	}
}

// TxHash derives a deterministic transaction hash for a fixture log
func TxHash(event string, block uint64, logIndex uint) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d/%d", event, block, logIndex)))
}

// Initiated builds a DuelInitiated log
func Initiated(t testing.TB, c *eventlog.Contract, id int64, p1, p2 common.Address, wager *big.Int, block uint64) types.Log {
	return MakeLog(t, c, contracts.EventDuelInitiated, block, 0, big.NewInt(id), p1, p2, wager)
}

// Joined builds a DuelJoined log
func Joined(t testing.TB, c *eventlog.Contract, id int64, p2 common.Address, block uint64) types.Log {
	return MakeLog(t, c, contracts.EventDuelJoined, block, 1, big.NewInt(id), p2)
}

// Completed builds a DuelCompleted log
func Completed(t testing.TB, c *eventlog.Contract, id int64, winner, loser common.Address, winnings, fee *big.Int, block uint64) types.Log {
	return MakeLog(t, c, contracts.EventDuelCompleted, block, 2, big.NewInt(id), winner, loser, winnings, fee)
}

// Nullified builds a DuelNullified log
func Nullified(t testing.TB, c *eventlog.Contract, id int64, player common.Address, refund *big.Int, block uint64) types.Log {
	return MakeLog(t, c, contracts.EventDuelNullified, block, 3, big.NewInt(id), player, refund)
}

// Claimed builds a ProceedsClaimed log
func Claimed(t testing.TB, c *eventlog.Contract, id int64, winner common.Address, amount, fee *big.Int, block uint64) types.Log {
	return MakeLog(t, c, contracts.EventProceedsClaimed, block, 4, big.NewInt(id), winner, amount, fee)
}

// Record decodes a fixture log with contract c
func Record(t testing.TB, c *eventlog.Contract, log types.Log) eventlog.Record {
	t.Helper()
	rec, err := c.Parse(log)
	if err != nil {
		t.Fatalf("parse fixture log: %v", err)
	}
	return rec
}
