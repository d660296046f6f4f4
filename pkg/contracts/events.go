package contracts

import (
	"fmt"
	"math/big"

	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/ethereum/go-ethereum/common"
)

// Meta locates an event occurrence on chain
type Meta struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Removed     bool
}

// Event is any typed duel or escrow event
type Event interface {
	Name() string
	Duel() *big.Int
	Position() Meta
}

// DuelInitiated opens a duel
type DuelInitiated struct {
	Meta
	DuelID  *big.Int
	Player1 common.Address
	Player2 common.Address
	Wager   *big.Int
}

// DuelJoined moves a duel from pending to active
type DuelJoined struct {
	Meta
	DuelID  *big.Int
	Player2 common.Address
}

// DuelCompleted settles a duel
type DuelCompleted struct {
	Meta
	DuelID        *big.Int
	Winner        common.Address
	Loser         common.Address
	TotalWinnings *big.Int
	Fee           *big.Int
}

// DuelNullified cancels a duel and refunds the stake
type DuelNullified struct {
	Meta
	DuelID       *big.Int
	Player       common.Address
	RefundAmount *big.Int
}

// ProceedsClaimed records the winner withdrawing a payout
type ProceedsClaimed struct {
	Meta
	DuelID *big.Int
	Winner common.Address
	Amount *big.Int
	Fee    *big.Int
}

// FundsEscrowed records a stake locked in escrow
type FundsEscrowed struct {
	Meta
	DuelID *big.Int
	Amount *big.Int
}

// FundsReleased records escrow paying out a winner
type FundsReleased struct {
	Meta
	DuelID *big.Int
	Winner common.Address
	Amount *big.Int
	Fee    *big.Int
}

// FeeCollected records the platform fee leaving escrow
type FeeCollected struct {
	Meta
	DuelID    *big.Int
	FeeAmount *big.Int
}

func (e DuelInitiated) Name() string   { return EventDuelInitiated }
func (e DuelJoined) Name() string      { return EventDuelJoined }
func (e DuelCompleted) Name() string   { return EventDuelCompleted }
func (e DuelNullified) Name() string   { return EventDuelNullified }
func (e ProceedsClaimed) Name() string { return EventProceedsClaimed }
func (e FundsEscrowed) Name() string   { return EventFundsEscrowed }
func (e FundsReleased) Name() string   { return EventFundsReleased }
func (e FeeCollected) Name() string    { return EventFeeCollected }

func (e DuelInitiated) Duel() *big.Int   { return e.DuelID }
func (e DuelJoined) Duel() *big.Int      { return e.DuelID }
func (e DuelCompleted) Duel() *big.Int   { return e.DuelID }
func (e DuelNullified) Duel() *big.Int   { return e.DuelID }
func (e ProceedsClaimed) Duel() *big.Int { return e.DuelID }
func (e FundsEscrowed) Duel() *big.Int   { return e.DuelID }
func (e FundsReleased) Duel() *big.Int   { return e.DuelID }
func (e FeeCollected) Duel() *big.Int    { return e.DuelID }

// Position returns the on-chain location of the event
func (m Meta) Position() Meta { return m }

// argReader keeps the first decoding error so decoders read straight through
type argReader struct {
	rec eventlog.Record
	err error
}

func (a *argReader) bigInt(name string) *big.Int {
	if a.err != nil {
		return nil
	}
	v, err := a.rec.BigInt(name)
	a.err = err
	return v
}

func (a *argReader) address(name string) common.Address {
	if a.err != nil {
		return common.Address{}
	}
	v, err := a.rec.Address(name)
	a.err = err
	return v
}

// Decode converts a decoded log record into its typed event
func Decode(rec eventlog.Record) (Event, error) {
	a := &argReader{rec: rec}
	meta := Meta{
		BlockNumber: rec.BlockNumber,
		TxHash:      rec.TxHash,
		LogIndex:    rec.LogIndex,
		Removed:     rec.Removed,
	}

	var ev Event
	switch rec.Event {
	case EventDuelInitiated:
		ev = DuelInitiated{Meta: meta, DuelID: a.bigInt("duelId"), Player1: a.address("player1"), Player2: a.address("player2"), Wager: a.bigInt("wager")}
	case EventDuelJoined:
		ev = DuelJoined{Meta: meta, DuelID: a.bigInt("duelId"), Player2: a.address("player2")}
	case EventDuelCompleted:
		ev = DuelCompleted{Meta: meta, DuelID: a.bigInt("duelId"), Winner: a.address("winner"), Loser: a.address("loser"), TotalWinnings: a.bigInt("totalWinnings"), Fee: a.bigInt("fee")}
	case EventDuelNullified:
		ev = DuelNullified{Meta: meta, DuelID: a.bigInt("duelId"), Player: a.address("player"), RefundAmount: a.bigInt("refundAmount")}
	case EventProceedsClaimed:
		ev = ProceedsClaimed{Meta: meta, DuelID: a.bigInt("duelId"), Winner: a.address("winner"), Amount: a.bigInt("amount"), Fee: a.bigInt("fee")}
	case EventFundsEscrowed:
		ev = FundsEscrowed{Meta: meta, DuelID: a.bigInt("duelId"), Amount: a.bigInt("amount")}
	case EventFundsReleased:
		ev = FundsReleased{Meta: meta, DuelID: a.bigInt("duelId"), Winner: a.address("winner"), Amount: a.bigInt("amount"), Fee: a.bigInt("fee")}
	case EventFeeCollected:
		ev = FeeCollected{Meta: meta, DuelID: a.bigInt("duelId"), FeeAmount: a.bigInt("feeAmount")}
	default:
		return nil, fmt.Errorf("%w: %s", eventlog.ErrUnknownEvent, rec.Event)
	}
	if a.err != nil {
		return nil, a.err
	}
	return ev, nil
}

// DecodeAs decodes records that are all expected to be of event type T
func DecodeAs[T Event](records []eventlog.Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		ev, err := Decode(rec)
		if err != nil {
			return nil, err
		}
		typed, ok := ev.(T)
		if !ok {
			return nil, fmt.Errorf("record %s at block %d is not the requested event type", rec.Event, rec.BlockNumber)
		}
		out = append(out, typed)
	}
	return out, nil
}
