// Package notify is the typed publish/subscribe bus carrying live duel
// notifications to observers such as the WebSocket hub.
package notify

import (
	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Kind enumerates notification types
type Kind string

const (
	KindDuelInitiated    Kind = "duelInitiated"
	KindDuelJoined       Kind = "duelJoined"
	KindDuelCompleted    Kind = "duelCompleted"
	KindDuelNullified    Kind = "duelNullified"
	KindProceedsClaimed  Kind = "proceedsClaimed"
	KindSubscriptionLost Kind = "subscription_lost"
)

// AllKinds lists every notification kind
var AllKinds = []Kind{
	KindDuelInitiated,
	KindDuelJoined,
	KindDuelCompleted,
	KindDuelNullified,
	KindProceedsClaimed,
	KindSubscriptionLost,
}

// ParseKind validates a kind name received from a client
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Notification is a typed payload delivered on the bus
type Notification interface {
	Kind() Kind
}

// Position locates the event behind a notification
type Position struct {
	BlockNumber     uint64      `json:"blockNumber"`
	TransactionHash common.Hash `json:"transactionHash"`
}

// DuelInitiated announces a new duel
type DuelInitiated struct {
	Position
	DuelID  string          `json:"duelId"`
	Player1 common.Address  `json:"player1"`
	Player2 common.Address  `json:"player2"`
	Wager   decimal.Decimal `json:"wager"`
}

// DuelJoined announces the second player joining
type DuelJoined struct {
	Position
	DuelID  string         `json:"duelId"`
	Player2 common.Address `json:"player2"`
}

// DuelCompleted announces a settled duel
type DuelCompleted struct {
	Position
	DuelID        string          `json:"duelId"`
	Winner        common.Address  `json:"winner"`
	Loser         common.Address  `json:"loser"`
	TotalWinnings decimal.Decimal `json:"totalWinnings"`
	Fee           decimal.Decimal `json:"fee"`
}

// DuelNullified announces a cancelled duel
type DuelNullified struct {
	Position
	DuelID       string          `json:"duelId"`
	Player       common.Address  `json:"player"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
}

// ProceedsClaimed announces a winner claiming a payout
type ProceedsClaimed struct {
	Position
	DuelID string          `json:"duelId"`
	Winner common.Address  `json:"winner"`
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
}

// SubscriptionLost reports that the upstream log subscription ended.
// No further live notifications follow it.
type SubscriptionLost struct {
	Reason string `json:"reason"`
}

func (DuelInitiated) Kind() Kind    { return KindDuelInitiated }
func (DuelJoined) Kind() Kind       { return KindDuelJoined }
func (DuelCompleted) Kind() Kind    { return KindDuelCompleted }
func (DuelNullified) Kind() Kind    { return KindDuelNullified }
func (ProceedsClaimed) Kind() Kind  { return KindProceedsClaimed }
func (SubscriptionLost) Kind() Kind { return KindSubscriptionLost }

// Envelope is the wire form of a notification
type Envelope struct {
	Type Kind         `json:"type"`
	Data Notification `json:"data"`
}

// Wrap builds the wire envelope for n
func Wrap(n Notification) Envelope {
	return Envelope{Type: n.Kind(), Data: n}
}

func position(m contracts.Meta) Position {
	return Position{BlockNumber: m.BlockNumber, TransactionHash: m.TxHash}
}

// FromEvent normalizes a battle contract event. Escrow events have no
// notification form and report false.
func FromEvent(ev contracts.Event) (Notification, bool) {
	switch e := ev.(type) {
	case contracts.DuelInitiated:
		return DuelInitiated{
			Position: position(e.Meta),
			DuelID:   e.DuelID.String(),
			Player1:  e.Player1,
			Player2:  e.Player2,
			Wager:    duel.WeiToETH(e.Wager),
		}, true
	case contracts.DuelJoined:
		return DuelJoined{
			Position: position(e.Meta),
			DuelID:   e.DuelID.String(),
			Player2:  e.Player2,
		}, true
	case contracts.DuelCompleted:
		return DuelCompleted{
			Position:      position(e.Meta),
			DuelID:        e.DuelID.String(),
			Winner:        e.Winner,
			Loser:         e.Loser,
			TotalWinnings: duel.WeiToETH(e.TotalWinnings),
			Fee:           duel.WeiToETH(e.Fee),
		}, true
	case contracts.DuelNullified:
		return DuelNullified{
			Position:     position(e.Meta),
			DuelID:       e.DuelID.String(),
			Player:       e.Player,
			RefundAmount: duel.WeiToETH(e.RefundAmount),
		}, true
	case contracts.ProceedsClaimed:
		return ProceedsClaimed{
			Position: position(e.Meta),
			DuelID:   e.DuelID.String(),
			Winner:   e.Winner,
			Amount:   duel.WeiToETH(e.Amount),
			Fee:      duel.WeiToETH(e.Fee),
		}, true
	default:
		return nil, false
	}
}
