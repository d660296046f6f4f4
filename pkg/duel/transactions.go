package duel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TxType tags a transaction record with the event that produced it
type TxType string

const (
	TxDuelInitiated   TxType = "duel_initiated"
	TxDuelJoined      TxType = "duel_joined"
	TxDuelCompleted   TxType = "duel_completed"
	TxDuelNullified   TxType = "duel_nullified"
	TxProceedsClaimed TxType = "proceeds_claimed"
	TxFundsEscrowed   TxType = "funds_escrowed"
	TxFundsReleased   TxType = "funds_released"
	TxFeeCollected    TxType = "fee_collected"
)

var txLabels = map[TxType]string{
	TxDuelInitiated:   "Duel Initiated",
	TxDuelJoined:      "Duel Joined",
	TxDuelCompleted:   "Duel Completed",
	TxDuelNullified:   "Duel Nullified",
	TxProceedsClaimed: "Proceeds Claimed",
	TxFundsEscrowed:   "Funds Escrowed",
	TxFundsReleased:   "Funds Released",
	TxFeeCollected:    "Fee Collected",
}

// Label returns the human-readable name of the type
func (t TxType) Label() string {
	return txLabels[t]
}

// Transaction is one event occurrence in a duel's audit trail
type Transaction struct {
	Type        TxType      `json:"type"`
	Label       string      `json:"label"`
	DuelID      string      `json:"duelId"`
	BlockNumber uint64      `json:"blockNumber"`
	LogIndex    uint        `json:"logIndex"`
	Hash        common.Hash `json:"hash"`

	Player1       *common.Address  `json:"player1,omitempty"`
	Player2       *common.Address  `json:"player2,omitempty"`
	Winner        *common.Address  `json:"winner,omitempty"`
	Loser         *common.Address  `json:"loser,omitempty"`
	Player        *common.Address  `json:"player,omitempty"`
	Wager         *decimal.Decimal `json:"wager,omitempty"`
	TotalWinnings *decimal.Decimal `json:"totalWinnings,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	RefundAmount  *decimal.Decimal `json:"refundAmount,omitempty"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`

	Description string `json:"description"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

func addr(a common.Address) *common.Address { return &a }

func eth(d decimal.Decimal) *decimal.Decimal { return &d }

// TransactionBuilder converts typed events into transaction records
type TransactionBuilder struct {
	explorerURL string
}

// NewTransactionBuilder creates a builder; an empty explorerURL omits links
func NewTransactionBuilder(explorerURL string) *TransactionBuilder {
	return &TransactionBuilder{explorerURL: strings.TrimRight(explorerURL, "/")}
}

// TxURL links a transaction hash on the block explorer
func (b *TransactionBuilder) TxURL(hash common.Hash) string {
	if b.explorerURL == "" {
		return ""
	}
	return b.explorerURL + "/tx/" + hash.Hex()
}

// Build converts events into records ordered oldest first
func (b *TransactionBuilder) Build(events []contracts.Event) []Transaction {
	txs := make([]Transaction, 0, len(events))
	for _, ev := range events {
		tx, ok := b.record(ev)
		if !ok {
			continue
		}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].BlockNumber != txs[j].BlockNumber {
			return txs[i].BlockNumber < txs[j].BlockNumber
		}
		return txs[i].LogIndex < txs[j].LogIndex
	})
	return txs
}

func (b *TransactionBuilder) record(ev contracts.Event) (Transaction, bool) {
	pos := ev.Position()
	tx := Transaction{
		DuelID:      ev.Duel().String(),
		BlockNumber: pos.BlockNumber,
		LogIndex:    pos.LogIndex,
		Hash:        pos.TxHash,
		ExplorerURL: b.TxURL(pos.TxHash),
	}

	switch e := ev.(type) {
	case contracts.DuelInitiated:
		wager := WeiToETH(e.Wager)
		tx.Type = TxDuelInitiated
		tx.Player1, tx.Player2, tx.Wager = addr(e.Player1), addr(e.Player2), eth(wager)
		tx.Description = fmt.Sprintf("Duel #%s initiated by %s against %s for %s ETH",
			tx.DuelID, FormatAddress(e.Player1), FormatAddress(e.Player2), wager)
	case contracts.DuelJoined:
		tx.Type = TxDuelJoined
		tx.Player2 = addr(e.Player2)
		tx.Description = fmt.Sprintf("%s joined duel #%s", FormatAddress(e.Player2), tx.DuelID)
	case contracts.DuelCompleted:
		winnings, fee := WeiToETH(e.TotalWinnings), WeiToETH(e.Fee)
		tx.Type = TxDuelCompleted
		tx.Winner, tx.Loser = addr(e.Winner), addr(e.Loser)
		tx.TotalWinnings, tx.Fee = eth(winnings), eth(fee)
		tx.Description = fmt.Sprintf("%s won duel #%s against %s, total winnings %s ETH (fee %s ETH)",
			FormatAddress(e.Winner), tx.DuelID, FormatAddress(e.Loser), winnings, fee)
	case contracts.DuelNullified:
		refund := WeiToETH(e.RefundAmount)
		tx.Type = TxDuelNullified
		tx.Player, tx.RefundAmount = addr(e.Player), eth(refund)
		tx.Description = fmt.Sprintf("Duel #%s nullified by %s, %s ETH refunded",
			tx.DuelID, FormatAddress(e.Player), refund)
	case contracts.ProceedsClaimed:
		amount, fee := WeiToETH(e.Amount), WeiToETH(e.Fee)
		tx.Type = TxProceedsClaimed
		tx.Winner, tx.Amount, tx.Fee = addr(e.Winner), eth(amount), eth(fee)
		tx.Description = fmt.Sprintf("%s claimed %s ETH from duel #%s (fee %s ETH)",
			FormatAddress(e.Winner), amount, tx.DuelID, fee)
	case contracts.FundsEscrowed:
		amount := WeiToETH(e.Amount)
		tx.Type = TxFundsEscrowed
		tx.Amount = eth(amount)
		tx.Description = fmt.Sprintf("%s ETH escrowed for duel #%s", amount, tx.DuelID)
	case contracts.FundsReleased:
		amount, fee := WeiToETH(e.Amount), WeiToETH(e.Fee)
		tx.Type = TxFundsReleased
		tx.Winner, tx.Amount, tx.Fee = addr(e.Winner), eth(amount), eth(fee)
		tx.Description = fmt.Sprintf("%s ETH released to %s for duel #%s (fee %s ETH)",
			amount, FormatAddress(e.Winner), tx.DuelID, fee)
	case contracts.FeeCollected:
		fee := WeiToETH(e.FeeAmount)
		tx.Type = TxFeeCollected
		tx.Fee = eth(fee)
		tx.Description = fmt.Sprintf("Fee of %s ETH collected for duel #%s", fee, tx.DuelID)
	default:
		return Transaction{}, false
	}

	tx.Label = tx.Type.Label()
	return tx, true
}
