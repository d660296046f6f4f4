package duel

import (
	"sort"

	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Related holds the secondary events joined onto initiation events by duel id
type Related struct {
	Joined    []contracts.DuelJoined
	Completed []contracts.DuelCompleted
	Nullified []contracts.DuelNullified
	Claimed   []contracts.ProceedsClaimed
}

// Reconstructor derives duel state from contract events
type Reconstructor struct {
	fee    Fee
	logger *zap.Logger
}

// NewReconstructor creates a reconstructor applying fee to winner payouts
func NewReconstructor(fee Fee, logger *zap.Logger) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{fee: fee, logger: logger}
}

// Fee returns the fee applied by the reconstructor
func (r *Reconstructor) Fee() Fee {
	return r.fee
}

// indexByDuel keeps the latest event per duel id
func indexByDuel[T contracts.Event](events []T) map[string]T {
	out := make(map[string]T, len(events))
	for _, ev := range events {
		id := ev.Duel().String()
		if prev, ok := out[id]; ok && prev.Position().BlockNumber > ev.Position().BlockNumber {
			continue
		}
		out[id] = ev
	}
	return out
}

// Reconstruct derives one Duel per distinct initiation event, newest first.
// viewer is attached as display metadata only.
func (r *Reconstructor) Reconstruct(initiated []contracts.DuelInitiated, related Related, viewer *common.Address) []Duel {
	joined := indexByDuel(related.Joined)
	completed := indexByDuel(related.Completed)
	nullified := indexByDuel(related.Nullified)
	claimed := indexByDuel(related.Claimed)

	seen := make(map[string]struct{}, len(initiated))
	duels := make([]Duel, 0, len(initiated))
	for _, ev := range initiated {
		id := ev.DuelID.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		d := Duel{
			ID:              id,
			Player1:         ev.Player1,
			Player2:         ev.Player2,
			Wager:           WeiToETH(ev.Wager),
			Status:          StatusPending,
			BlockNumber:     ev.BlockNumber,
			TransactionHash: ev.TxHash,
			CurrentPlayer:   viewer,
		}

		j, hasJoin := joined[id]
		c, hasCompletion := completed[id]
		n, hasNullify := nullified[id]

		switch {
		case hasNullify:
			d.Status = StatusCancelled
			d.TransactionHash = n.TxHash
		case hasJoin:
			d.Status = StatusActive
			d.TransactionHash = j.TxHash
			if j.Player2 != (common.Address{}) {
				d.Player2 = j.Player2
			}
			if hasCompletion {
				winner, loser := c.Winner, c.Loser
				d.Status = StatusCompleted
				d.TransactionHash = c.TxHash
				d.Winner = &winner
				d.Loser = &loser
				d.NetProfit = r.fee.WinnerPayout(d.Wager)
				_, d.Claimed = claimed[id]
			}
		case hasCompletion:
			d.Anomaly = AnomalyCompletedWithoutJoin
			r.logger.Warn("duel completed without a join event, ignoring completion",
				zap.String("duel_id", id),
				zap.Uint64("initiated_block", ev.BlockNumber),
				zap.Uint64("completed_block", c.BlockNumber),
				zap.String("completed_tx", c.TxHash.Hex()))
		}

		duels = append(duels, d)
	}

	SortNewestFirst(duels)
	return duels
}

// SortNewestFirst orders duels by initiation block, newest first
func SortNewestFirst(duels []Duel) {
	sort.SliceStable(duels, func(i, j int) bool {
		return duels[i].BlockNumber > duels[j].BlockNumber
	})
}

// SelectNewest de-duplicates initiation events by duel id, orders them newest
// first and keeps at most limit. hasMore reports whether any were dropped.
func SelectNewest(initiated []contracts.DuelInitiated, limit int) (selected []contracts.DuelInitiated, hasMore bool) {
	seen := make(map[string]struct{}, len(initiated))
	unique := make([]contracts.DuelInitiated, 0, len(initiated))
	for _, ev := range initiated {
		id := ev.DuelID.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, ev)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].BlockNumber != unique[j].BlockNumber {
			return unique[i].BlockNumber > unique[j].BlockNumber
		}
		return unique[i].LogIndex > unique[j].LogIndex
	})

	if limit > 0 && len(unique) > limit {
		return unique[:limit], true
	}
	return unique, false
}
