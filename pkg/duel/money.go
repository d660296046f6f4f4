package duel

import (
	"fmt"
	"math/big"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Fee is the platform cut taken from total winnings
type Fee struct {
	fraction decimal.Decimal
}

// NewFee validates a fee fraction in [0, 1)
func NewFee(fraction float64) (Fee, error) {
	if fraction < 0 || fraction >= 1 {
		return Fee{}, fmt.Errorf("fee fraction %v must be in [0, 1)", fraction)
	}
	return Fee{fraction: decimal.NewFromFloat(fraction)}, nil
}

// MustFee is NewFee for constants known to be valid
func MustFee(fraction float64) Fee {
	f, err := NewFee(fraction)
	if err != nil {
		panic(err)
	}
	return f
}

// Fraction returns the fee as a fraction of one
func (f Fee) Fraction() decimal.Decimal {
	return f.fraction
}

// Net applies the fee to an amount
func (f Fee) Net(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(f.fraction))
}

// WinnerPayout is the winner's take from a duel: both stakes less the fee
func (f Fee) WinnerPayout(wager decimal.Decimal) decimal.Decimal {
	return f.Net(wager.Mul(two))
}

// WeiToETH converts a wei amount to ETH; nil is zero
func WeiToETH(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -constants.EthDecimals)
}

// FormatAddress shortens an address for descriptions, e.g. 0x1234...abcd
func FormatAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
