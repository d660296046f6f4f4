package duel

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFee(t *testing.T) {
	_, err := NewFee(-0.01)
	assert.Error(t, err)
	_, err = NewFee(1)
	assert.Error(t, err)

	f, err := NewFee(0.05)
	require.NoError(t, err)
	assert.Equal(t, "0.05", f.Fraction().String())
}

func TestFee_WinnerPayout(t *testing.T) {
	one := decimal.NewFromInt(1)
	assert.Equal(t, "1.9", MustFee(0.05).WinnerPayout(one).String())
	assert.Equal(t, "1.8", MustFee(0.10).WinnerPayout(one).String())
	assert.Equal(t, "0.95", MustFee(0.05).WinnerPayout(decimal.RequireFromString("0.5")).String())
}

func TestWeiToETH(t *testing.T) {
	assert.True(t, WeiToETH(nil).IsZero())
	assert.Equal(t, "1", WeiToETH(oneEth()).String())

	wei, ok := new(big.Int).SetString("1234500000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "1.2345", WeiToETH(wei).String())

	assert.Equal(t, "0.000000000000000001", WeiToETH(big.NewInt(1)).String())
}

func TestFormatAddress(t *testing.T) {
	a := common.HexToAddress("0x1234567890abcdef1234567890abcdef1234abcd")
	got := FormatAddress(a)
	assert.Len(t, got, 13)
	assert.Equal(t, "0x1234...", got[:9])
	assert.Equal(t, "abcd", got[9:])
}
