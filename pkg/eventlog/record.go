package eventlog

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Record is one decoded event occurrence
type Record struct {
	Contract    common.Address
	Event       string
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	// Removed is set on subscription deliveries that were reorged out
	Removed bool
	Args    map[string]interface{}
}

// BigInt returns a uint/int argument
func (r Record) BigInt(name string) (*big.Int, error) {
	v, ok := r.Args[name]
	if !ok {
		return nil, fmt.Errorf("%s: missing argument %q", r.Event, name)
	}
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("%s: argument %q is %T, not an integer", r.Event, name, v)
	}
	return n, nil
}

// Address returns an address argument
func (r Record) Address(name string) (common.Address, error) {
	v, ok := r.Args[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%s: missing argument %q", r.Event, name)
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: argument %q is %T, not an address", r.Event, name, v)
	}
	return addr, nil
}

// Key identifies the log occurrence, stable across redeliveries
func (r Record) Key() string {
	return fmt.Sprintf("%s:%d", r.TxHash.Hex(), r.LogIndex)
}

// SortAscending orders records by block number then log index
func SortAscending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})
}
