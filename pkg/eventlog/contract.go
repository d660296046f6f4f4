package eventlog

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Common errors
var (
	// ErrUnknownEvent is returned when an event name or signature is not in the contract ABI
	ErrUnknownEvent = errors.New("unknown event")

	// ErrTooManyIndexedArgs is returned when a query filters on more topics than the event indexes
	ErrTooManyIndexedArgs = errors.New("too many indexed arguments")
)

// Contract is a handle to a deployed contract: its address and parsed ABI
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI

	eventsByID map[common.Hash]string
}

// NewContract parses abiJSON and binds it to address
func NewContract(name string, address common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s ABI: %w", name, err)
	}

	eventsByID := make(map[common.Hash]string, len(parsed.Events))
	for eventName, event := range parsed.Events {
		eventsByID[event.ID] = eventName
	}

	return &Contract{
		Name:       name,
		Address:    address,
		ABI:        parsed,
		eventsByID: eventsByID,
	}, nil
}

// Event returns the ABI definition of an event
func (c *Contract) Event(name string) (abi.Event, error) {
	event, ok := c.ABI.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("%w: %s.%s", ErrUnknownEvent, c.Name, name)
	}
	return event, nil
}

// EventName resolves a topic0 signature hash to an event name
func (c *Contract) EventName(topic0 common.Hash) (string, bool) {
	name, ok := c.eventsByID[topic0]
	return name, ok
}

// Topics builds the topic filter for an event. indexed[i] lists the accepted values
// for the i-th indexed argument; a nil or empty list matches anything.
func (c *Contract) Topics(eventName string, indexed [][]interface{}) ([][]common.Hash, error) {
	event, err := c.Event(eventName)
	if err != nil {
		return nil, err
	}

	indexedCount := 0
	for _, input := range event.Inputs {
		if input.Indexed {
			indexedCount++
		}
	}
	if len(indexed) > indexedCount {
		return nil, fmt.Errorf("%w: %s has %d, got %d", ErrTooManyIndexedArgs, eventName, indexedCount, len(indexed))
	}

	topics := [][]common.Hash{{event.ID}}
	if len(indexed) == 0 {
		return topics, nil
	}

	rest, err := abi.MakeTopics(indexed...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode indexed arguments for %s: %w", eventName, err)
	}
	return append(topics, rest...), nil
}

// Parse decodes a raw log emitted by this contract
func (c *Contract) Parse(log types.Log) (Record, error) {
	if len(log.Topics) == 0 {
		return Record{}, fmt.Errorf("log has no topics")
	}

	eventName, ok := c.EventName(log.Topics[0])
	if !ok {
		return Record{}, fmt.Errorf("%w: signature %s", ErrUnknownEvent, log.Topics[0].Hex())
	}
	event := c.ABI.Events[eventName]

	args := make(map[string]interface{}, len(event.Inputs))

	// Non-indexed arguments live in data
	if len(log.Data) > 0 {
		values, err := event.Inputs.UnpackValues(log.Data)
		if err != nil {
			return Record{}, fmt.Errorf("failed to unpack %s data: %w", eventName, err)
		}

		i := 0
		for _, input := range event.Inputs {
			if input.Indexed {
				continue
			}
			if i < len(values) {
				args[input.Name] = values[i]
				i++
			}
		}
	}

	// Indexed arguments live in topics[1:]
	topicIdx := 1
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIdx >= len(log.Topics) {
			return Record{}, fmt.Errorf("%s log is missing indexed topic %q", eventName, input.Name)
		}
		args[input.Name] = parseIndexedTopic(input, log.Topics[topicIdx])
		topicIdx++
	}

	return Record{
		Contract:    log.Address,
		Event:       eventName,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Removed:     log.Removed,
		Args:        args,
	}, nil
}

func parseIndexedTopic(input abi.Argument, topic common.Hash) interface{} {
	switch input.Type.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.IntTy:
		v := new(big.Int).SetBytes(topic.Bytes())
		if topic[0]&0x80 != 0 {
			v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
		}
		return v
	case abi.BoolTy:
		return topic[31] == 1
	default:
		// dynamic types are indexed by their hash
		return topic
	}
}
