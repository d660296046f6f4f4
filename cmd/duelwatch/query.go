package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/0xmhha/duelwatch/pkg/api"
	"github.com/ethereum/go-ethereum/common"
)

// oneShot is a single query requested on the command line
type oneShot struct {
	wallet    string
	history   string
	duelID    string
	feed      bool
	ecosystem bool
	limit     int
	page      int
}

func (q oneShot) requested() bool {
	return q.wallet != "" || q.history != "" || q.duelID != "" || q.feed || q.ecosystem
}

// run answers the query through queries and writes indented JSON to out
func (q oneShot) run(ctx context.Context, queries api.Queries, out io.Writer) error {
	var (
		result any
		err    error
	)

	switch {
	case q.wallet != "":
		addr, perr := parseAddress(q.wallet)
		if perr != nil {
			return perr
		}
		result, err = queries.WalletStats(ctx, addr)
	case q.history != "":
		addr, perr := parseAddress(q.history)
		if perr != nil {
			return perr
		}
		result, err = queries.DuelHistory(ctx, addr, q.limit, q.page)
	case q.duelID != "":
		result, err = queries.DuelTransactions(ctx, q.duelID)
	case q.feed:
		result, err = queries.LiveFeed(ctx, q.limit)
	case q.ecosystem:
		result, err = queries.Ecosystem(ctx)
	default:
		return fmt.Errorf("no query requested")
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
