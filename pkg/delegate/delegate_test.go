package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type route struct {
	status int
	body   string
}

type requestLog struct {
	mu   sync.Mutex
	uris []string
}

func (l *requestLog) add(uri string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.uris = append(l.uris, uri)
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.uris...)
}

// newTestServer serves fixed bodies keyed by request path, recording queries
func newTestServer(t *testing.T, routes map[string]route) (*httptest.Server, *requestLog) {
	t.Helper()
	seen := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.URL.RequestURI())
		rt, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rt.status)
		_, _ = w.Write([]byte(rt.body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(&Config{BaseURL: baseURL, Timeout: time.Second, ProbeTimeout: time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.Error(t, err)
	_, err = NewClient(&Config{BaseURL: "ftp://example.com"}, nil)
	assert.Error(t, err)
	_, err = NewClient(&Config{BaseURL: "::bad"}, nil)
	assert.Error(t, err)

	c, err := NewClient(&Config{BaseURL: "https://duels.example.com/api"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://duels.example.com/api", c.BaseURL())
}

func TestClient_Probe(t *testing.T) {
	srv, seen := newTestServer(t, map[string]route{
		"/api/live-feed": {status: http.StatusOK, body: `[]`},
	})
	c := newTestClient(t, srv.URL+"/api")

	require.NoError(t, c.Probe(context.Background()))
	assert.Equal(t, []string{"/api/live-feed?limit=1"}, seen.all())
}

func TestClient_ProbeFailure(t *testing.T) {
	srv, _ := newTestServer(t, map[string]route{
		"/live-feed": {status: http.StatusServiceUnavailable, body: `down`},
	})
	c := newTestClient(t, srv.URL)

	err := c.Probe(context.Background())
	assert.ErrorIs(t, err, ErrDelegateUnavailable)

	// unreachable host
	srv.Close()
	err = c.Probe(context.Background())
	assert.ErrorIs(t, err, ErrDelegateUnavailable)
}

func TestClient_WalletStats(t *testing.T) {
	stats := duel.WalletStats{
		Address:      alice,
		TotalDuels:   10,
		Wins:         3,
		Losses:       7,
		TotalWagered: decimal.RequireFromString("2.5"),
		TotalETHWon:  decimal.RequireFromString("1"),
		TotalProfit:  decimal.RequireFromString("1"),
		NetProfit:    decimal.RequireFromString("0.95"),
		WinRate:      "30.0",
	}
	body, err := json.Marshal(stats)
	require.NoError(t, err)

	srv, _ := newTestServer(t, map[string]route{
		"/wallet/" + alice.Hex(): {status: http.StatusOK, body: string(body)},
	})
	c := newTestClient(t, srv.URL)

	got, err := c.WalletStats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Wins)
	assert.Equal(t, "30.0", got.WinRate)
	assert.True(t, got.NetProfit.Equal(decimal.RequireFromString("0.95")))
}

func TestClient_WalletStatsAcceptsNumericAmounts(t *testing.T) {
	srv, _ := newTestServer(t, map[string]route{
		"/wallet/" + alice.Hex(): {status: http.StatusOK, body: `{"address":"` + alice.Hex() + `","totalDuels":1,"wins":1,"totalWagered":0.5,"winRate":"100.0"}`},
	})
	c := newTestClient(t, srv.URL)

	got, err := c.WalletStats(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "0.5", got.TotalWagered.String())
}

func TestClient_DuelHistory(t *testing.T) {
	srv, seen := newTestServer(t, map[string]route{
		"/duels/" + alice.Hex(): {status: http.StatusOK, body: `{"duels":null,"hasMore":true}`},
	})
	c := newTestClient(t, srv.URL)

	page, err := c.DuelHistory(context.Background(), alice, 50, 2)
	require.NoError(t, err)
	assert.NotNil(t, page.Duels)
	assert.Empty(t, page.Duels)
	assert.True(t, page.HasMore)
	assert.Equal(t, "/duels/"+alice.Hex()+"?limit=50&page=2", seen.all()[0])
}

func TestClient_LiveFeedAndTransactions(t *testing.T) {
	srv, _ := newTestServer(t, map[string]route{
		"/live-feed":           {status: http.StatusOK, body: `[{"id":"4","status":"pending","wager":"1"}]`},
		"/duel/4/transactions": {status: http.StatusOK, body: `[{"type":"initiated","duelId":"4","blockNumber":9}]`},
	})
	c := newTestClient(t, srv.URL)

	feed, err := c.LiveFeed(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, duel.StatusPending, feed[0].Status)

	txs, err := c.DuelTransactions(context.Background(), "4")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, uint64(9), txs[0].BlockNumber)
}

func TestClient_Errors(t *testing.T) {
	srv, _ := newTestServer(t, map[string]route{
		"/live-feed":             {status: http.StatusOK, body: `{not json`},
		"/wallet/" + alice.Hex(): {status: http.StatusBadRequest, body: `bad address`},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.LiveFeed(context.Background(), 1)
	assert.ErrorContains(t, err, "decode")

	_, err = c.WalletStats(context.Background(), alice)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.False(t, errors.Is(err, ErrDelegateUnavailable), "4xx is not an availability failure")

	_, err = c.DuelTransactions(context.Background(), "missing")
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}
