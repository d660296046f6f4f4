// Package delegate talks to a remote duel API that serves the same shapes
// as this service, used as the primary query tier when it is reachable.
package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ErrDelegateUnavailable is returned when the delegate cannot serve a request
var ErrDelegateUnavailable = errors.New("delegate unavailable")

// maxBodyBytes bounds a delegate response body
const maxBodyBytes = 4 << 20

// Config holds delegate client settings
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// StatusError is a non-2xx delegate response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delegate returned %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is(err, ErrDelegateUnavailable) match 5xx responses
func (e *StatusError) Unwrap() error {
	if e.Code >= http.StatusInternalServerError {
		return ErrDelegateUnavailable
	}
	return nil
}

// Client is a duel.Source backed by the delegate API
type Client struct {
	base         *url.URL
	client       *http.Client
	probeTimeout time.Duration
	logger       *zap.Logger
}

var _ duel.Source = (*Client)(nil)

// NewClient creates a delegate client for cfg.BaseURL
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("delegate base URL cannot be empty")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid delegate URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("delegate URL must use http or https scheme")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultDelegateTimeout
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = constants.DefaultProbeTimeout
	}

	return &Client{
		base: base,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		probeTimeout: probeTimeout,
		logger:       logger,
	}, nil
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Probe checks that the delegate answers a minimal live feed request
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	var feed []duel.Duel
	if err := c.get(ctx, []string{"live-feed"}, url.Values{"limit": {"1"}}, &feed); err != nil {
		return fmt.Errorf("%w: %v", ErrDelegateUnavailable, err)
	}
	return nil
}

// WalletStats fetches GET /wallet/{address}
func (c *Client) WalletStats(ctx context.Context, address common.Address) (duel.WalletStats, error) {
	var stats duel.WalletStats
	if err := c.get(ctx, []string{"wallet", address.Hex()}, nil, &stats); err != nil {
		return duel.WalletStats{}, err
	}
	return stats, nil
}

// DuelHistory fetches GET /duels/{address}?limit&page
func (c *Client) DuelHistory(ctx context.Context, address common.Address, limit, page int) (duel.HistoryPage, error) {
	q := url.Values{
		"limit": {strconv.Itoa(limit)},
		"page":  {strconv.Itoa(page)},
	}
	var out duel.HistoryPage
	if err := c.get(ctx, []string{"duels", address.Hex()}, q, &out); err != nil {
		return duel.HistoryPage{}, err
	}
	if out.Duels == nil {
		out.Duels = []duel.Duel{}
	}
	return out, nil
}

// LiveFeed fetches GET /live-feed?limit
func (c *Client) LiveFeed(ctx context.Context, limit int) ([]duel.Duel, error) {
	out := []duel.Duel{}
	if err := c.get(ctx, []string{"live-feed"}, url.Values{"limit": {strconv.Itoa(limit)}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DuelTransactions fetches GET /duel/{id}/transactions
func (c *Client) DuelTransactions(ctx context.Context, duelID string) ([]duel.Transaction, error) {
	out := []duel.Transaction{}
	if err := c.get(ctx, []string{"duel", duelID, "transactions"}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path []string, query url.Values, out any) error {
	target := c.base.JoinPath(path...)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "duelwatch/1.0")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelegateUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read delegate response: %w", err)
	}

	c.logger.Debug("delegate request",
		zap.String("url", target.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode delegate response: %w", err)
	}
	return nil
}
