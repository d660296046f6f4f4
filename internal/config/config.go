package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// envPrefix is prepended to every environment variable name
const envPrefix = "DUELWATCH_"

// Config holds all configuration for duelwatch
type Config struct {
	RPC       RPCConfig       `yaml:"rpc"`
	Chain     ChainConfig     `yaml:"chain"`
	Contracts ContractsConfig `yaml:"contracts"`
	Fee       FeeConfig       `yaml:"fee"`
	Query     QueryConfig     `yaml:"query"`
	Cache     CacheConfig     `yaml:"cache"`
	Delegate  DelegateConfig  `yaml:"delegate"`
	Live      LiveConfig      `yaml:"live"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// RPCConfig holds RPC client configuration
type RPCConfig struct {
	Endpoint string `yaml:"endpoint"`
	// WSEndpoint is used for log subscriptions; falls back to Endpoint when empty
	WSEndpoint string        `yaml:"ws_endpoint"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ChainConfig describes the chain the contracts live on
type ChainConfig struct {
	ID          uint64 `yaml:"id"`
	Name        string `yaml:"name"`
	ExplorerURL string `yaml:"explorer_url"`
}

// ContractsConfig holds the watched contract addresses
type ContractsConfig struct {
	Battle string `yaml:"battle"`
	// Escrow is optional; without it escrow events and fee totals are skipped
	Escrow string `yaml:"escrow"`
}

// FeeConfig holds the platform fee
type FeeConfig struct {
	// Fraction is the cut taken from total winnings, e.g. 0.05 for 5%
	Fraction float64 `yaml:"fraction"`
}

// QueryConfig holds event scanning and pagination settings
type QueryConfig struct {
	BlockWindow  uint64 `yaml:"block_window"`
	HistoryLimit int    `yaml:"history_limit"`
	FeedLimit    int    `yaml:"feed_limit"`
	MaxLimit     int    `yaml:"max_limit"`
}

// CacheConfig holds cache TTLs and persistence settings
type CacheConfig struct {
	// Backend is one of: pebble, redis, memory
	Backend      string         `yaml:"backend"`
	Namespace    string         `yaml:"namespace"`
	Path         string         `yaml:"path"`
	PersistDelay time.Duration  `yaml:"persist_delay"`
	TTL          CacheTTLConfig `yaml:"ttl"`
	Redis        RedisConfig    `yaml:"redis"`
}

// CacheTTLConfig holds the per-kind freshness windows
type CacheTTLConfig struct {
	WalletStats      time.Duration `yaml:"wallet_stats"`
	DuelHistory      time.Duration `yaml:"duel_history"`
	LiveFeed         time.Duration `yaml:"live_feed"`
	DuelTransactions time.Duration `yaml:"duel_transactions"`
}

// RedisConfig holds redis connection settings for the redis cache backend
type RedisConfig struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// DelegateConfig holds the optional remote API used before direct chain queries
type DelegateConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// LiveConfig holds the live event subscription settings
type LiveConfig struct {
	Enabled  bool          `yaml:"enabled"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled         bool            `yaml:"enabled"`
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	EnableWebSocket bool            `yaml:"enable_websocket"`
	EnableCORS      bool            `yaml:"enable_cors"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-IP rate limiting settings
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Endpoint == "" {
		c.RPC.Endpoint = constants.DefaultRPCEndpoint
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}

	// Chain defaults
	if c.Chain.ID == 0 {
		c.Chain.ID = constants.DefaultChainID
	}
	if c.Chain.Name == "" {
		c.Chain.Name = constants.DefaultChainName
	}
	if c.Chain.ExplorerURL == "" {
		c.Chain.ExplorerURL = constants.DefaultExplorerURL
	}

	// Fee defaults
	if c.Fee.Fraction == 0 {
		c.Fee.Fraction = constants.DefaultFeeFraction
	}

	// Query defaults
	if c.Query.BlockWindow == 0 {
		c.Query.BlockWindow = constants.DefaultBlockWindow
	}
	if c.Query.HistoryLimit == 0 {
		c.Query.HistoryLimit = constants.DefaultHistoryLimit
	}
	if c.Query.FeedLimit == 0 {
		c.Query.FeedLimit = constants.DefaultFeedLimit
	}
	if c.Query.MaxLimit == 0 {
		c.Query.MaxLimit = constants.DefaultMaxLimit
	}

	// Cache defaults
	if c.Cache.Backend == "" {
		c.Cache.Backend = "pebble"
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = constants.DefaultCacheNamespace
	}
	if c.Cache.Path == "" {
		c.Cache.Path = constants.DefaultCachePath
	}
	if c.Cache.PersistDelay == 0 {
		c.Cache.PersistDelay = constants.DefaultPersistDelay
	}
	if c.Cache.TTL.WalletStats == 0 {
		c.Cache.TTL.WalletStats = constants.DefaultWalletStatsTTL
	}
	if c.Cache.TTL.DuelHistory == 0 {
		c.Cache.TTL.DuelHistory = constants.DefaultDuelHistoryTTL
	}
	if c.Cache.TTL.LiveFeed == 0 {
		c.Cache.TTL.LiveFeed = constants.DefaultLiveFeedTTL
	}
	if c.Cache.TTL.DuelTransactions == 0 {
		c.Cache.TTL.DuelTransactions = constants.DefaultDuelTransactionsTTL
	}
	if c.Cache.Redis.PoolSize == 0 {
		c.Cache.Redis.PoolSize = constants.DefaultRedisPoolSize
	}
	if c.Cache.Redis.DialTimeout == 0 {
		c.Cache.Redis.DialTimeout = constants.DefaultRedisDialTimeout
	}

	// Delegate defaults
	if c.Delegate.Timeout == 0 {
		c.Delegate.Timeout = constants.DefaultDelegateTimeout
	}
	if c.Delegate.ProbeTimeout == 0 {
		c.Delegate.ProbeTimeout = constants.DefaultProbeTimeout
	}

	// Live defaults
	if c.Live.DedupTTL == 0 {
		c.Live.DedupTTL = constants.DefaultDedupTTL
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimit.RequestsPerSecond == 0 {
		c.API.RateLimit.RequestsPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = constants.DefaultRateLimitBurst
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// LoadFromEnv loads configuration from DUELWATCH_* environment variables
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	envString("RPC_ENDPOINT", &c.RPC.Endpoint)
	envString("RPC_WS_ENDPOINT", &c.RPC.WSEndpoint)
	if err := envDuration("RPC_TIMEOUT", &c.RPC.Timeout); err != nil {
		return err
	}

	// Chain configuration
	if id := os.Getenv(envPrefix + "CHAIN_ID"); id != "" {
		val, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sCHAIN_ID: %w", envPrefix, err)
		}
		c.Chain.ID = val
	}
	envString("CHAIN_NAME", &c.Chain.Name)
	envString("EXPLORER_URL", &c.Chain.ExplorerURL)

	// Contracts configuration
	envString("BATTLE_CONTRACT", &c.Contracts.Battle)
	envString("ESCROW_CONTRACT", &c.Contracts.Escrow)

	// Fee configuration
	if fee := os.Getenv(envPrefix + "FEE_FRACTION"); fee != "" {
		val, err := strconv.ParseFloat(fee, 64)
		if err != nil {
			return fmt.Errorf("invalid %sFEE_FRACTION: %w", envPrefix, err)
		}
		c.Fee.Fraction = val
	}

	// Query configuration
	if window := os.Getenv(envPrefix + "BLOCK_WINDOW"); window != "" {
		val, err := strconv.ParseUint(window, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sBLOCK_WINDOW: %w", envPrefix, err)
		}
		c.Query.BlockWindow = val
	}
	if err := envInt("MAX_LIMIT", &c.Query.MaxLimit); err != nil {
		return err
	}

	// Cache configuration
	envString("CACHE_BACKEND", &c.Cache.Backend)
	envString("CACHE_NAMESPACE", &c.Cache.Namespace)
	envString("CACHE_PATH", &c.Cache.Path)
	envString("CACHE_REDIS_ADDRESS", &c.Cache.Redis.Address)
	envString("CACHE_REDIS_PASSWORD", &c.Cache.Redis.Password)
	if err := envInt("CACHE_REDIS_DB", &c.Cache.Redis.DB); err != nil {
		return err
	}

	// Delegate configuration
	if err := envBool("DELEGATE_ENABLED", &c.Delegate.Enabled); err != nil {
		return err
	}
	envString("DELEGATE_BASE_URL", &c.Delegate.BaseURL)
	if err := envDuration("DELEGATE_TIMEOUT", &c.Delegate.Timeout); err != nil {
		return err
	}

	// Live configuration
	if err := envBool("LIVE_ENABLED", &c.Live.Enabled); err != nil {
		return err
	}

	// API configuration
	if err := envBool("API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	envString("API_HOST", &c.API.Host)
	if err := envInt("API_PORT", &c.API.Port); err != nil {
		return err
	}
	if err := envBool("API_WEBSOCKET", &c.API.EnableWebSocket); err != nil {
		return err
	}
	if err := envBool("API_CORS_ENABLED", &c.API.EnableCORS); err != nil {
		return err
	}
	if allowedOrigins := os.Getenv(envPrefix + "API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}

	// Log configuration
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) error {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return nil
	}
	val, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = val
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return nil
	}
	val, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = val
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return nil
	}
	val, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
	}
	*dst = val
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate RPC configuration
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("%w: RPC endpoint is required", ErrInvalidConfig)
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("%w: RPC timeout must be positive", ErrInvalidConfig)
	}

	// Validate contracts
	if !common.IsHexAddress(c.Contracts.Battle) {
		return fmt.Errorf("%w: battle contract address %q is not a valid address", ErrInvalidConfig, c.Contracts.Battle)
	}
	if c.Contracts.Escrow != "" && !common.IsHexAddress(c.Contracts.Escrow) {
		return fmt.Errorf("%w: escrow contract address %q is not a valid address", ErrInvalidConfig, c.Contracts.Escrow)
	}

	// Validate fee
	if c.Fee.Fraction < 0 || c.Fee.Fraction >= 1 {
		return fmt.Errorf("%w: fee fraction %v must be in [0, 1)", ErrInvalidConfig, c.Fee.Fraction)
	}

	// Validate query configuration
	if c.Query.BlockWindow == 0 {
		return fmt.Errorf("%w: block window must be positive", ErrInvalidConfig)
	}
	if c.Query.HistoryLimit <= 0 || c.Query.FeedLimit <= 0 {
		return fmt.Errorf("%w: default limits must be positive", ErrInvalidConfig)
	}
	if c.Query.MaxLimit < c.Query.HistoryLimit || c.Query.MaxLimit < c.Query.FeedLimit {
		return fmt.Errorf("%w: max limit %d is below a default limit", ErrInvalidConfig, c.Query.MaxLimit)
	}

	// Validate cache configuration
	switch c.Cache.Backend {
	case "pebble":
		if c.Cache.Path == "" {
			return fmt.Errorf("%w: cache path is required for the pebble backend", ErrInvalidConfig)
		}
	case "redis":
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("%w: redis address is required for the redis backend", ErrInvalidConfig)
		}
		if c.Cache.Redis.PoolSize <= 0 {
			return fmt.Errorf("%w: redis pool size must be positive", ErrInvalidConfig)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: invalid cache backend %q, must be one of: pebble, redis, memory", ErrInvalidConfig, c.Cache.Backend)
	}
	ttls := map[string]time.Duration{
		"wallet_stats":      c.Cache.TTL.WalletStats,
		"duel_history":      c.Cache.TTL.DuelHistory,
		"live_feed":         c.Cache.TTL.LiveFeed,
		"duel_transactions": c.Cache.TTL.DuelTransactions,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache ttl %s must be positive", ErrInvalidConfig, name)
		}
	}

	// Validate delegate configuration
	if c.Delegate.Enabled {
		u, err := url.Parse(c.Delegate.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: delegate base url %q is not an absolute URL", ErrInvalidConfig, c.Delegate.BaseURL)
		}
	}

	// Validate API configuration
	if c.API.Enabled {
		if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
			return fmt.Errorf("%w: API port %d out of range", ErrInvalidConfig, c.API.Port)
		}
		if c.API.RateLimit.Enabled && (c.API.RateLimit.RequestsPerSecond <= 0 || c.API.RateLimit.Burst <= 0) {
			return fmt.Errorf("%w: rate limit values must be positive", ErrInvalidConfig)
		}
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("%w: invalid log level %q, must be one of: debug, info, warn, error", ErrInvalidConfig, c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("%w: invalid log format %q, must be one of: json, console", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

// SubscriptionEndpoint returns the endpoint used for log subscriptions
func (c *Config) SubscriptionEndpoint() string {
	if c.RPC.WSEndpoint != "" {
		return c.RPC.WSEndpoint
	}
	return c.RPC.Endpoint
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
