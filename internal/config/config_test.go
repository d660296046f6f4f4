package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testBattle = "0x5f8abf7f164fbed5c51f696ddf3c2c17bcbc8fbb"

func validConfig() *Config {
	cfg := NewConfig()
	cfg.Contracts.Battle = testBattle
	cfg.Cache.Backend = "memory"
	return cfg
}

// TestNewConfig tests creating a config with defaults
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("NewConfig() returned nil")
	}

	if cfg.Chain.ID != 2741 {
		t.Errorf("Expected default chain id 2741, got %d", cfg.Chain.ID)
	}
	if cfg.Fee.Fraction != 0.05 {
		t.Errorf("Expected default fee fraction 0.05, got %v", cfg.Fee.Fraction)
	}
	if cfg.Query.BlockWindow != 10000 {
		t.Errorf("Expected default block window 10000, got %d", cfg.Query.BlockWindow)
	}
	if cfg.Cache.TTL.WalletStats != 5*time.Minute {
		t.Errorf("Expected wallet stats ttl 5m, got %v", cfg.Cache.TTL.WalletStats)
	}
	if cfg.Cache.TTL.DuelHistory != 2*time.Minute {
		t.Errorf("Expected duel history ttl 2m, got %v", cfg.Cache.TTL.DuelHistory)
	}
	if cfg.Cache.TTL.LiveFeed != 30*time.Second {
		t.Errorf("Expected live feed ttl 30s, got %v", cfg.Cache.TTL.LiveFeed)
	}
	if cfg.Cache.TTL.DuelTransactions != 10*time.Minute {
		t.Errorf("Expected duel transactions ttl 10m, got %v", cfg.Cache.TTL.DuelTransactions)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Log.Level)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing battle contract", mutate: func(c *Config) { c.Contracts.Battle = "" }, wantErr: true},
		{name: "malformed battle contract", mutate: func(c *Config) { c.Contracts.Battle = testBattle + "e" }, wantErr: true},
		{name: "malformed escrow contract", mutate: func(c *Config) { c.Contracts.Escrow = "0x1234" }, wantErr: true},
		{name: "fee fraction of one", mutate: func(c *Config) { c.Fee.Fraction = 1 }, wantErr: true},
		{name: "negative fee fraction", mutate: func(c *Config) { c.Fee.Fraction = -0.1 }, wantErr: true},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "redis backend without address", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: true},
		{
			name: "redis backend with address",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.Redis.Address = "localhost:6379"
			},
		},
		{name: "delegate without url", mutate: func(c *Config) { c.Delegate.Enabled = true }, wantErr: true},
		{
			name: "delegate with url",
			mutate: func(c *Config) {
				c.Delegate.Enabled = true
				c.Delegate.BaseURL = "https://api.example.com/api"
			},
		},
		{name: "max limit below default", mutate: func(c *Config) { c.Query.MaxLimit = 10 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTL.LiveFeed = -time.Second }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: true},
		{
			name: "api port out of range",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected error to wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

// TestLoadFromEnv tests loading configuration from environment variables
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DUELWATCH_RPC_ENDPOINT", "http://testnet:8545")
	t.Setenv("DUELWATCH_RPC_TIMEOUT", "60s")
	t.Setenv("DUELWATCH_BATTLE_CONTRACT", testBattle)
	t.Setenv("DUELWATCH_FEE_FRACTION", "0.1")
	t.Setenv("DUELWATCH_BLOCK_WINDOW", "5000")
	t.Setenv("DUELWATCH_CACHE_BACKEND", "memory")
	t.Setenv("DUELWATCH_DELEGATE_ENABLED", "true")
	t.Setenv("DUELWATCH_DELEGATE_BASE_URL", "http://delegate:3000/api")
	t.Setenv("DUELWATCH_API_CORS_ALLOWED_ORIGINS", "http://localhost:3001, https://app.example.com")
	t.Setenv("DUELWATCH_LOG_LEVEL", "debug")

	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.RPC.Endpoint != "http://testnet:8545" {
		t.Errorf("Expected RPC endpoint from env, got %q", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout != 60*time.Second {
		t.Errorf("Expected RPC timeout 60s, got %v", cfg.RPC.Timeout)
	}
	if cfg.Fee.Fraction != 0.1 {
		t.Errorf("Expected fee fraction 0.1, got %v", cfg.Fee.Fraction)
	}
	if cfg.Query.BlockWindow != 5000 {
		t.Errorf("Expected block window 5000, got %d", cfg.Query.BlockWindow)
	}
	if !cfg.Delegate.Enabled || cfg.Delegate.BaseURL != "http://delegate:3000/api" {
		t.Errorf("Expected delegate from env, got %+v", cfg.Delegate)
	}
	if len(cfg.API.AllowedOrigins) != 2 || cfg.API.AllowedOrigins[1] != "https://app.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", cfg.API.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after env load error = %v", err)
	}
}

// TestLoadFromEnvInvalid tests that malformed values are rejected
func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("DUELWATCH_RPC_TIMEOUT", "soon")

	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Fatal("Expected error for malformed DUELWATCH_RPC_TIMEOUT")
	}
}

// TestLoad tests the file, env, defaults, validate chain
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
rpc:
  endpoint: https://rpc.example.com
contracts:
  battle: ` + testBattle + `
  escrow: 0x682a307e2274c24f305d6a81682a0b5eb7612a7e
fee:
  fraction: 0.1
cache:
  backend: memory
  ttl:
    live_feed: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DUELWATCH_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPC.Endpoint != "https://rpc.example.com" {
		t.Errorf("Expected endpoint from file, got %q", cfg.RPC.Endpoint)
	}
	if cfg.Fee.Fraction != 0.1 {
		t.Errorf("Expected fee fraction from file, got %v", cfg.Fee.Fraction)
	}
	if cfg.Cache.TTL.LiveFeed != 10*time.Second {
		t.Errorf("Expected live feed ttl from file, got %v", cfg.Cache.TTL.LiveFeed)
	}
	if cfg.Cache.TTL.WalletStats != 5*time.Minute {
		t.Errorf("Expected wallet stats ttl default, got %v", cfg.Cache.TTL.WalletStats)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env to override log level, got %q", cfg.Log.Level)
	}
}

// TestLoadMissingFile tests loading a non-existent file
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSubscriptionEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.RPC.Endpoint = "https://rpc.example.com"
	if got := cfg.SubscriptionEndpoint(); got != "https://rpc.example.com" {
		t.Errorf("Expected fallback to RPC endpoint, got %q", got)
	}
	cfg.RPC.WSEndpoint = "wss://rpc.example.com/ws"
	if got := cfg.SubscriptionEndpoint(); got != "wss://rpc.example.com/ws" {
		t.Errorf("Expected ws endpoint, got %q", got)
	}
}
