package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xmhha/duelwatch/internal/config"
	"github.com/0xmhha/duelwatch/internal/constants"
	"github.com/0xmhha/duelwatch/internal/logger"
	"github.com/0xmhha/duelwatch/pkg/api"
	"github.com/0xmhha/duelwatch/pkg/cache"
	"github.com/0xmhha/duelwatch/pkg/client"
	"github.com/0xmhha/duelwatch/pkg/contracts"
	"github.com/0xmhha/duelwatch/pkg/delegate"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/0xmhha/duelwatch/pkg/eventlog"
	"github.com/0xmhha/duelwatch/pkg/metrics"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/0xmhha/duelwatch/pkg/service"
	"github.com/0xmhha/duelwatch/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// flags holds command-line overrides; zero values leave the config untouched
type flags struct {
	rpcEndpoint  string
	battle       string
	cacheBackend string
	logLevel     string
	logFormat    string

	enableAPI       bool
	apiHost         string
	apiPort         int
	enableWebSocket bool
	enableLive      bool
}

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		f           flags
		q           oneShot
	)
	flag.StringVar(&f.rpcEndpoint, "rpc", "", "Chain RPC endpoint URL")
	flag.StringVar(&f.battle, "battle", "", "Battle contract address")
	flag.StringVar(&f.cacheBackend, "cache-backend", "", "Cache persistence backend (pebble, redis, memory)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	flag.BoolVar(&f.enableAPI, "api", false, "Enable API server")
	flag.StringVar(&f.apiHost, "api-host", "", "API server host")
	flag.IntVar(&f.apiPort, "api-port", 0, "API server port")
	flag.BoolVar(&f.enableWebSocket, "websocket", false, "Enable WebSocket push")
	flag.BoolVar(&f.enableLive, "live", false, "Subscribe to live contract events")

	flag.StringVar(&q.wallet, "wallet", "", "Print wallet stats for an address and exit")
	flag.StringVar(&q.history, "history", "", "Print duel history for an address and exit")
	flag.StringVar(&q.duelID, "transactions", "", "Print the transactions of a duel and exit")
	flag.BoolVar(&q.feed, "feed", false, "Print the live feed and exit")
	flag.BoolVar(&q.ecosystem, "ecosystem", false, "Print ecosystem stats and exit")
	flag.IntVar(&q.limit, "limit", 0, "Result limit for -history and -feed")
	flag.IntVar(&q.page, "page", 0, "Page for -history")

	flag.Parse()

	if *showVersion {
		fmt.Printf("duelwatch version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, q, log); err != nil {
		log.Error("duelwatch stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// run wires the components and serves until a signal arrives, or answers a
// single query when one was requested on the command line
func run(cfg *config.Config, q oneShot, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("starting duelwatch",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("battle", cfg.Contracts.Battle),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	ethClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.RPC.Endpoint,
		Timeout:  cfg.RPC.Timeout,
		Logger:   logger.WithComponent(log, "client"),
	})
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()

	if _, err := ethClient.CheckChainID(ctx, cfg.Chain.ID); err != nil {
		return err
	}

	kv, err := storage.Open(ctx, &storage.Config{
		Backend:       cfg.Cache.Backend,
		Path:          cfg.Cache.Path,
		CacheMB:       constants.DefaultPebbleCacheMB,
		MaxOpenFiles:  constants.DefaultPebbleMaxOpenFiles,
		RedisAddress:  cfg.Cache.Redis.Address,
		RedisPassword: cfg.Cache.Redis.Password,
		RedisDB:       cfg.Cache.Redis.DB,
		PoolSize:      cfg.Cache.Redis.PoolSize,
		DialTimeout:   cfg.Cache.Redis.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open cache storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Error("failed to close cache storage", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store := cache.NewStore(cache.Config{
		TTL: map[cache.Kind]time.Duration{
			cache.KindWalletStats:      cfg.Cache.TTL.WalletStats,
			cache.KindDuelHistory:      cfg.Cache.TTL.DuelHistory,
			cache.KindLiveFeed:         cfg.Cache.TTL.LiveFeed,
			cache.KindDuelTransactions: cfg.Cache.TTL.DuelTransactions,
		},
		Namespace:    cfg.Cache.Namespace,
		PersistDelay: cfg.Cache.PersistDelay,
	}, kv, logger.WithComponent(log, "cache"))
	store.SetObserver(m)
	if err := store.Load(ctx); err != nil {
		log.Warn("failed to load persisted cache, starting cold", zap.Error(err))
	}

	cacheCtx, stopCache := context.WithCancel(context.Background())
	cacheDone := make(chan struct{})
	go func() {
		defer close(cacheDone)
		store.Run(cacheCtx)
	}()
	defer func() {
		stopCache()
		<-cacheDone
	}()

	chain, battle, err := newChain(cfg, ethClient, log)
	if err != nil {
		return err
	}
	chain.EventLog().SetObserver(m)

	var dlg service.Delegate
	if cfg.Delegate.Enabled {
		c, err := delegate.NewClient(&delegate.Config{
			BaseURL:      cfg.Delegate.BaseURL,
			Timeout:      cfg.Delegate.Timeout,
			ProbeTimeout: cfg.Delegate.ProbeTimeout,
		}, logger.WithComponent(log, "delegate"))
		if err != nil {
			return fmt.Errorf("failed to create delegate client: %w", err)
		}
		dlg = c
	}

	svc := service.New(service.Config{
		Timeout:      cfg.RPC.Timeout,
		HistoryLimit: cfg.Query.HistoryLimit,
		FeedLimit:    cfg.Query.FeedLimit,
		MaxLimit:     cfg.Query.MaxLimit,
	}, store, chain, dlg, logger.WithComponent(log, "service"))
	svc.SetObserver(m)
	if dlg != nil {
		svc.ProbeDelegate(ctx)
	}

	if q.requested() {
		return q.run(ctx, svc, os.Stdout)
	}

	bus := notify.NewBus(constants.DefaultPublishBuffer, logger.WithComponent(log, "notify"))
	bus.SetObserver(m)
	go bus.Run()
	defer bus.Stop()

	listenerDone := make(chan error, 1)
	if cfg.Live.Enabled {
		logs := chain.EventLog()
		if endpoint := cfg.SubscriptionEndpoint(); endpoint != cfg.RPC.Endpoint {
			subClient, err := client.NewClient(&client.Config{
				Endpoint: endpoint,
				Timeout:  cfg.RPC.Timeout,
				Logger:   logger.WithComponent(log, "client"),
			})
			if err != nil {
				return fmt.Errorf("failed to create subscription client: %w", err)
			}
			defer subClient.Close()
			logs = eventlog.NewClient(subClient, logger.WithComponent(log, "eventlog"))
			logs.SetObserver(m)
		}

		listener := service.NewListener(logs, battle, store, bus, cfg.Live.DedupTTL, logger.WithComponent(log, "listener"))
		go func() { listenerDone <- listener.Run(ctx) }()
	}

	var apiServer *api.Server
	apiErr := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer, err = api.NewServer(apiConfig(cfg), logger.WithComponent(log, "api"), svc, api.Options{
			Bus:      bus,
			Observer: m,
			Gatherer: registry,
		})
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		go func() { apiErr <- apiServer.Start() }()
	}

	if apiServer == nil && !cfg.Live.Enabled {
		return errors.New("nothing to do: enable the API or live mode, or request a query")
	}

	var runErr error
wait:
	for {
		select {
		case sig := <-sigChan:
			log.Info("received shutdown signal", zap.String("signal", sig.String()))
			break wait
		case err := <-apiErr:
			runErr = err
			break wait
		case err := <-listenerDone:
			// queries keep being served from cache and chain without live invalidation
			if err != nil {
				log.Error("live subscription ended", zap.Error(err))
			}
			if apiServer == nil {
				runErr = err
				break wait
			}
		}
	}

	log.Info("shutting down gracefully")
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop API server gracefully", zap.Error(err))
		}
	}
	cancel()

	log.Info("duelwatch stopped")
	return runErr
}

// newChain binds the configured contracts and builds the direct tier
func newChain(cfg *config.Config, backend service.Backend, log *zap.Logger) (*service.Chain, *eventlog.Contract, error) {
	battle, err := contracts.NewBattle(common.HexToAddress(cfg.Contracts.Battle))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind battle contract: %w", err)
	}

	var escrow *eventlog.Contract
	if cfg.Contracts.Escrow != "" {
		escrow, err = contracts.NewEscrow(common.HexToAddress(cfg.Contracts.Escrow))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to bind escrow contract: %w", err)
		}
	}

	fee, err := duel.NewFee(cfg.Fee.Fraction)
	if err != nil {
		return nil, nil, err
	}

	chain, err := service.NewChain(service.ChainConfig{
		Battle:      battle,
		Escrow:      escrow,
		BlockWindow: cfg.Query.BlockWindow,
		Fee:         fee,
		ExplorerURL: cfg.Chain.ExplorerURL,
	}, backend, logger.WithComponent(log, "chain"))
	if err != nil {
		return nil, nil, err
	}
	return chain, battle, nil
}

// apiConfig maps the application config onto the API server config
func apiConfig(cfg *config.Config) *api.Config {
	c := api.DefaultConfig()
	c.Host = cfg.API.Host
	c.Port = cfg.API.Port
	c.EnableCORS = cfg.API.EnableCORS
	c.AllowedOrigins = cfg.API.AllowedOrigins
	c.EnableWebSocket = cfg.API.EnableWebSocket
	c.EnableRateLimit = cfg.API.RateLimit.Enabled
	c.RateLimitPerSecond = cfg.API.RateLimit.RequestsPerSecond
	c.RateLimitBurst = cfg.API.RateLimit.Burst
	c.Version = version
	return c
}

// loadConfig loads .env, the config file and the environment, then applies flags
func loadConfig(configFile string, f flags) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	applyFlags(cfg, f)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, f flags) {
	if f.rpcEndpoint != "" {
		cfg.RPC.Endpoint = f.rpcEndpoint
	}
	if f.battle != "" {
		cfg.Contracts.Battle = f.battle
	}
	if f.cacheBackend != "" {
		cfg.Cache.Backend = f.cacheBackend
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.enableAPI {
		cfg.API.Enabled = true
	}
	if f.apiHost != "" {
		cfg.API.Host = f.apiHost
	}
	if f.apiPort > 0 {
		cfg.API.Port = f.apiPort
	}
	if f.enableWebSocket {
		cfg.API.EnableWebSocket = true
	}
	if f.enableLive {
		cfg.Live.Enabled = true
	}
}
