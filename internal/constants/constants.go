package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 50

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 100
)

// API Paths
const (
	// DefaultAPIPrefix is the mount point of the duel query routes
	DefaultAPIPrefix = "/api"

	// DefaultWebSocketPath is the default WebSocket endpoint path
	DefaultWebSocketPath = "/ws"
)

// Chain Constants
const (
	// DefaultChainID is the Abstract mainnet chain id
	DefaultChainID = 2741

	// DefaultChainName is the display name of the default chain
	DefaultChainName = "Abstract"

	// DefaultRPCEndpoint is the public Abstract RPC endpoint
	DefaultRPCEndpoint = "https://api.abstract.xyz"

	// DefaultExplorerURL is the block explorer used for transaction links
	DefaultExplorerURL = "https://abscan.org"

	// DefaultRPCTimeout bounds a single query service operation against the chain
	DefaultRPCTimeout = 20 * time.Second
)

// Duel Query Constants
const (
	// DefaultFeeFraction is the platform cut taken from total winnings
	DefaultFeeFraction = 0.05

	// DefaultBlockWindow is the number of blocks covered by one history page or the live feed
	DefaultBlockWindow = 10000

	// DefaultHistoryLimit is the default page size for duel history
	DefaultHistoryLimit = 50

	// DefaultFeedLimit is the default size of the live feed
	DefaultFeedLimit = 20

	// DefaultMaxLimit caps any caller-supplied limit
	DefaultMaxLimit = 200

	// EthDecimals is the number of decimals between wei and ETH
	EthDecimals = 18
)

// Cache Constants
const (
	// DefaultWalletStatsTTL is how long wallet stats stay fresh
	DefaultWalletStatsTTL = 5 * time.Minute

	// DefaultDuelHistoryTTL is how long a duel history page stays fresh
	DefaultDuelHistoryTTL = 2 * time.Minute

	// DefaultLiveFeedTTL is how long the live feed stays fresh
	DefaultLiveFeedTTL = 30 * time.Second

	// DefaultDuelTransactionsTTL is how long a duel's transaction list stays fresh
	DefaultDuelTransactionsTTL = 10 * time.Minute

	// DefaultPersistDelay debounces cache persistence after a mutation
	DefaultPersistDelay = 100 * time.Millisecond

	// DefaultCacheNamespace prefixes every persisted cache key
	DefaultCacheNamespace = "duelwatch"

	// DefaultCachePath is the default pebble directory for cache persistence
	DefaultCachePath = "./data/cache"

	// DefaultDedupTTL is how long a delivered live log is remembered for de-duplication
	DefaultDedupTTL = 5 * time.Minute
)

// Delegate API Constants
const (
	// DefaultDelegateTimeout bounds a single delegate API request
	DefaultDelegateTimeout = 10 * time.Second

	// DefaultProbeTimeout bounds the delegate health probe
	DefaultProbeTimeout = 3 * time.Second
)

// Storage Constants
const (
	// DefaultPebbleCacheMB is the default pebble block cache size in MB
	DefaultPebbleCacheMB = 16

	// DefaultPebbleMaxOpenFiles is the default pebble open file limit
	DefaultPebbleMaxOpenFiles = 256

	// DefaultRedisPoolSize is the default redis connection pool size
	DefaultRedisPoolSize = 10

	// DefaultRedisDialTimeout is the default redis dial timeout
	DefaultRedisDialTimeout = 5 * time.Second
)

// WebSocket Constants
const (
	// WriteWait is the time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong message from the peer
	PongWait = 60 * time.Second

	// PingPeriod sends pings to peer with this period (must be less than PongWait)
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the maximum message size allowed from peer
	MaxMessageSize = 512

	// ClientSendBufferSize is the per-client outbound buffer
	ClientSendBufferSize = 256
)

// Notification Bus Constants
const (
	// DefaultPublishBuffer is the notification bus publish queue length
	DefaultPublishBuffer = 256

	// DefaultSubscriberBuffer is the channel buffer for each bus subscriber
	DefaultSubscriberBuffer = 64
)
