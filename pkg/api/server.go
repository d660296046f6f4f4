package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	apimiddleware "github.com/0xmhha/duelwatch/pkg/api/middleware"
	"github.com/0xmhha/duelwatch/pkg/api/websocket"
	"github.com/0xmhha/duelwatch/pkg/duel"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Queries answers the duel routes
type Queries interface {
	duel.Source
	Ecosystem(ctx context.Context) (duel.EcosystemStats, error)
}

// Observer receives request and WebSocket client metrics
type Observer interface {
	apimiddleware.RequestObserver
	websocket.ClientObserver
}

// Options carries the optional collaborators of the server
type Options struct {
	// Bus feeds the WebSocket endpoint and the health report
	Bus *notify.Bus

	Observer Observer

	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	queries  Queries
	opts     Options
	router   *chi.Mux
	server   *http.Server
	wsServer *websocket.Server
	limiter  *apimiddleware.RateLimiter
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, queries Queries, opts Options) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if queries == nil {
		return nil, errors.New("queries are required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:  config,
		logger:  logger,
		queries: queries,
		opts:    opts,
		router:  chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery must be first
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))
	if s.opts.Observer != nil {
		s.router.Use(apimiddleware.Metrics(s.opts.Observer))
	}

	if s.config.EnableRateLimit {
		s.limiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst)
		s.router.Use(apimiddleware.RateLimit(s.limiter, s.logger))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.cors)
	}
}

// cors adds headers to every response and answers preflight requests
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		for _, allowed := range s.config.AllowedOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Upgrade, Connection")
				w.Header().Set("Access-Control-Max-Age", "300")
				break
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.config.EnableWebSocket {
		var observer websocket.ClientObserver
		if s.opts.Observer != nil {
			observer = s.opts.Observer
		}
		s.wsServer = websocket.NewServer(s.opts.Bus, s.config.AllowedOrigins, observer, s.logger)
		s.router.Get(s.config.WebSocketPath, s.wsServer.ServeHTTP)
		s.logger.Info("WebSocket push enabled", zap.String("path", s.config.WebSocketPath))
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/wallet/{address}", s.handleWalletStats)
		r.Get("/duels/{address}", s.handleDuelHistory)
		r.Get("/live-feed", s.handleLiveFeed)
		r.Get("/duel/{id}/transactions", s.handleDuelTransactions)
		r.Get("/ecosystem", s.handleEcosystem)
	})
}

// Start serves until Stop; it returns nil after a graceful stop
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	// hijacked WebSocket connections are not tracked by Shutdown
	if s.wsServer != nil {
		s.wsServer.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}
