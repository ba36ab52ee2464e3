package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/alerts"
	"github.com/udoglabs/wager-engine/internal/config"
	"github.com/udoglabs/wager-engine/internal/gateway"
	"github.com/udoglabs/wager-engine/internal/hub"
	"github.com/udoglabs/wager-engine/internal/identity"
	"github.com/udoglabs/wager-engine/internal/limits"
	"github.com/udoglabs/wager-engine/internal/localstore"
	"github.com/udoglabs/wager-engine/internal/metrics"
	"github.com/udoglabs/wager-engine/internal/prices"
	"github.com/udoglabs/wager-engine/internal/session"
	"github.com/udoglabs/wager-engine/internal/wager"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Local session store ---
	store, err := localstore.Open(cfg.Session.Path)
	if err != nil {
		slog.Error("failed to open session store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// --- Data gateway ---
	gw, cleanup, err := buildGateway(rootCtx, cfg)
	if err != nil {
		slog.Error("gateway init failed", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	// --- Identity and session binding ---
	provider, err := identity.NewSimProvider(rootCtx, store)
	if err != nil {
		slog.Error("identity init failed", "err", err)
		os.Exit(1)
	}
	binder := session.NewBinder(gw, store, cfg.Wager.TokenSymbol, decimal.NewFromFloat(cfg.Wager.SeedBalance))
	sessionHandler := session.NewHandler(provider, binder)

	// Resume a persisted identity session, if any.
	if provider.Authenticated() {
		if principal, err := provider.Principal(); err == nil {
			if _, err := binder.Bind(rootCtx, principal); err != nil {
				slog.Warn("failed to rebind persisted session", "err", err)
			}
		}
	}

	// --- Event hub ---
	events := hub.New()
	go events.Run(rootCtx)

	// --- Wager service ---
	limiter := limits.NewExposureLimiter(
		decimal.NewFromFloat(cfg.Wager.MaxPerMarket),
		decimal.NewFromFloat(cfg.Wager.MaxTotal),
	)
	wagerSvc := wager.NewService(gw, binder, limiter, cfg.Wager.TokenSymbol, events)

	// --- Market data ---
	priceClient := prices.NewClient(cfg.Prices.BaseURL)
	poller := prices.NewPoller(priceClient, cfg.PollInterval(), cfg.Prices.TrackedCoins, cfg.Prices.TopCoins)
	go poller.Run(rootCtx)

	alertSvc := alerts.NewService(store, priceClient, events, cfg.AlertPollInterval())
	go alertSvc.Run(rootCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"wager-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time wager and alert events.
		r.Get("/ws", events.HandleWS)

		// Session.
		r.Post("/session/login", sessionHandler.Login)
		r.Post("/session/logout", sessionHandler.Logout)
		r.Get("/session/me", sessionHandler.Me)

		// Markets.
		r.Get("/markets", wagerSvc.ListMarkets)
		r.Post("/markets", wagerSvc.CreateMarket)
		r.Get("/markets/{marketID}", wagerSvc.GetMarket)

		// Wagers.
		r.Post("/wagers", wagerSvc.PlaceWager)
		r.Get("/portfolio", wagerSvc.GetPortfolio)
		r.Get("/balances", wagerSvc.GetBalances)
		r.Get("/transactions", wagerSvc.ListTransactions)

		// Market data.
		r.Get("/prices", poller.HandleSnapshot)
		r.Get("/prices/convert", priceClient.HandleConvert)

		// Price alerts.
		r.Get("/alerts", alertSvc.List)
		r.Post("/alerts", alertSvc.Create)
		r.Delete("/alerts/{alertID}", alertSvc.Delete)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("wager-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-rootCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("wager-engine stopped")
}

// buildGateway selects the gateway backend: hosted remote, postgres
// (optionally redis-cached), or in-memory with the demo markets seeded.
func buildGateway(ctx context.Context, cfg *config.Config) (gateway.Gateway, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	if base := cfg.Gateway.RemoteBase; base != "" {
		slog.Info("using hosted data gateway", "base", base)
		return gateway.NewRemoteGateway(base), cleanup, nil
	}

	if dbURL := cfg.Gateway.DatabaseURL; dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("database connection failed: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		var gw gateway.Gateway = gateway.NewPostgresGateway(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := cfg.Gateway.RedisURL; redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				return nil, cleanup, fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanups = append(cleanups, func() { rdb.Close() })
			gw = gateway.NewCachedGateway(gw, rdb, cfg.CacheTTL())
			slog.Info("Redis cache enabled")
		}
		return gw, cleanup, nil
	}

	slog.Warn("no gateway configured, using in-memory store (data will not persist)")
	gw := gateway.NewMemoryGateway()
	if err := gateway.SeedDemoMarkets(ctx, gw); err != nil {
		return nil, cleanup, fmt.Errorf("seed demo markets: %w", err)
	}
	return gw, cleanup, nil
}

// setupLogger configures the process-wide slog logger.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
