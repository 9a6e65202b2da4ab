package main

import (
	"context"
	"flag"
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

	"github.com/amx/agent-exchange/internal/bank"
	"github.com/amx/agent-exchange/internal/config"
	"github.com/amx/agent-exchange/internal/exchange"
	"github.com/amx/agent-exchange/internal/metrics"
	"github.com/amx/agent-exchange/internal/risk"
	"github.com/amx/agent-exchange/internal/server"
	"github.com/amx/agent-exchange/internal/store"
	"github.com/amx/agent-exchange/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	st, err := openStore(cfg.Store)
	if err != nil {
		slog.Error("store initialization failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// --- Core state ---
	bk := bank.New()
	exch := exchange.New()
	house := server.NewAuctionHouse()
	registry := server.NewRegistry()
	pending := server.NewPendingTrades()
	limiter := risk.NewExposureLimiter(cfg.Limits.MaxExposurePerKind, cfg.Limits.MaxTotalExposure)

	// --- Dispatcher and hub ---
	// The hub needs the dispatcher for its read pumps and the dispatcher
	// needs the hub to push; wire the hub in after construction.
	deps := server.Deps{
		Log:        logger,
		Bank:       bk,
		Exchange:   exch,
		House:      house,
		Registry:   registry,
		Pending:    pending,
		Store:      st,
		Limiter:    limiter,
		SeedMonies: cfg.Agents.SeedMonies,
		TradeTTL:   cfg.Server.TradeTTL.Duration,
	}
	dispatcher := server.NewDispatcher(deps)
	hub := server.NewHub(dispatcher)
	dispatcher.SetPusher(hub)

	// --- Sweep loop ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.Server.SweepInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				dispatcher.Sweep(now)
			case <-sweepCtx.Done():
				return
			}
		}
	}()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, bk, exch, house, dispatcher, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"agent-exchange"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for agent sessions.
		r.Get("/ws", hub.HandleWS)

		// Market management.
		r.Get("/markets", tradeSvc.ListMarkets)
		r.Post("/markets", tradeSvc.CreateMarket)
		r.Get("/markets/{marketID}", tradeSvc.GetMarket)
		r.Get("/markets/{marketID}/price", tradeSvc.GetPrice)
		r.Get("/markets/{marketID}/history", tradeSvc.GetMarketHistory)
		r.Get("/markets/{marketID}/trades", tradeSvc.GetMarketTrades)
		r.Post("/markets/{marketID}/close", tradeSvc.CloseMarket)
		r.Get("/tickers/{ticker}", tradeSvc.GetMarketByTicker)

		// Auctions.
		r.Get("/auctions", tradeSvc.ListAuctions)
		r.Post("/auctions", tradeSvc.CreateAuction)

		// Portfolio queries.
		r.Get("/portfolio/{agentID}", tradeSvc.GetPortfolio)
		r.Get("/agents/{agentID}/history", tradeSvc.GetAgentHistory)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("agent-exchange listening", "addr", cfg.Server.ListenAddr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down agent-exchange...")
	stopSweep()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("agent-exchange stopped")
}

// openStore builds the persistence stack selected by the config.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		var st store.Store = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled", "addr", cfg.RedisAddr)
		}
		return st, nil

	case "pebble":
		st, err := store.NewPebbleStore(cfg.PebblePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened Pebble store", "path", cfg.PebblePath)
		return st, nil

	default:
		slog.Warn("using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil
	}
}
