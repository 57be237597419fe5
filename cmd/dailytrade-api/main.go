package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"dailytrade/internal/api"
	"dailytrade/internal/config"
	"dailytrade/internal/db"
	"dailytrade/internal/game"
	"dailytrade/internal/oracle"
	"dailytrade/internal/reddit"
	"dailytrade/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, 8)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("db migrate failed", "err", err)
		os.Exit(1)
	}
	ledger := store.NewPostgresStore(pool)

	tiers := []oracle.Cache{oracle.NewStoreCache(ledger)}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		tiers = append(tiers, oracle.NewRedisCache(rdb))
	}

	// Without credentials, virtual worth is served from cached post counts only.
	var counter *oracle.Counter
	if cfg.HasReddit() {
		rc := reddit.NewClient(reddit.Credentials{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
			UserAgent:    cfg.Reddit.UserAgent,
		}, logger)
		counter = oracle.NewCounter(rc, tiers, oracle.WithRetry(3, time.Second), oracle.WithLogger(logger))
	} else {
		counter = oracle.NewCounter(oracle.Offline{}, tiers, oracle.WithRetry(1, 0), oracle.WithLogger(logger))
	}

	subreddits := cfg.Game.Subreddits
	if subreddits == nil {
		subreddits = game.DefaultSubreddits
	}
	gameSvc := game.NewService(counter, game.NewUniverse(subreddits), cfg.Game.IgnoredUsers, logger)

	server := api.New(logger, ledger, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("dailytrade api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
