package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"dailytrade/internal/config"
	"dailytrade/internal/cycle"
	"dailytrade/internal/db"
	"dailytrade/internal/game"
	"dailytrade/internal/metrics"
	"dailytrade/internal/oracle"
	"dailytrade/internal/reddit"
	"dailytrade/internal/schedule"
	"dailytrade/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var (
		ledger store.Store
		counts store.PostCountStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, 4)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("db migrate failed", "err", err)
			os.Exit(1)
		}
		pg := store.NewPostgresStore(pool)
		ledger, counts = pg, pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger (data will not persist)")
		mem := store.NewMemoryStore()
		ledger, counts = mem, mem
	}

	tiers := []oracle.Cache{oracle.NewStoreCache(counts)}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		tiers = append(tiers, oracle.NewRedisCache(rdb))
		logger.Info("redis post count cache enabled")
	}

	rc := reddit.NewClient(reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
	}, logger)
	counter := oracle.NewCounter(rc, tiers,
		oracle.WithRetry(cfg.Oracle.Attempts, cfg.Oracle.Delay),
		oracle.WithLogger(logger),
	)

	subreddits := cfg.Game.Subreddits
	if subreddits == nil {
		subreddits = game.DefaultSubreddits
	}
	ignored := cfg.Game.IgnoredUsers
	if ignored == nil {
		ignored = game.DefaultIgnoredUsers
	}
	svc := game.NewService(counter, game.NewUniverse(subreddits), ignored, logger)
	publisher := reddit.NewPublisher(rc, cfg.HomeSubreddit, cfg.Flair, logger)
	runner := cycle.NewRunner(ledger, svc, rc, counter, publisher, cycle.WithLogger(logger))

	if cfg.SeedPostID != "" {
		seedDate := cfg.SeedDate
		if seedDate.IsZero() {
			seedDate = time.Now()
		}
		if _, err := runner.Seed(ctx, cfg.SeedPostID, seedDate); err != nil {
			logger.Error("seed thread failed", "err", err)
			os.Exit(1)
		}
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	if cfg.RunOnce {
		if _, err := runner.Run(ctx); err != nil {
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	sched := schedule.New(ctx, logger)
	id, err := sched.Add(cfg.Schedule, func(ctx context.Context) {
		if _, err := runner.Run(ctx); errors.Is(err, cycle.ErrAlreadyPublished) {
			logger.Info("cycle skipped, today's thread exists")
		}
	})
	if err != nil {
		logger.Error("invalid DAILYTRADE_SCHEDULE", "schedule", cfg.Schedule, "err", err)
		os.Exit(1)
	}
	sched.Start()
	logger.Info("worker started", "schedule", cfg.Schedule, "next_run", sched.Next(id), "subreddit", cfg.HomeSubreddit)

	<-ctx.Done()
	sched.Stop()
	logger.Info("worker shutdown")
}
