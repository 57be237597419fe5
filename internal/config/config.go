package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

func (c RedditConfig) complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

type GameConfig struct {
	Subreddits   []string
	IgnoredUsers []string
}

type OracleConfig struct {
	Attempts int
	Delay    time.Duration
}

type WorkerConfig struct {
	// DatabaseURL is optional; without it the ledger lives in memory for the process.
	DatabaseURL   string
	RedisURL      string
	Reddit        RedditConfig
	Game          GameConfig
	Oracle        OracleConfig
	HomeSubreddit string
	Flair         string
	SeedPostID    string
	SeedDate      time.Time
	Schedule      string
	RunOnce       bool
	MetricsAddr   string
}

type APIConfig struct {
	Addr        string
	DatabaseURL string
	RedisURL    string
	// Reddit is used for post counts the caches cannot answer; it may be left empty.
	Reddit RedditConfig
	Game   GameConfig
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		Reddit:      loadReddit(),
		Game:        loadGame(),
		Oracle: OracleConfig{
			Attempts: envIntDefault("DAILYTRADE_ORACLE_ATTEMPTS", 20),
			Delay:    envDurationDefault("DAILYTRADE_ORACLE_DELAY", 5*time.Second),
		},
		HomeSubreddit: strings.TrimPrefix(envDefault("DAILYTRADE_SUBREDDIT", "dailygames"), "r/"),
		Flair:         envDefault("DAILYTRADE_FLAIR", "[Serious]"),
		SeedPostID:    strings.TrimSpace(os.Getenv("DAILYTRADE_SEED_POST_ID")),
		Schedule:      envDefault("DAILYTRADE_SCHEDULE", "0 10 5 * * *"),
		RunOnce:       envBoolDefault("DAILYTRADE_RUN_ONCE", false),
		MetricsAddr:   strings.TrimSpace(os.Getenv("DAILYTRADE_METRICS_ADDR")),
	}
	if !cfg.Reddit.complete() {
		return cfg, fmt.Errorf("REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, REDDIT_USERNAME and REDDIT_PASSWORD are required")
	}
	if v := strings.TrimSpace(os.Getenv("DAILYTRADE_SEED_DATE")); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return cfg, fmt.Errorf("DAILYTRADE_SEED_DATE: %w", err)
		}
		cfg.SeedDate = d
	}
	return cfg, nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("DAILYTRADE_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:        addr,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		Reddit:      loadReddit(),
		Game:        loadGame(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// HasReddit reports whether the API may query Reddit for post counts.
func (c APIConfig) HasReddit() bool {
	return c.Reddit.complete()
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("DTK_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadReddit() RedditConfig {
	return RedditConfig{
		ClientID:     strings.TrimSpace(os.Getenv("REDDIT_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("REDDIT_CLIENT_SECRET")),
		Username:     strings.TrimSpace(os.Getenv("REDDIT_USERNAME")),
		Password:     os.Getenv("REDDIT_PASSWORD"),
		UserAgent:    strings.TrimSpace(os.Getenv("REDDIT_USER_AGENT")),
	}
}

// loadGame leaves a list nil when its variable is unset so callers fall back to the
// built-in defaults.
func loadGame() GameConfig {
	return GameConfig{
		Subreddits:   envListDefault("DAILYTRADE_SUBREDDITS", nil),
		IgnoredUsers: envListDefault("DAILYTRADE_IGNORED_USERS", nil),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
