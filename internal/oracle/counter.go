// Package oracle answers how many posts a subreddit received in the day before a game
// date. Totals are memoised per (subreddit, date); a player's own posts are subtracted on
// request.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dailytrade/internal/metrics"
	"dailytrade/internal/model"
)

var ErrUnavailable = errors.New("post count source unavailable")

const (
	DefaultAttempts = 20
	DefaultDelay    = 5 * time.Second
)

// Source queries the platform for posts created in [start, end).
type Source interface {
	SubredditPosts(ctx context.Context, subreddit string, start, end time.Time) (int, error)
	UserPosts(ctx context.Context, username, subreddit string, start, end time.Time) (int, error)
}

// Window returns the 24h window that ends at 05:00 UTC on date.
func Window(date time.Time) (start, end time.Time) {
	end = model.Day(date).Add(5 * time.Hour)
	return end.Add(-24 * time.Hour), end
}

type Option func(*Counter)

// WithRetry sets the number of attempts per source query and the fixed delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Counter) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay >= 0 {
			c.delay = delay
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Counter) {
		if logger != nil {
			c.log = logger
		}
	}
}

type Counter struct {
	src      Source
	tiers    []Cache
	attempts int
	delay    time.Duration
	log      *slog.Logger

	mu  sync.Mutex
	own map[string]int
}

// NewCounter builds a counter over src. An in-process MemoryCache is always the first tier;
// tiers are consulted after it in order.
func NewCounter(src Source, tiers []Cache, opts ...Option) *Counter {
	c := &Counter{
		src:      src,
		tiers:    append([]Cache{NewMemoryCache()}, tiers...),
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		log:      slog.Default(),
		own:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CountPosts returns the posts of subreddit in Window(date), minus those of excludeUser
// when set. The result is never negative.
func (c *Counter) CountPosts(ctx context.Context, subreddit string, date time.Time, excludeUser string) (int, error) {
	total, err := c.total(ctx, subreddit, date)
	if err != nil {
		return 0, err
	}
	if excludeUser == "" || total == 0 {
		return total, nil
	}
	own, err := c.ownPosts(ctx, excludeUser, subreddit, date)
	if err != nil {
		return 0, err
	}
	if own > total {
		return 0, nil
	}
	return total - own, nil
}

// Warm fills the caches for every subreddit so the comment pass rarely waits on the source.
func (c *Counter) Warm(ctx context.Context, subreddits []string, date time.Time) error {
	for i, sub := range subreddits {
		if _, err := c.total(ctx, sub, date); err != nil {
			return fmt.Errorf("warm r/%s: %w", sub, err)
		}
		if (i+1)%25 == 0 {
			c.log.Info("warming post counts", "done", i+1, "total", len(subreddits), "date", model.DayKey(date))
		}
	}
	return nil
}

func (c *Counter) total(ctx context.Context, subreddit string, date time.Time) (int, error) {
	for i, tier := range c.tiers {
		n, ok, err := tier.Get(ctx, subreddit, date)
		if err != nil {
			c.log.Warn("post count cache read failed", "tier", tier.Name(), "subreddit", subreddit, "err", err)
			continue
		}
		if !ok {
			continue
		}
		metrics.OracleRequests.WithLabelValues(tier.Name()).Inc()
		c.fill(ctx, c.tiers[:i], subreddit, date, n)
		return n, nil
	}

	start, end := Window(date)
	n, err := c.retry(ctx, func() (int, error) {
		return c.src.SubredditPosts(ctx, subreddit, start, end)
	})
	if err != nil {
		metrics.OracleRequests.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("posts of r/%s: %w", subreddit, err)
	}
	metrics.OracleRequests.WithLabelValues("source").Inc()
	c.fill(ctx, c.tiers, subreddit, date, n)
	return n, nil
}

func (c *Counter) ownPosts(ctx context.Context, username, subreddit string, date time.Time) (int, error) {
	key := username + "|" + cacheKey(subreddit, date)
	c.mu.Lock()
	n, ok := c.own[key]
	c.mu.Unlock()
	if ok {
		return n, nil
	}

	start, end := Window(date)
	n, err := c.retry(ctx, func() (int, error) {
		return c.src.UserPosts(ctx, username, subreddit, start, end)
	})
	if err != nil {
		return 0, fmt.Errorf("posts of u/%s in r/%s: %w", username, subreddit, err)
	}
	c.mu.Lock()
	c.own[key] = n
	c.mu.Unlock()
	return n, nil
}

func (c *Counter) fill(ctx context.Context, tiers []Cache, subreddit string, date time.Time, n int) {
	for _, tier := range tiers {
		if err := tier.Put(ctx, subreddit, date, n); err != nil {
			c.log.Warn("post count cache write failed", "tier", tier.Name(), "subreddit", subreddit, "err", err)
		}
	}
}

func (c *Counter) retry(ctx context.Context, fn func() (int, error)) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		n, err := fn()
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		metrics.OracleRetries.Inc()
		c.log.Warn("post count query failed, retrying", "attempt", attempt, "err", err)
		if err := sleepWithContext(ctx, c.delay); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, c.attempts, lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errOffline = errors.New("offline")

// Offline is a Source for processes that answer from the caches only.
type Offline struct{}

func (Offline) SubredditPosts(context.Context, string, time.Time, time.Time) (int, error) {
	return 0, errOffline
}

func (Offline) UserPosts(context.Context, string, string, time.Time, time.Time) (int, error) {
	return 0, errOffline
}
