// Package cycle runs one day of the game: it charges interest, executes the commands below
// the latest thread and publishes the next thread.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dailytrade/internal/command"
	"dailytrade/internal/game"
	"dailytrade/internal/metrics"
	"dailytrade/internal/model"
	"dailytrade/internal/report"
	"dailytrade/internal/store"
)

var (
	ErrNoThread         = errors.New("no game thread recorded")
	ErrAlreadyPublished = errors.New("thread for today already published")
)

type CommentSource interface {
	Comments(ctx context.Context, postID string) ([]model.Comment, error)
}

// Publisher posts a thread with the given comments as replies, in order.
type Publisher interface {
	Publish(ctx context.Context, title, body string, comments []string) (string, []string, error)
}

// Warmer prefetches post counts for a game date.
type Warmer interface {
	Warm(ctx context.Context, subreddits []string, date time.Time) error
}

type Result struct {
	CycleID  string `json:"cycle_id"`
	Day      int    `json:"day"`
	PostID   string `json:"post_id"`
	Comments int    `json:"comments"`
	Messages int    `json:"messages"`
	LogParts int    `json:"log_parts"`
}

type Runner struct {
	store    store.Store
	svc      *game.Service
	comments CommentSource
	warmer   Warmer
	pub      Publisher
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.log = logger
		}
	}
}

func NewRunner(st store.Store, svc *game.Service, comments CommentSource, warmer Warmer, pub Publisher, opts ...Option) *Runner {
	r := &Runner{
		store:    st,
		svc:      svc,
		comments: comments,
		warmer:   warmer,
		pub:      pub,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed records postID as the first thread when no thread exists yet. It reports whether
// the post was recorded.
func (r *Runner) Seed(ctx context.Context, postID string, date time.Time) (bool, error) {
	seeded := false
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.LatestPost(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		seeded = true
		return tx.InsertPost(ctx, model.Post{ID: postID, Date: model.Day(date)})
	})
	if err != nil {
		return false, fmt.Errorf("seed thread %s: %w", postID, err)
	}
	if seeded {
		r.log.Info("seeded first thread", "post_id", postID, "date", model.DayKey(date))
	}
	return seeded, nil
}

// Run executes one cycle. Interest, every comment and the record of the new thread commit
// together once the thread is published; any earlier error leaves the ledger untouched.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	res := Result{CycleID: uuid.NewString()}
	log := r.log.With("cycle_id", res.CycleID)

	err := r.run(ctx, log, &res)
	metrics.CycleDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		log.Error("cycle failed", "err", err)
		return res, err
	}
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	log.Info("cycle complete",
		"day", res.Day,
		"post_id", res.PostID,
		"comments", res.Comments,
		"messages", res.Messages,
		"duration", time.Since(started).String(),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, res *Result) error {
	today := model.Day(r.now())

	var thread model.Post
	err := r.store.View(ctx, func(tx store.Tx) error {
		var err error
		thread, err = tx.LatestPost(ctx)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoThread
	}
	if err != nil {
		return fmt.Errorf("latest thread: %w", err)
	}
	if !thread.Date.Before(today) {
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, thread.ID)
	}
	log.Info("cycle started", "thread", thread.ID, "thread_date", model.DayKey(thread.Date), "today", model.DayKey(today))

	if err := r.warm(ctx, thread.Date, today); err != nil {
		return err
	}
	comments, err := r.comments.Comments(ctx, thread.ID)
	if err != nil {
		return fmt.Errorf("read comments: %w", err)
	}

	// The thread is published at most once, also when the store retries the transaction.
	var (
		postID     string
		commentIDs []string
		pubErr     error
	)
	err = r.store.InTx(ctx, func(tx store.Tx) error {
		res.Comments, res.Messages = 0, 0

		messages, err := r.svc.AccrueInterest(ctx, tx, today)
		if err != nil {
			return fmt.Errorf("interest: %w", err)
		}
		for _, c := range comments {
			msgs, executed, err := r.execute(ctx, tx, c, thread.Date, today)
			if err != nil {
				return err
			}
			if executed {
				res.Comments++
			}
			messages = append(messages, msgs...)
		}
		res.Messages = len(messages)

		snap, number, err := r.snapshot(ctx, tx, today)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		res.Day = number

		if postID == "" {
			parts := report.ChangeLog(report.FormatMessages(messages))
			res.LogParts = len(parts)
			replies := append([]string{report.Rules(game.StartingGems)}, parts...)
			postID, commentIDs, pubErr = r.pub.Publish(ctx, fmt.Sprintf("DailyTrade day %d", number), report.BuildTables(snap), replies)
			if postID == "" {
				if pubErr == nil {
					pubErr = errors.New("no post id returned")
				}
				return fmt.Errorf("publish: %w", pubErr)
			}
			res.PostID = postID
		}

		if err := tx.InsertPost(ctx, model.Post{ID: postID, Date: today}); err != nil {
			return fmt.Errorf("record thread %s: %w", postID, err)
		}
		for _, id := range commentIDs {
			if err := tx.MarkComment(ctx, id, today); err != nil {
				return fmt.Errorf("record reply %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		if postID != "" {
			log.Error("thread published but the day was not recorded", "post_id", postID, "err", err)
		}
		return err
	}
	metrics.CommentsProcessed.Add(float64(res.Comments))
	if pubErr != nil {
		return fmt.Errorf("publish replies of %s: %w", postID, pubErr)
	}
	return nil
}

// warm prefetches the thread date counts used by trades and today's counts used by the
// valuation tables.
func (r *Runner) warm(ctx context.Context, threadDate, today time.Time) error {
	subs := r.svc.Universe().Names()
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range []time.Time{threadDate, today} {
		d := d
		g.Go(func() error {
			if err := r.warmer.Warm(gctx, subs, d); err != nil {
				return fmt.Errorf("warm %s: %w", model.DayKey(d), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// execute runs one comment and marks it processed under the thread date.
func (r *Runner) execute(ctx context.Context, tx store.Tx, c model.Comment, threadDate, today time.Time) ([]game.Message, bool, error) {
	done, err := tx.CommentProcessed(ctx, c.ID, threadDate)
	if err != nil {
		return nil, false, fmt.Errorf("comment %s: %w", c.ID, err)
	}
	if done {
		return nil, false, nil
	}
	var msgs []game.Message
	executed := false
	if !r.svc.Ignored(c.Username) {
		msgs, err = r.svc.ExecuteComment(ctx, tx, c.Username, command.Parse(c.Body), threadDate, today)
		if err != nil {
			return nil, false, fmt.Errorf("comment %s: %w", c.ID, err)
		}
		executed = true
	}
	if err := tx.MarkComment(ctx, c.ID, threadDate); err != nil {
		return nil, false, fmt.Errorf("comment %s: %w", c.ID, err)
	}
	return msgs, executed, nil
}

func (r *Runner) snapshot(ctx context.Context, tx store.Tx, today time.Time) (report.Snapshot, int, error) {
	snap := report.Snapshot{Subreddits: r.svc.Universe().Names()}
	n, err := tx.PostNumber(ctx)
	if err != nil {
		return snap, 0, err
	}
	if snap.Accounts, err = tx.Accounts(ctx); err != nil {
		return snap, 0, err
	}
	if snap.Loans, err = tx.Loans(ctx); err != nil {
		return snap, 0, err
	}
	positions, err := tx.AllPositions(ctx)
	if err != nil {
		return snap, 0, err
	}
	snap.Stocks = make([]report.StockRow, 0, len(positions))
	for _, p := range positions {
		rate, err := r.svc.CurrentRate(ctx, p.Username, p.Subreddit, p.Amount, p.Value, today)
		if err != nil {
			return snap, 0, err
		}
		snap.Stocks = append(snap.Stocks, report.StockRow{Position: p, Rate: rate})
	}
	snap.Worth = make([]report.WorthRow, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		worth, err := r.svc.VirtualWorth(ctx, tx, a.Username, today)
		if err != nil {
			return snap, 0, err
		}
		snap.Worth = append(snap.Worth, report.WorthRow{Username: a.Username, Worth: worth})
	}
	return snap, n + 1, nil
}
