package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"dailytrade/internal/command"
	"dailytrade/internal/metrics"
	"dailytrade/internal/model"
	"dailytrade/internal/store"
)

// PostCounter answers how many posts a subreddit received in the 24h window that ends on
// date, leaving out excludeUser's own posts when set.
type PostCounter interface {
	CountPosts(ctx context.Context, subreddit string, date time.Time, excludeUser string) (int, error)
}

// Message is one line of the change log, addressed to a player.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

type Service struct {
	counter  PostCounter
	universe *Universe
	ignored  map[string]bool
	log      *slog.Logger
}

func NewService(counter PostCounter, universe *Universe, ignoredUsers []string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if universe == nil {
		universe = NewUniverse(DefaultSubreddits)
	}
	ignored := make(map[string]bool, len(ignoredUsers))
	for _, u := range ignoredUsers {
		ignored[u] = true
	}
	return &Service{
		counter:  counter,
		universe: universe,
		ignored:  ignored,
		log:      logger,
	}
}

func (s *Service) Universe() *Universe {
	return s.universe
}

// Ignored reports whether comments of username are never executed.
func (s *Service) Ignored(username string) bool {
	return s.ignored[username]
}

// ExecuteComment runs the commands of one comment in order. Trades are dated postDate (the
// thread the comment was posted under); balances and loan actions are dated today.
// Validation failures become messages; a returned error means the caller must roll back.
func (s *Service) ExecuteComment(ctx context.Context, tx store.Tx, username string, cmds []command.Command, postDate, today time.Time) ([]Message, error) {
	if s.Ignored(username) || len(cmds) == 0 {
		return nil, nil
	}

	var out []Message
	add := func(text string) {
		out = append(out, Message{Username: username, Text: text})
	}

	player, err := tx.IsPlayer(ctx, username)
	if err != nil {
		return nil, err
	}
	if !player {
		if err := tx.SetBalance(ctx, username, today, StartingGems); err != nil {
			return nil, fmt.Errorf("bootstrap %s: %w", username, err)
		}
		metrics.NewPlayers.Inc()
		s.log.Info("player joined", "username", username)
		add(fmt.Sprintf("A new player: %s, has joined. Welcome! You received %d gems.", username, StartingGems))
	}

	for i, c := range cmds {
		text, err := s.Execute(ctx, tx, username, c, postDate, today)
		if err != nil {
			return nil, fmt.Errorf("%s by %s: %w", c, username, err)
		}
		add(text)
		if c.Kind == command.Exit && i < len(cmds)-1 {
			add(fmt.Sprintf("%s left the game, so the remaining commands in this comment have been ignored.", username))
			break
		}
	}
	return out, nil
}

// Execute applies a single command.
func (s *Service) Execute(ctx context.Context, tx store.Tx, username string, c command.Command, postDate, today time.Time) (string, error) {
	switch c.Kind {
	case command.Buy:
		if c.Subreddit == "" {
			return s.Unknown(username, c.Raw), nil
		}
		return s.Buy(ctx, tx, username, c.Amount, c.Subreddit, postDate, today)
	case command.Sell:
		return s.Sell(ctx, tx, username, c.Amount, c.Subreddit, postDate, today)
	case command.Loan:
		return s.Loan(ctx, tx, username, c.Amount, today)
	case command.Pay:
		return s.Pay(ctx, tx, username, c.Amount, today)
	case command.Exit:
		return s.Exit(ctx, tx, username)
	default:
		return s.Unknown(username, c.Raw), nil
	}
}

// Exit deletes everything the player owns.
func (s *Service) Exit(ctx context.Context, tx store.Tx, username string) (string, error) {
	if err := tx.DeletePlayer(ctx, username); err != nil {
		return "", err
	}
	s.log.Info("player exited", "username", username)
	return done(command.Exit, "%s decided to exit the game. Their information has been deleted. Sorry to see you go. You're always welcome to join and start over again!", username)
}

func (s *Service) Unknown(username, raw string) string {
	metrics.CommandsTotal.WithLabelValues(string(command.Unrecognized), "ok").Inc()
	return fmt.Sprintf("%s gave me the following command: '[%s]'. I do not know what to do, so no action has been taken.", username, raw)
}

// addGems changes the balance by delta. Credits saturate at MaxGems.
func (s *Service) addGems(ctx context.Context, tx store.Tx, username string, delta int64, today time.Time) (int64, error) {
	gems, err := tx.Balance(ctx, username)
	if err != nil {
		return 0, err
	}
	if !fits(gems, delta) {
		s.log.Warn("balance capped", "username", username, "gems", gems, "credit", delta)
	}
	gems = saturatingAdd(gems, delta)
	if err := tx.SetBalance(ctx, username, today, gems); err != nil {
		return 0, err
	}
	return gems, nil
}

func (s *Service) countPosts(ctx context.Context, subreddit string, date time.Time, excludeUser string) (int, error) {
	n, err := s.counter.CountPosts(ctx, subreddit, date, excludeUser)
	if err != nil {
		return 0, fmt.Errorf("%w: r/%s on %s: %w", ErrOracleUnavailable, subreddit, model.DayKey(date), err)
	}
	return n, nil
}

func (s *Service) hasPosition(ctx context.Context, tx store.Tx, username, subreddit string) (model.Position, bool, error) {
	p, err := tx.Position(ctx, username, subreddit)
	if errors.Is(err, store.ErrNotFound) {
		return model.Position{}, false, nil
	}
	if err != nil {
		return model.Position{}, false, err
	}
	return p, true, nil
}

var (
	errNotWhole = errors.New("not a whole number")
	errTooLarge = errors.New("too large")
)

// parseAmount accepts non-negative whole numbers up to MaxGems.
func parseAmount(amount string) (int64, error) {
	n, err := strconv.ParseInt(amount, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(amount, "-") {
		return 0, errTooLarge
	}
	if err != nil || n < 0 {
		return 0, errNotWhole
	}
	return n, nil
}

func saturatingAdd(a, b int64) int64 {
	if !fits(a, b) {
		return MaxGems
	}
	return a + b
}

// fits reports whether a non-negative a plus delta stays within MaxGems.
func fits(a, delta int64) bool {
	return delta <= 0 || a <= math.MaxInt64-delta
}

func done(kind command.Kind, format string, args ...any) (string, error) {
	metrics.CommandsTotal.WithLabelValues(string(kind), "ok").Inc()
	return fmt.Sprintf(format, args...), nil
}

func reject(kind command.Kind, format string, args ...any) (string, error) {
	metrics.CommandsTotal.WithLabelValues(string(kind), "rejected").Inc()
	return fmt.Sprintf(format, args...), nil
}

func postsText(posts int, username string) string {
	if posts == 1 {
		return fmt.Sprintf("There has been 1 post (not posted by %s)", username)
	}
	return fmt.Sprintf("There have been %d posts (not posted by %s)", posts, username)
}

func profitText(diff int64) string {
	switch {
	case diff == 1:
		return " This is a profit of 1 gem."
	case diff > 0:
		return fmt.Sprintf(" This is a profit of %d gems.", diff)
	case diff == -1:
		return " This is a loss of 1 gem."
	case diff < 0:
		return fmt.Sprintf(" This is a loss of %d gems.", -diff)
	}
	return ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
