package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dailytrade/internal/store"
)

// VirtualWorth is the balance plus what every position would pay out if sold on date.
func (s *Service) VirtualWorth(ctx context.Context, tx store.Tx, username string, date time.Time) (int64, error) {
	worth, err := tx.Balance(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("%s: %w", username, ErrNotPlayer)
	}
	if err != nil {
		return 0, err
	}
	positions, err := tx.Positions(ctx, username)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		posts, err := s.countPosts(ctx, p.Subreddit, date, username)
		if err != nil {
			return 0, err
		}
		worth += Payout(p.Amount, posts, p.Value)
	}
	return worth, nil
}

// Rate is the signed profit of selling amount stocks bought at value on date.
func (s *Service) Rate(ctx context.Context, username, subreddit string, amount int64, value float64, date time.Time) (int64, error) {
	posts, err := s.countPosts(ctx, subreddit, date, username)
	if err != nil {
		return 0, err
	}
	return Payout(amount, posts, value) - amount, nil
}

// CurrentRate is Rate formatted with an explicit "+" when positive.
func (s *Service) CurrentRate(ctx context.Context, username, subreddit string, amount int64, value float64, date time.Time) (string, error) {
	rate, err := s.Rate(ctx, username, subreddit, amount, value, date)
	if err != nil {
		return "", err
	}
	return FormatRate(rate), nil
}

func FormatRate(rate int64) string {
	if rate > 0 {
		return "+" + strconv.FormatInt(rate, 10)
	}
	return strconv.FormatInt(rate, 10)
}
