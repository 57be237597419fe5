package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailytrade/internal/command"
	"dailytrade/internal/metrics"
	"dailytrade/internal/model"
	"dailytrade/internal/store"
)

// Buy spends amount gems on stocks of subreddit. The stock value is fixed at 1/posts where
// posts is the number of posts in the window ending on date, not counting the buyer's own.
func (s *Service) Buy(ctx context.Context, tx store.Tx, username, amount, subreddit string, date, today time.Time) (string, error) {
	n, err := parseAmount(amount)
	if errors.Is(err, errTooLarge) {
		return reject(command.Buy, "%s tried to buy %s stocks from r/%s, but this number is too large. The purchase has been cancelled.", username, amount, subreddit)
	}
	if err != nil {
		return reject(command.Buy, "%s tried to buy %s stocks from r/%s, but this is not a whole number. The purchase has been cancelled.", username, amount, subreddit)
	}
	sub, ok := s.universe.Canonical(subreddit)
	if !ok {
		return reject(command.Buy, "%s tried to buy stocks from r/%s, but this subreddit is not in the list of allowed subreddits. The purchase has been cancelled. If you want to be able to buy stocks from this subreddit, please respond to this message with your request.", username, subreddit)
	}

	bought, err := tx.HasTrade(ctx, username, sub, date, model.TradePurchase)
	if err != nil {
		return "", err
	}
	if bought {
		return reject(command.Buy, "%s tried to buy stocks from r/%s, but has already done so below the same post. This is not possible, so the purchase has been cancelled.", username, sub)
	}
	if n == 0 {
		return reject(command.Buy, "%s tried to buy 0 stocks from r/%s. This is not possible, so the purchase has been cancelled.", username, sub)
	}

	gems, err := tx.Balance(ctx, username)
	if err != nil {
		return "", err
	}
	clamp := ""
	if n > gems {
		if gems == 0 {
			return reject(command.Buy, "%s tried to buy %d stocks from r/%s, but only had 0 gems. The purchase has been cancelled.", username, n, sub)
		}
		clamp = fmt.Sprintf("%s tried to buy %d stocks from r/%s, but only had %d gems, so only %d stocks have been bought. ", username, n, sub, gems, gems)
		n = gems
	}

	if _, held, err := s.hasPosition(ctx, tx, username, sub); err != nil {
		return "", err
	} else if held {
		return reject(command.Buy, "%s tried to buy stocks from r/%s, but already has stocks from this subreddit. The purchase has been cancelled.", username, sub)
	}

	posts, err := s.countPosts(ctx, sub, date, username)
	if err != nil {
		return "", err
	}
	if posts == 0 {
		return reject(command.Buy, "%s tried to buy stocks from r/%s, but there were 0 posts on this subreddit. This makes it impossible to determine the stock value. The purchase has been cancelled.", username, sub)
	}

	value := PostValue(posts)
	if _, err := s.addGems(ctx, tx, username, -n, today); err != nil {
		return "", err
	}
	if err := tx.InsertTrade(ctx, model.Trade{
		Username:  username,
		Subreddit: sub,
		Date:      date,
		Type:      model.TradePurchase,
		Amount:    n,
		Value:     value,
	}); err != nil {
		return "", err
	}
	if err := tx.PutPosition(ctx, model.Position{Username: username, Subreddit: sub, Amount: n, Value: value}); err != nil {
		return "", err
	}
	metrics.GemsMoved.WithLabelValues("buy").Add(float64(n))

	return done(command.Buy, "%s%s bought %d stocks from r/%s. %s, so that means each post is worth %.5f gems per stock.",
		clamp, username, n, sub, postsText(posts, username), value)
}

// Sell liquidates part or all of a position at the current post count. Without a
// subreddit only "all" is accepted, which sells every position.
func (s *Service) Sell(ctx context.Context, tx store.Tx, username, amount, subreddit string, date, today time.Time) (string, error) {
	if subreddit == "" {
		if amount != command.AmountAll {
			return s.Unknown(username, "sell "+amount), nil
		}
		return s.SellAll(ctx, tx, username, date, today)
	}

	sub := subreddit
	if name, ok := s.universe.Canonical(subreddit); ok {
		sub = name
	}
	pos, held, err := s.hasPosition(ctx, tx, username, sub)
	if err != nil {
		return "", err
	}
	if !held {
		return reject(command.Sell, "%s tried to sell stocks from r/%s, but does not own any stocks from this subreddit. The sale has been cancelled.", username, sub)
	}

	n := pos.Amount
	if amount != command.AmountAll {
		n, err = parseAmount(amount)
		if errors.Is(err, errTooLarge) {
			return reject(command.Sell, "%s tried to sell %s stocks from r/%s, but this number is too large. The sale has been cancelled.", username, amount, sub)
		}
		if err != nil {
			return reject(command.Sell, "%s tried to sell %s stocks from r/%s, but this is not a whole number. The sale has been cancelled.", username, amount, sub)
		}
	}

	sold, err := tx.HasTrade(ctx, username, sub, date, model.TradeSale)
	if err != nil {
		return "", err
	}
	if sold {
		return reject(command.Sell, "%s tried to sell stocks from r/%s, but has already done so below the same post. This is not possible, so the sale has been cancelled.", username, sub)
	}
	if n == 0 {
		return reject(command.Sell, "%s tried to sell 0 stocks from r/%s. This is not possible, so the sale has been cancelled.", username, sub)
	}

	clamp := ""
	if n > pos.Amount {
		clamp = fmt.Sprintf("%s tried to sell %d stocks from r/%s, but only owned %d stocks, so only %d stocks have been sold. ", username, n, sub, pos.Amount, pos.Amount)
		n = pos.Amount
	}

	posts, gems, err := s.liquidate(ctx, tx, username, pos, n, date)
	if err != nil {
		return "", err
	}
	if _, err := s.addGems(ctx, tx, username, gems, today); err != nil {
		return "", err
	}

	return done(command.Sell, "%s%s sold %d stocks from r/%s. %s. Each post was worth %.5f gems per stock. This means that this sale gave %s %d gems.%s",
		clamp, username, n, sub, postsText(posts, username), pos.Value, username, gems, profitText(gems-n))
}

// SellAll liquidates every position. It is refused when any sale was already made today.
func (s *Service) SellAll(ctx context.Context, tx store.Tx, username string, date, today time.Time) (string, error) {
	sold, err := tx.HasTradeOfType(ctx, username, date, model.TradeSale)
	if err != nil {
		return "", err
	}
	if sold {
		return reject(command.Sell, "%s tried to sell all of their stocks, but they already sold one or more stocks today. This is not possible, so the sale has been cancelled.", username)
	}

	positions, err := tx.Positions(ctx, username)
	if err != nil {
		return "", err
	}
	if len(positions) == 0 {
		return reject(command.Sell, "%s tried to sell all of their stocks, but they do not own any stocks.", username)
	}

	var totalAmount, totalGems int64
	for _, p := range positions {
		_, gems, err := s.liquidate(ctx, tx, username, p, p.Amount, date)
		if err != nil {
			return "", err
		}
		totalAmount = saturatingAdd(totalAmount, p.Amount)
		totalGems = saturatingAdd(totalGems, gems)
	}
	if _, err := s.addGems(ctx, tx, username, totalGems, today); err != nil {
		return "", err
	}

	return done(command.Sell, "%s sold all of their stocks. They had a total of %d stocks, divided over %d %s. This sale gave %s %d gems.%s",
		username, totalAmount, len(positions), plural(len(positions), "subreddit", "subreddits"), username, totalGems, profitText(totalGems-totalAmount))
}

// liquidate records the sale of n stocks of p and shrinks the position. The payout is
// returned, not credited.
func (s *Service) liquidate(ctx context.Context, tx store.Tx, username string, p model.Position, n int64, date time.Time) (int, int64, error) {
	posts, err := s.countPosts(ctx, p.Subreddit, date, username)
	if err != nil {
		return 0, 0, err
	}
	gems := Payout(n, posts, p.Value)

	if err := tx.InsertTrade(ctx, model.Trade{
		Username:  username,
		Subreddit: p.Subreddit,
		Date:      date,
		Type:      model.TradeSale,
		Amount:    n,
		Value:     PostValue(posts),
	}); err != nil {
		return 0, 0, err
	}
	if n == p.Amount {
		err = tx.DeletePosition(ctx, username, p.Subreddit)
	} else {
		p.Amount -= n
		err = tx.PutPosition(ctx, p)
	}
	if err != nil {
		return 0, 0, err
	}
	metrics.GemsMoved.WithLabelValues("sell").Add(float64(gems))
	return posts, gems, nil
}
