// Package model holds the ledger entities shared by the engine, the stores and the reports.
package model

import "time"

type TradeType string

const (
	TradePurchase TradeType = "purchase"
	TradeSale     TradeType = "sale"
)

type LoanEventType string

const (
	LoanTaken    LoanEventType = "loan"
	LoanPayment  LoanEventType = "payment"
	LoanInterest LoanEventType = "interest"
)

// Account is the most recent dated balance of a player.
type Account struct {
	Username string    `json:"username"`
	Gems     int64     `json:"gems"`
	Date     time.Time `json:"date"`
}

// Position is one user's holding in one subreddit. Value is the number of gems a single
// post is worth per stock, fixed when the position was bought.
type Position struct {
	Username  string  `json:"username"`
	Subreddit string  `json:"subreddit"`
	Amount    int64   `json:"amount"`
	Value     float64 `json:"value"`
}

type Loan struct {
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

type LoanEvent struct {
	Username string        `json:"username"`
	Date     time.Time     `json:"date"`
	Type     LoanEventType `json:"type"`
	Amount   int64         `json:"amount"`
}

type Trade struct {
	Username  string    `json:"username"`
	Subreddit string    `json:"subreddit"`
	Date      time.Time `json:"date"`
	Type      TradeType `json:"type"`
	Amount    int64     `json:"amount"`
	Value     float64   `json:"value"`
}

// Post is a daily game thread published by the bot.
type Post struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
}

// Comment is a reply below a game thread, in arrival order.
type Comment struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DayKey(t time.Time) string {
	return Day(t).Format(time.DateOnly)
}
