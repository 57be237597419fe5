// Package store defines the ledger persistence contract of the game. PostgreSQL is the
// source of truth; the in-memory implementation backs tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"dailytrade/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store hands out transactions. Every read and write done through the Tx passed to fn
// becomes visible atomically when fn returns nil, and is discarded otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only snapshot. Reads take no row locks and
	// writes are rejected or discarded.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// PostCountStore persists the post count cache. Entries are append-only and never
// invalidated, so they live outside game transactions.
type PostCountStore interface {
	PostCount(ctx context.Context, subreddit string, date time.Time) (int, error)
	PutPostCount(ctx context.Context, subreddit string, date time.Time, posts int) error
}

type Tx interface {
	// --- Accounts ---

	IsPlayer(ctx context.Context, username string) (bool, error)
	// Balance returns the most recent balance record; ErrNotFound for non-players.
	Balance(ctx context.Context, username string) (int64, error)
	// SetBalance writes the balance for date, overwriting a record of the same date.
	SetBalance(ctx context.Context, username string, date time.Time, gems int64) error
	Accounts(ctx context.Context) ([]model.Account, error)
	// DeletePlayer removes every row that belongs to username.
	DeletePlayer(ctx context.Context, username string) error

	// --- Positions ---

	Position(ctx context.Context, username, subreddit string) (model.Position, error)
	Positions(ctx context.Context, username string) ([]model.Position, error)
	AllPositions(ctx context.Context) ([]model.Position, error)
	PutPosition(ctx context.Context, p model.Position) error
	DeletePosition(ctx context.Context, username, subreddit string) error

	// --- Loans ---

	Loan(ctx context.Context, username string) (int64, error)
	Loans(ctx context.Context) ([]model.Loan, error)
	PutLoan(ctx context.Context, l model.Loan) error
	DeleteLoan(ctx context.Context, username string) error
	InsertLoanEvent(ctx context.Context, e model.LoanEvent) error
	// HasLoanActivity reports a loan or payment event (interest excluded) on date.
	HasLoanActivity(ctx context.Context, username string, date time.Time) (bool, error)

	// --- Trades ---

	InsertTrade(ctx context.Context, t model.Trade) error
	HasTrade(ctx context.Context, username, subreddit string, date time.Time, typ model.TradeType) (bool, error)
	// HasTradeOfType ignores the subreddit.
	HasTradeOfType(ctx context.Context, username string, date time.Time, typ model.TradeType) (bool, error)

	// --- Cycle bookkeeping ---

	LatestPost(ctx context.Context) (model.Post, error)
	InsertPost(ctx context.Context, p model.Post) error
	PostNumber(ctx context.Context) (int, error)
	CommentProcessed(ctx context.Context, commentID string, date time.Time) (bool, error)
	MarkComment(ctx context.Context, commentID string, date time.Time) error
	// MarkAccrual records the interest pass for date; false when it already ran.
	MarkAccrual(ctx context.Context, date time.Time) (bool, error)
}
