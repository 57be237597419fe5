package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dailytrade/internal/model"
)

// PostgresStore implements Store on the game schema (see internal/db/schema.sql).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx runs fn in a serializable transaction. A serialization failure is retried once;
// a second failure is returned to the caller.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	const maxAttempts = 2
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.inTxOnce(ctx, fn)
		if err == nil || !isSerializationError(err) {
			return err
		}
		if err := sleepWithContext(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
	return err
}

func (s *PostgresStore) inTxOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, lock: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// View runs fn in a read-only repeatable read transaction.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
	// lock makes single-row reads take FOR UPDATE locks.
	lock bool
}

func (t *pgTx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (t *pgTx) IsPlayer(ctx context.Context, username string) (bool, error) {
	return t.exists(ctx, `SELECT 1 FROM game.balances WHERE username = $1 LIMIT 1`, username)
}

func (t *pgTx) Balance(ctx context.Context, username string) (int64, error) {
	var gems int64
	err := t.tx.QueryRow(ctx, `
		SELECT gems
		FROM game.balances
		WHERE username = $1
		ORDER BY day DESC
		LIMIT 1
	`, username).Scan(&gems)
	if err != nil {
		return 0, notFound(err, "balance of %s", username)
	}
	return gems, nil
}

func (t *pgTx) SetBalance(ctx context.Context, username string, date time.Time, gems int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO game.balances (username, day, gems)
		VALUES ($1, $2, $3)
		ON CONFLICT (username, day) DO UPDATE SET gems = EXCLUDED.gems
	`, username, model.Day(date), gems)
	return err
}

func (t *pgTx) Accounts(ctx context.Context) ([]model.Account, error) {
	return t.accounts(ctx, `
		SELECT DISTINCT ON (username) username, gems, day
		FROM game.balances
		ORDER BY username, day DESC
	`)
}

func (t *pgTx) accounts(ctx context.Context, query string) ([]model.Account, error) {
	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.Username, &a.Gems, &a.Date); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) DeletePlayer(ctx context.Context, username string) error {
	for _, table := range []string{"balances", "positions", "trades", "loans", "loan_events"} {
		if _, err := t.tx.Exec(ctx, `DELETE FROM game.`+table+` WHERE username = $1`, username); err != nil {
			return fmt.Errorf("delete %s of %s: %w", table, username, err)
		}
	}
	return nil
}

func (t *pgTx) Position(ctx context.Context, username, subreddit string) (model.Position, error) {
	p := model.Position{Username: username, Subreddit: subreddit}
	err := t.tx.QueryRow(ctx, `
		SELECT amount, value
		FROM game.positions
		WHERE username = $1 AND subreddit = $2`+t.forUpdate(),
		username, subreddit).Scan(&p.Amount, &p.Value)
	if err != nil {
		return model.Position{}, notFound(err, "position %s/%s", username, subreddit)
	}
	return p, nil
}

func (t *pgTx) Positions(ctx context.Context, username string) ([]model.Position, error) {
	return t.positions(ctx, `
		SELECT username, subreddit, amount, value
		FROM game.positions
		WHERE username = $1
		ORDER BY lower(subreddit)
	`, username)
}

func (t *pgTx) AllPositions(ctx context.Context) ([]model.Position, error) {
	return t.positions(ctx, `
		SELECT username, subreddit, amount, value
		FROM game.positions
		ORDER BY username, lower(subreddit)
	`)
}

func (t *pgTx) positions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.Username, &p.Subreddit, &p.Amount, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) PutPosition(ctx context.Context, p model.Position) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO game.positions (username, subreddit, amount, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username, subreddit) DO UPDATE SET amount = EXCLUDED.amount, value = EXCLUDED.value
	`, p.Username, p.Subreddit, p.Amount, p.Value)
	return err
}

func (t *pgTx) DeletePosition(ctx context.Context, username, subreddit string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM game.positions WHERE username = $1 AND subreddit = $2`, username, subreddit)
	return err
}

func (t *pgTx) Loan(ctx context.Context, username string) (int64, error) {
	var amount int64
	err := t.tx.QueryRow(ctx, `SELECT amount FROM game.loans WHERE username = $1`+t.forUpdate(), username).Scan(&amount)
	if err != nil {
		return 0, notFound(err, "loan of %s", username)
	}
	return amount, nil
}

func (t *pgTx) Loans(ctx context.Context) ([]model.Loan, error) {
	rows, err := t.tx.Query(ctx, `SELECT username, amount FROM game.loans ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Loan
	for rows.Next() {
		var l model.Loan
		if err := rows.Scan(&l.Username, &l.Amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) PutLoan(ctx context.Context, l model.Loan) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO game.loans (username, amount)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET amount = EXCLUDED.amount
	`, l.Username, l.Amount)
	return err
}

func (t *pgTx) DeleteLoan(ctx context.Context, username string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM game.loans WHERE username = $1`, username)
	return err
}

func (t *pgTx) InsertLoanEvent(ctx context.Context, e model.LoanEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO game.loan_events (username, day, type, amount)
		VALUES ($1, $2, $3, $4)
	`, e.Username, model.Day(e.Date), string(e.Type), e.Amount)
	return duplicate(err, "loan event %s/%s/%s", e.Username, model.DayKey(e.Date), e.Type)
}

func (t *pgTx) HasLoanActivity(ctx context.Context, username string, date time.Time) (bool, error) {
	return t.exists(ctx, `
		SELECT 1 FROM game.loan_events
		WHERE username = $1 AND day = $2 AND type <> 'interest'
	`, username, model.Day(date))
}

func (t *pgTx) InsertTrade(ctx context.Context, tr model.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO game.trades (username, subreddit, day, type, amount, value)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tr.Username, tr.Subreddit, model.Day(tr.Date), string(tr.Type), tr.Amount, tr.Value)
	return duplicate(err, "trade %s/%s/%s/%s", tr.Username, tr.Subreddit, model.DayKey(tr.Date), tr.Type)
}

func (t *pgTx) HasTrade(ctx context.Context, username, subreddit string, date time.Time, typ model.TradeType) (bool, error) {
	return t.exists(ctx, `
		SELECT 1 FROM game.trades
		WHERE username = $1 AND subreddit = $2 AND day = $3 AND type = $4
	`, username, subreddit, model.Day(date), string(typ))
}

func (t *pgTx) HasTradeOfType(ctx context.Context, username string, date time.Time, typ model.TradeType) (bool, error) {
	return t.exists(ctx, `
		SELECT 1 FROM game.trades
		WHERE username = $1 AND day = $2 AND type = $3
	`, username, model.Day(date), string(typ))
}

func (s *PostgresStore) PostCount(ctx context.Context, subreddit string, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT posts FROM game.post_counts
		WHERE subreddit = $1 AND day = $2
	`, strings.ToLower(subreddit), model.Day(date)).Scan(&n)
	if err != nil {
		return 0, notFound(err, "post count %s/%s", subreddit, model.DayKey(date))
	}
	return n, nil
}

func (s *PostgresStore) PutPostCount(ctx context.Context, subreddit string, date time.Time, posts int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game.post_counts (subreddit, day, posts)
		VALUES ($1, $2, $3)
		ON CONFLICT (subreddit, day) DO NOTHING
	`, strings.ToLower(subreddit), model.Day(date), posts)
	return err
}

func (t *pgTx) LatestPost(ctx context.Context) (model.Post, error) {
	var p model.Post
	err := t.tx.QueryRow(ctx, `
		SELECT post_id, day
		FROM game.posts
		ORDER BY day DESC, created_at DESC
		LIMIT 1
	`).Scan(&p.ID, &p.Date)
	if err != nil {
		return model.Post{}, notFound(err, "latest post")
	}
	return p, nil
}

func (t *pgTx) InsertPost(ctx context.Context, p model.Post) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO game.posts (post_id, day) VALUES ($1, $2)`, p.ID, model.Day(p.Date))
	return duplicate(err, "post %s", p.ID)
}

func (t *pgTx) PostNumber(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(1) FROM game.posts`).Scan(&n)
	return n, err
}

func (t *pgTx) CommentProcessed(ctx context.Context, commentID string, date time.Time) (bool, error) {
	return t.exists(ctx, `SELECT 1 FROM game.comments WHERE comment_id = $1 AND day = $2`, commentID, model.Day(date))
}

func (t *pgTx) MarkComment(ctx context.Context, commentID string, date time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO game.comments (comment_id, day)
		VALUES ($1, $2)
		ON CONFLICT (comment_id, day) DO NOTHING
	`, commentID, model.Day(date))
	return err
}

func (t *pgTx) MarkAccrual(ctx context.Context, date time.Time) (bool, error) {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO game.accrual_runs (day)
		VALUES ($1)
		ON CONFLICT (day) DO NOTHING
	`, model.Day(date))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (t *pgTx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := t.tx.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func duplicate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf(format+": %w", append(args, ErrDuplicate)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
