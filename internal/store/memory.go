package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dailytrade/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and local runs.
// A transaction works on a copy of the state that replaces the original on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState

	countsMu   sync.Mutex
	postCounts map[string]int
}

type memState struct {
	balances   map[string]map[string]int64 // username -> day -> gems
	positions  map[string]map[string]model.Position
	loans      map[string]int64
	loanEvents []model.LoanEvent
	trades     []model.Trade
	posts      []model.Post
	comments   map[string]bool
	accruals   map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			balances:  make(map[string]map[string]int64),
			positions: make(map[string]map[string]model.Position),
			loans:     make(map[string]int64),
			comments:  make(map[string]bool),
			accruals:  make(map[string]bool),
		},
		postCounts: make(map[string]int),
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View runs fn on a private copy that is dropped afterwards.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{st: s.state.clone()})
}

func (st *memState) clone() *memState {
	out := &memState{
		balances:   make(map[string]map[string]int64, len(st.balances)),
		positions:  make(map[string]map[string]model.Position, len(st.positions)),
		loans:      make(map[string]int64, len(st.loans)),
		loanEvents: append([]model.LoanEvent(nil), st.loanEvents...),
		trades:     append([]model.Trade(nil), st.trades...),
		posts:      append([]model.Post(nil), st.posts...),
		comments:   make(map[string]bool, len(st.comments)),
		accruals:   make(map[string]bool, len(st.accruals)),
	}
	for user, days := range st.balances {
		cp := make(map[string]int64, len(days))
		for d, g := range days {
			cp[d] = g
		}
		out.balances[user] = cp
	}
	for user, subs := range st.positions {
		cp := make(map[string]model.Position, len(subs))
		for k, p := range subs {
			cp[k] = p
		}
		out.positions[user] = cp
	}
	for k, v := range st.loans {
		out.loans[k] = v
	}
	for k, v := range st.comments {
		out.comments[k] = v
	}
	for k, v := range st.accruals {
		out.accruals[k] = v
	}
	return out
}

type memTx struct {
	st *memState
}

func (t *memTx) IsPlayer(_ context.Context, username string) (bool, error) {
	return len(t.st.balances[username]) > 0, nil
}

func (t *memTx) Balance(_ context.Context, username string) (int64, error) {
	days := t.st.balances[username]
	if len(days) == 0 {
		return 0, fmt.Errorf("balance of %s: %w", username, ErrNotFound)
	}
	return days[latestDay(days)], nil
}

func (t *memTx) SetBalance(_ context.Context, username string, date time.Time, gems int64) error {
	days := t.st.balances[username]
	if days == nil {
		days = make(map[string]int64)
		t.st.balances[username] = days
	}
	days[model.DayKey(date)] = gems
	return nil
}

func (t *memTx) Accounts(_ context.Context) ([]model.Account, error) {
	var out []model.Account
	for user, days := range t.st.balances {
		if len(days) == 0 {
			continue
		}
		day := latestDay(days)
		out = append(out, model.Account{Username: user, Gems: days[day], Date: parseDay(day)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (t *memTx) DeletePlayer(_ context.Context, username string) error {
	delete(t.st.balances, username)
	delete(t.st.positions, username)
	delete(t.st.loans, username)

	trades := t.st.trades[:0]
	for _, tr := range t.st.trades {
		if tr.Username != username {
			trades = append(trades, tr)
		}
	}
	t.st.trades = trades

	events := t.st.loanEvents[:0]
	for _, e := range t.st.loanEvents {
		if e.Username != username {
			events = append(events, e)
		}
	}
	t.st.loanEvents = events
	return nil
}

func (t *memTx) Position(_ context.Context, username, subreddit string) (model.Position, error) {
	p, ok := t.st.positions[username][subreddit]
	if !ok {
		return model.Position{}, fmt.Errorf("position %s/%s: %w", username, subreddit, ErrNotFound)
	}
	return p, nil
}

func (t *memTx) Positions(_ context.Context, username string) ([]model.Position, error) {
	out := make([]model.Position, 0, len(t.st.positions[username]))
	for _, p := range t.st.positions[username] {
		out = append(out, p)
	}
	sortPositions(out)
	return out, nil
}

func (t *memTx) AllPositions(_ context.Context) ([]model.Position, error) {
	var out []model.Position
	for _, subs := range t.st.positions {
		for _, p := range subs {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out, nil
}

func (t *memTx) PutPosition(_ context.Context, p model.Position) error {
	if p.Amount <= 0 {
		return fmt.Errorf("position %s/%s: amount must be > 0", p.Username, p.Subreddit)
	}
	subs := t.st.positions[p.Username]
	if subs == nil {
		subs = make(map[string]model.Position)
		t.st.positions[p.Username] = subs
	}
	subs[p.Subreddit] = p
	return nil
}

func (t *memTx) DeletePosition(_ context.Context, username, subreddit string) error {
	delete(t.st.positions[username], subreddit)
	if len(t.st.positions[username]) == 0 {
		delete(t.st.positions, username)
	}
	return nil
}

func (t *memTx) Loan(_ context.Context, username string) (int64, error) {
	amount, ok := t.st.loans[username]
	if !ok {
		return 0, fmt.Errorf("loan of %s: %w", username, ErrNotFound)
	}
	return amount, nil
}

func (t *memTx) Loans(_ context.Context) ([]model.Loan, error) {
	out := make([]model.Loan, 0, len(t.st.loans))
	for user, amount := range t.st.loans {
		out = append(out, model.Loan{Username: user, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (t *memTx) PutLoan(_ context.Context, l model.Loan) error {
	t.st.loans[l.Username] = l.Amount
	return nil
}

func (t *memTx) DeleteLoan(_ context.Context, username string) error {
	delete(t.st.loans, username)
	return nil
}

func (t *memTx) InsertLoanEvent(_ context.Context, e model.LoanEvent) error {
	for _, existing := range t.st.loanEvents {
		if existing.Username == e.Username && existing.Type == e.Type && sameDay(existing.Date, e.Date) {
			return fmt.Errorf("loan event %s/%s/%s: %w", e.Username, model.DayKey(e.Date), e.Type, ErrDuplicate)
		}
	}
	e.Date = model.Day(e.Date)
	t.st.loanEvents = append(t.st.loanEvents, e)
	return nil
}

func (t *memTx) HasLoanActivity(_ context.Context, username string, date time.Time) (bool, error) {
	for _, e := range t.st.loanEvents {
		if e.Username == username && e.Type != model.LoanInterest && sameDay(e.Date, date) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertTrade(_ context.Context, tr model.Trade) error {
	for _, existing := range t.st.trades {
		if existing.Username == tr.Username && existing.Subreddit == tr.Subreddit &&
			existing.Type == tr.Type && sameDay(existing.Date, tr.Date) {
			return fmt.Errorf("trade %s/%s/%s/%s: %w", tr.Username, tr.Subreddit, model.DayKey(tr.Date), tr.Type, ErrDuplicate)
		}
	}
	tr.Date = model.Day(tr.Date)
	t.st.trades = append(t.st.trades, tr)
	return nil
}

func (t *memTx) HasTrade(_ context.Context, username, subreddit string, date time.Time, typ model.TradeType) (bool, error) {
	for _, tr := range t.st.trades {
		if tr.Username == username && tr.Subreddit == subreddit && tr.Type == typ && sameDay(tr.Date, date) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasTradeOfType(_ context.Context, username string, date time.Time, typ model.TradeType) (bool, error) {
	for _, tr := range t.st.trades {
		if tr.Username == username && tr.Type == typ && sameDay(tr.Date, date) {
			return true, nil
		}
	}
	return false, nil
}

// Trades returns a copy of the trade ledger, for assertions in tests.
func (s *MemoryStore) Trades() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Trade(nil), s.state.trades...)
}

// LoanEvents returns a copy of the loan event ledger, for assertions in tests.
func (s *MemoryStore) LoanEvents() []model.LoanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LoanEvent(nil), s.state.loanEvents...)
}

func (s *MemoryStore) PostCount(_ context.Context, subreddit string, date time.Time) (int, error) {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	n, ok := s.postCounts[postCountKey(subreddit, date)]
	if !ok {
		return 0, fmt.Errorf("post count %s/%s: %w", subreddit, model.DayKey(date), ErrNotFound)
	}
	return n, nil
}

func (s *MemoryStore) PutPostCount(_ context.Context, subreddit string, date time.Time, posts int) error {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	key := postCountKey(subreddit, date)
	if _, ok := s.postCounts[key]; !ok {
		s.postCounts[key] = posts
	}
	return nil
}

func (t *memTx) LatestPost(_ context.Context) (model.Post, error) {
	if len(t.st.posts) == 0 {
		return model.Post{}, fmt.Errorf("latest post: %w", ErrNotFound)
	}
	latest := t.st.posts[0]
	for _, p := range t.st.posts[1:] {
		if !p.Date.Before(latest.Date) {
			latest = p
		}
	}
	return latest, nil
}

func (t *memTx) InsertPost(_ context.Context, p model.Post) error {
	for _, existing := range t.st.posts {
		if existing.ID == p.ID {
			return fmt.Errorf("post %s: %w", p.ID, ErrDuplicate)
		}
	}
	p.Date = model.Day(p.Date)
	t.st.posts = append(t.st.posts, p)
	return nil
}

func (t *memTx) PostNumber(_ context.Context) (int, error) {
	return len(t.st.posts), nil
}

func (t *memTx) CommentProcessed(_ context.Context, commentID string, date time.Time) (bool, error) {
	return t.st.comments[commentID+"|"+model.DayKey(date)], nil
}

func (t *memTx) MarkComment(_ context.Context, commentID string, date time.Time) error {
	t.st.comments[commentID+"|"+model.DayKey(date)] = true
	return nil
}

func (t *memTx) MarkAccrual(_ context.Context, date time.Time) (bool, error) {
	key := model.DayKey(date)
	if t.st.accruals[key] {
		return false, nil
	}
	t.st.accruals[key] = true
	return true, nil
}

func latestDay(days map[string]int64) string {
	var latest string
	for d := range days {
		if d > latest {
			latest = d
		}
	}
	return latest
}

func parseDay(key string) time.Time {
	d, _ := time.Parse(time.DateOnly, key)
	return d
}

func sameDay(a, b time.Time) bool {
	return model.DayKey(a) == model.DayKey(b)
}

func postCountKey(subreddit string, date time.Time) string {
	return strings.ToLower(subreddit) + "|" + model.DayKey(date)
}

func sortPositions(ps []model.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Username != ps[j].Username {
			return ps[i].Username < ps[j].Username
		}
		return strings.ToLower(ps[i].Subreddit) < strings.ToLower(ps[j].Subreddit)
	})
}
