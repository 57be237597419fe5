package game

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dailytrade/internal/command"
	"dailytrade/internal/model"
	"dailytrade/internal/store"
)

var (
	threadDay = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	runDay    = threadDay.AddDate(0, 0, 1)
)

type fakeCounter struct {
	counts map[string]int
	err    error
	calls  int
}

func (f *fakeCounter) CountPosts(_ context.Context, subreddit string, _ time.Time, _ string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[strings.ToLower(subreddit)], nil
}

type harness struct {
	t       *testing.T
	svc     *Service
	store   *store.MemoryStore
	counter *fakeCounter
}

func newHarness(t *testing.T, counts map[string]int) *harness {
	t.Helper()
	counter := &fakeCounter{counts: counts}
	return &harness{
		t:       t,
		svc:     NewService(counter, NewUniverse(DefaultSubreddits), DefaultIgnoredUsers, nil),
		store:   store.NewMemoryStore(),
		counter: counter,
	}
}

// comment executes text as one comment of username and returns the message texts.
func (h *harness) comment(username, text string, postDate, today time.Time) []string {
	h.t.Helper()
	var msgs []Message
	err := h.store.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		msgs, err = h.svc.ExecuteComment(context.Background(), tx, username, command.Parse(text), postDate, today)
		return err
	})
	if err != nil {
		h.t.Fatalf("execute %q: %v", text, err)
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Username != username {
			h.t.Fatalf("message addressed to %s, want %s", m.Username, username)
		}
		out = append(out, m.Text)
	}
	return out
}

func (h *harness) tx(fn func(ctx context.Context, tx store.Tx) error) {
	h.t.Helper()
	ctx := context.Background()
	if err := h.store.InTx(ctx, func(tx store.Tx) error { return fn(ctx, tx) }); err != nil {
		h.t.Fatalf("tx: %v", err)
	}
}

func (h *harness) balance(username string) int64 {
	h.t.Helper()
	var gems int64
	h.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		gems, err = tx.Balance(ctx, username)
		return err
	})
	return gems
}

func (h *harness) trades(username string, typ model.TradeType) []model.Trade {
	var out []model.Trade
	for _, tr := range h.store.Trades() {
		if tr.Username == username && tr.Type == typ {
			out = append(out, tr)
		}
	}
	return out
}

func last(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func TestNewPlayerBootstrap(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	msgs := h.comment("alice", "[loan 10]", threadDay, runDay)
	if len(msgs) != 2 {
		t.Fatalf("expected welcome + loan message, got %v", msgs)
	}
	if msgs[0] != "A new player: alice, has joined. Welcome! You received 1000 gems." {
		t.Fatalf("unexpected welcome: %q", msgs[0])
	}
	if got := h.balance("alice"); got != 1010 {
		t.Fatalf("balance: got %d want 1010", got)
	}

	if msgs := h.comment("alice", "no commands here", threadDay, runDay); len(msgs) != 0 {
		t.Fatalf("comment without commands must produce nothing: %v", msgs)
	}
}

func TestIgnoredUsersAreSkipped(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	if msgs := h.comment("B0tRank", "[buy 10 r/memes]", threadDay, runDay); len(msgs) != 0 {
		t.Fatalf("ignored user produced messages: %v", msgs)
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if ok, _ := tx.IsPlayer(ctx, "B0tRank"); ok {
			t.Fatalf("ignored user must not be bootstrapped")
		}
		return nil
	})
	if h.counter.calls != 0 {
		t.Fatalf("ignored user consulted the oracle")
	}
}

func TestBuyThenSellAtSameCountIsBreakEven(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 3})

	h.comment("alice", "[buy 300 r/memes]", threadDay, threadDay)
	if got := h.balance("alice"); got != 700 {
		t.Fatalf("after buy: got %d want 700", got)
	}

	msgs := h.comment("alice", "[sell all]", runDay, runDay)
	if got := h.balance("alice"); got != 1000 {
		t.Fatalf("after sell: got %d want 1000", got)
	}
	if strings.Contains(last(msgs), "profit") || strings.Contains(last(msgs), "loss") {
		t.Fatalf("break-even sale must not report profit or loss: %q", last(msgs))
	}
}

func TestLiquidationAtHigherCount(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 50})

	msgs := h.comment("alice", "[buy 400 r/memes]", threadDay, threadDay)
	want := "alice bought 400 stocks from r/memes. There have been 50 posts (not posted by alice), so that means each post is worth 0.02000 gems per stock."
	if last(msgs) != want {
		t.Fatalf("buy message:\n got %q\nwant %q", last(msgs), want)
	}

	h.counter.counts["memes"] = 100
	msgs = h.comment("alice", "[sell all]", runDay, runDay)
	want = "alice sold all of their stocks. They had a total of 400 stocks, divided over 1 subreddit. This sale gave alice 800 gems. This is a profit of 400 gems."
	if last(msgs) != want {
		t.Fatalf("sell message:\n got %q\nwant %q", last(msgs), want)
	}
	if got := h.balance("alice"); got != 1400 {
		t.Fatalf("balance: got %d want 1400", got)
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if ps, _ := tx.Positions(ctx, "alice"); len(ps) != 0 {
			t.Fatalf("positions left after sell all: %+v", ps)
		}
		return nil
	})
	if sales := h.trades("alice", model.TradeSale); len(sales) != 1 || sales[0].Value != 0.01 {
		t.Fatalf("sale trades: %+v", sales)
	}
}

func TestDuplicateBuySameDayIsRejected(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	msgs := h.comment("alice", "[buy 100 r/memes] [buy 100 r/memes]", threadDay, runDay)
	if !strings.Contains(last(msgs), "has already done so below the same post") {
		t.Fatalf("second buy not rejected: %q", last(msgs))
	}
	if got := len(h.trades("alice", model.TradePurchase)); got != 1 {
		t.Fatalf("purchase trades: got %d want 1", got)
	}
	if got := h.balance("alice"); got != 900 {
		t.Fatalf("balance: got %d want 900", got)
	}
}

func TestBuyClampsToBalance(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})
	h.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, "alice", threadDay, 300)
	})

	msgs := h.comment("alice", "[buy 500 r/memes]", threadDay, runDay)
	if !strings.Contains(last(msgs), "only 300 stocks have been bought") ||
		!strings.Contains(last(msgs), "alice bought 300 stocks from r/memes") {
		t.Fatalf("clamp not reported: %q", last(msgs))
	}
	if got := h.balance("alice"); got != 0 {
		t.Fatalf("balance: got %d want 0", got)
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Position(ctx, "alice", "memes")
		if err != nil || p.Amount != 300 {
			t.Fatalf("position: %+v err=%v", p, err)
		}
		return nil
	})
}

func TestBuyRejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  string
		text   string
		counts map[string]int
		want   string
	}{
		{name: "unknown subreddit", text: "[buy 100 r/not_allowed_sub]", want: "not in the list of allowed subreddits"},
		{name: "all is not a number", text: "[buy all r/memes]", want: "alice tried to buy all stocks from r/memes, but this is not a whole number."},
		{name: "zero", text: "[buy 0 r/memes]", want: "tried to buy 0 stocks"},
		{name: "zero posts", text: "[buy 10 r/chess]", counts: map[string]int{"chess": 0}, want: "there were 0 posts on this subreddit"},
		{name: "same post twice", setup: "[buy 10 r/memes]", text: "[buy 10 r/memes]", want: "has already done so"},
		{name: "no subreddit", text: "[buy 10]", want: "alice gave me the following command: '[buy 10]'. I do not know what to do"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			counts := map[string]int{"memes": 10}
			for k, v := range tc.counts {
				counts[k] = v
			}
			h := newHarness(t, counts)
			if tc.setup != "" {
				h.comment("alice", tc.setup, threadDay, runDay)
			}
			msgs := h.comment("alice", tc.text, threadDay, runDay)
			if !strings.Contains(last(msgs), tc.want) {
				t.Fatalf("got %q want substring %q", last(msgs), tc.want)
			}
		})
	}
}

func TestBuyUnknownSubredditSkipsOracle(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	h.comment("alice", "[buy 100 r/not_allowed_sub]", threadDay, runDay)
	if h.counter.calls != 0 {
		t.Fatalf("oracle consulted %d times", h.counter.calls)
	}
	if got := h.balance("alice"); got != 1000 {
		t.Fatalf("balance: got %d want 1000", got)
	}
	if got := len(h.store.Trades()); got != 0 {
		t.Fatalf("trades recorded: %d", got)
	}
}

func TestBuyExistingPositionOnNewThread(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	h.comment("alice", "[buy 10 r/memes]", threadDay, threadDay)
	msgs := h.comment("alice", "[buy 10 r/MEMES]", runDay, runDay)
	if !strings.Contains(last(msgs), "already has stocks from this subreddit") {
		t.Fatalf("got %q", last(msgs))
	}
}

func TestBuySinglePostWording(t *testing.T) {
	h := newHarness(t, map[string]int{"chess": 1})

	msgs := h.comment("alice", "[buy 5 r/Chess]", threadDay, runDay)
	want := "alice bought 5 stocks from r/chess. There has been 1 post (not posted by alice), so that means each post is worth 1.00000 gems per stock."
	if last(msgs) != want {
		t.Fatalf("got %q\nwant %q", last(msgs), want)
	}
}

func TestSellPartialAndClamp(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})
	h.comment("alice", "[buy 100 r/memes]", threadDay, threadDay)

	h.counter.counts["memes"] = 11
	msgs := h.comment("alice", "[sell 40 r/memes]", runDay, runDay)
	want := "alice sold 40 stocks from r/memes. There have been 11 posts (not posted by alice). Each post was worth 0.10000 gems per stock. This means that this sale gave alice 44 gems. This is a profit of 4 gems."
	if last(msgs) != want {
		t.Fatalf("got %q\nwant %q", last(msgs), want)
	}

	nextDay := runDay.AddDate(0, 0, 1)
	msgs = h.comment("alice", "[sell 250 r/memes]", nextDay, nextDay)
	if !strings.Contains(last(msgs), "only owned 60 stocks, so only 60 stocks have been sold") {
		t.Fatalf("clamp not reported: %q", last(msgs))
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Position(ctx, "alice", "memes"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("position must be deleted, err=%v", err)
		}
		return nil
	})
	if got := h.balance("alice"); got != 900+44+66 {
		t.Fatalf("balance: got %d want %d", got, 900+44+66)
	}
}

func TestSellRejections(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	msgs := h.comment("alice", "[sell 5 r/memes]", threadDay, runDay)
	if !strings.Contains(last(msgs), "does not own any stocks from this subreddit") {
		t.Fatalf("got %q", last(msgs))
	}
	msgs = h.comment("alice", "[sell 5]", threadDay, runDay)
	if last(msgs) != "alice gave me the following command: '[sell 5]'. I do not know what to do, so no action has been taken." {
		t.Fatalf("got %q", last(msgs))
	}
	msgs = h.comment("alice", "[sell all]", threadDay, runDay)
	if !strings.Contains(last(msgs), "they do not own any stocks") {
		t.Fatalf("got %q", last(msgs))
	}

	h.counter.counts["chess"] = 10
	h.comment("alice", "[buy 10 r/memes] [buy 10 r/chess]", threadDay, runDay)
	msgs = h.comment("alice", "[sell 1 r/memes] [sell 1 r/memes] [sell all]", threadDay, runDay)
	if !strings.Contains(msgs[1], "has already done so below the same post") {
		t.Fatalf("duplicate sale not rejected: %q", msgs[1])
	}
	if !strings.Contains(msgs[2], "already sold one or more stocks today") {
		t.Fatalf("sell all after a sale not rejected: %q", msgs[2])
	}
}

func TestLoanAndPayShareDailyLock(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.comment("alice", "[loan 1000] [pay 100]", threadDay, runDay)
	if last(msgs) != "alice tried to pay off a loan, but they already got a loan/bought off a loan today. This is not possible on the same day, so the payment has not been granted." {
		t.Fatalf("got %q", last(msgs))
	}
	msgs = h.comment("alice", "[loan 10]", threadDay, runDay)
	if !strings.Contains(last(msgs), "no loan has been granted") {
		t.Fatalf("got %q", last(msgs))
	}

	nextDay := runDay.AddDate(0, 0, 1)
	msgs = h.comment("alice", "[pay 400]", nextDay, nextDay)
	want := "alice paid off 400 gems of their loan. Now 600 gems are left in their loan. They will have to pay an interest of 30 gems each day."
	if last(msgs) != want {
		t.Fatalf("got %q\nwant %q", last(msgs), want)
	}
	if got := h.balance("alice"); got != 1600 {
		t.Fatalf("balance: got %d want 1600", got)
	}
}

func TestLoanReportsInterestOnTotalPrincipal(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.comment("alice", "[loan 100]", threadDay, runDay)
	if last(msgs) != "alice took a loan of 100 gems. They will have to pay an interest of 5 gems each day." {
		t.Fatalf("got %q", last(msgs))
	}
	nextDay := runDay.AddDate(0, 0, 1)
	msgs = h.comment("alice", "[loan 200]", nextDay, nextDay)
	if last(msgs) != "alice took a loan of 200 gems. Their loan is now 300 gems. They will have to pay an interest of 15 gems each day." {
		t.Fatalf("got %q", last(msgs))
	}
}

func TestPayChecks(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.comment("alice", "[pay 10]", threadDay, runDay)
	if !strings.Contains(last(msgs), "they don't have a loan") {
		t.Fatalf("got %q", last(msgs))
	}

	h.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, "bob", runDay, 50); err != nil {
			return err
		}
		return tx.PutLoan(ctx, model.Loan{Username: "bob", Amount: 200})
	})
	msgs = h.comment("bob", "[pay 500]", threadDay, runDay)
	if last(msgs) != "bob tried to pay back 500 gems of their loan, but only 200 gems of the loan were left. The payback has been cancelled." {
		t.Fatalf("got %q", last(msgs))
	}
	msgs = h.comment("bob", "[pay all]", threadDay, runDay)
	if last(msgs) != "bob tried to pay back 200 gems of their loan, but only had 50 gems. The payback has been cancelled." {
		t.Fatalf("got %q", last(msgs))
	}

	h.tx(func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, "bob", runDay, 500)
	})
	msgs = h.comment("bob", "[pay all]", threadDay, runDay)
	if !strings.Contains(last(msgs), "Now 0 gems are left in their loan") {
		t.Fatalf("got %q", last(msgs))
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Loan(ctx, "bob"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("repaid loan must be deleted, err=%v", err)
		}
		return nil
	})
}

func TestInterestCompoundsIntoPrincipal(t *testing.T) {
	h := newHarness(t, nil)
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, "alice", threadDay, 0); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, "bob", threadDay, 100); err != nil {
			return err
		}
		if err := tx.PutLoan(ctx, model.Loan{Username: "alice", Amount: 1000}); err != nil {
			return err
		}
		return tx.PutLoan(ctx, model.Loan{Username: "bob", Amount: 200})
	})

	var msgs []Message
	h.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		msgs, err = h.svc.AccrueInterest(ctx, tx, runDay)
		return err
	})
	if len(msgs) != 2 {
		t.Fatalf("messages: %+v", msgs)
	}
	want := "alice had to pay 50 gems as interest on their loan. They only had 0 gems. The rest has been added to their loan. Their loan is now 1050 gems, so they have to pay 52 gems interest per day."
	if msgs[0].Text != want {
		t.Fatalf("got %q\nwant %q", msgs[0].Text, want)
	}
	if msgs[1].Text != "bob has paid 10 gems as interest on their loan." {
		t.Fatalf("got %q", msgs[1].Text)
	}

	h.tx(func(ctx context.Context, tx store.Tx) error {
		if amount, _ := tx.Loan(ctx, "alice"); amount != 1050 {
			t.Fatalf("alice principal: got %d want 1050", amount)
		}
		if amount, _ := tx.Loan(ctx, "bob"); amount != 200 {
			t.Fatalf("bob principal: got %d want 200", amount)
		}
		return nil
	})
	if got := h.balance("bob"); got != 90 {
		t.Fatalf("bob balance: got %d want 90", got)
	}
	events := h.store.LoanEvents()
	if len(events) != 1 || events[0].Type != model.LoanInterest || events[0].Amount != 50 {
		t.Fatalf("loan events: %+v", events)
	}

	h.tx(func(ctx context.Context, tx store.Tx) error {
		again, err := h.svc.AccrueInterest(ctx, tx, runDay)
		if err != nil || len(again) != 0 {
			t.Fatalf("second pass on the same day: %v %v", again, err)
		}
		return nil
	})

	msgs = nil
	h.tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		msgs, err = h.svc.AccrueInterest(ctx, tx, runDay.AddDate(0, 0, 1))
		return err
	})
	if !strings.Contains(msgs[0].Text, "Their loan is now 1102 gems") {
		t.Fatalf("second day: %q", msgs[0].Text)
	}
}

func TestInterestDoesNotTakeDailyLock(t *testing.T) {
	h := newHarness(t, nil)
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, "alice", threadDay, 0); err != nil {
			return err
		}
		if err := tx.PutLoan(ctx, model.Loan{Username: "alice", Amount: 100}); err != nil {
			return err
		}
		_, err := h.svc.AccrueInterest(ctx, tx, runDay)
		return err
	})

	msgs := h.comment("alice", "[loan 50]", threadDay, runDay)
	if !strings.HasPrefix(last(msgs), "alice took a loan of 50 gems.") {
		t.Fatalf("got %q", last(msgs))
	}
}

func TestExitWipesState(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	msgs := h.comment("alice", "[buy 100 r/memes] [loan 100] [exit] [buy 10 r/chess]", threadDay, runDay)
	if len(msgs) != 5 {
		t.Fatalf("messages: %v", msgs)
	}
	if !strings.HasPrefix(msgs[3], "alice decided to exit the game.") {
		t.Fatalf("exit message: %q", msgs[3])
	}
	if !strings.Contains(msgs[4], "remaining commands in this comment have been ignored") {
		t.Fatalf("trailing commands message: %q", msgs[4])
	}

	h.tx(func(ctx context.Context, tx store.Tx) error {
		if ok, _ := tx.IsPlayer(ctx, "alice"); ok {
			t.Fatalf("alice is still a player")
		}
		if ps, _ := tx.Positions(ctx, "alice"); len(ps) != 0 {
			t.Fatalf("positions left: %+v", ps)
		}
		if _, err := tx.Loan(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("loan left: %v", err)
		}
		return nil
	})
	if got := len(h.store.Trades()); got != 0 {
		t.Fatalf("trades left: %d", got)
	}
	if got := len(h.store.LoanEvents()); got != 0 {
		t.Fatalf("loan events left: %d", got)
	}
}

func TestOracleFailureAbortsComment(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})
	h.counter.err = errors.New("reddit down")

	err := h.store.InTx(context.Background(), func(tx store.Tx) error {
		_, err := h.svc.ExecuteComment(context.Background(), tx, "alice", command.Parse("[buy 100 r/memes]"), threadDay, runDay)
		return err
	})
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if ok, _ := tx.IsPlayer(ctx, "alice"); ok {
			t.Fatalf("bootstrap must roll back with the failed command")
		}
		return nil
	})
}

func TestVirtualWorthAndCurrentRate(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 50, "chess": 4})
	h.comment("alice", "[buy 400 r/memes] [buy 100 r/chess]", threadDay, threadDay)

	h.counter.counts["memes"] = 100
	h.counter.counts["chess"] = 2
	h.tx(func(ctx context.Context, tx store.Tx) error {
		worth, err := h.svc.VirtualWorth(ctx, tx, "alice", runDay)
		if err != nil {
			t.Fatalf("virtual worth: %v", err)
		}
		if worth != 500+800+50 {
			t.Fatalf("worth: got %d want %d", worth, 500+800+50)
		}
		if _, err := h.svc.VirtualWorth(ctx, tx, "nobody", runDay); !errors.Is(err, ErrNotPlayer) {
			t.Fatalf("expected ErrNotPlayer, got %v", err)
		}
		return nil
	})

	rate, err := h.svc.CurrentRate(context.Background(), "alice", "memes", 400, 0.02, runDay)
	if err != nil || rate != "+400" {
		t.Fatalf("memes rate: %q %v", rate, err)
	}
	rate, _ = h.svc.CurrentRate(context.Background(), "alice", "chess", 100, 0.25, runDay)
	if rate != "-50" {
		t.Fatalf("chess rate: %q", rate)
	}
}

func TestSellAllAcrossSubreddits(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 3, "chess": 4})
	h.comment("alice", "[buy 300 r/memes] [buy 100 r/chess]", threadDay, threadDay)
	if got := h.balance("alice"); got != 600 {
		t.Fatalf("balance after buying: got %d want 600", got)
	}

	h.counter.counts["memes"] = 6
	h.counter.counts["chess"] = 2
	msgs := h.comment("alice", "[sell all]", runDay, runDay)
	want := "alice sold all of their stocks. They had a total of 400 stocks, divided over 2 subreddits. This sale gave alice 650 gems. This is a profit of 250 gems."
	if last(msgs) != want {
		t.Fatalf("sell message:\n got %q\nwant %q", last(msgs), want)
	}
	if got := h.balance("alice"); got != 1250 {
		t.Fatalf("balance: got %d want 1250", got)
	}

	sales := h.trades("alice", model.TradeSale)
	if len(sales) != 2 {
		t.Fatalf("sale trades: %+v", sales)
	}
	if sales[0].Subreddit != "chess" || sales[0].Amount != 100 || sales[1].Subreddit != "memes" || sales[1].Amount != 300 {
		t.Fatalf("sales must follow subreddit order: %+v", sales)
	}
	for _, s := range sales {
		if !s.Date.Equal(runDay) {
			t.Fatalf("sale dated %s, want %s", s.Date, runDay)
		}
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if ps, _ := tx.Positions(ctx, "alice"); len(ps) != 0 {
			t.Fatalf("positions left after sell all: %+v", ps)
		}
		return nil
	})
}

func TestLoanCannotOverflowBalance(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.comment("alice", "[loan 9223372036854775807]", threadDay, runDay)
	if !strings.Contains(last(msgs), "more gems than the game can hold") {
		t.Fatalf("overflowing loan granted: %q", last(msgs))
	}
	if got := h.balance("alice"); got != StartingGems {
		t.Fatalf("balance: got %d want %d", got, StartingGems)
	}
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Loan(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("rejected loan left a principal: %v", err)
		}
		return nil
	})

	msgs = h.comment("alice", "[loan 9223372036854774807]", threadDay, runDay)
	if !strings.HasPrefix(last(msgs), "alice took a loan of 9223372036854774807 gems.") {
		t.Fatalf("loan up to the limit: %q", last(msgs))
	}
	if got := h.balance("alice"); got != MaxGems {
		t.Fatalf("balance: got %d want %d", got, MaxGems)
	}
}

func TestInterestRollUpSaturates(t *testing.T) {
	h := newHarness(t, nil)
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, "alice", threadDay, 0); err != nil {
			return err
		}
		return tx.PutLoan(ctx, model.Loan{Username: "alice", Amount: MaxGems - 10})
	})
	h.tx(func(ctx context.Context, tx store.Tx) error {
		_, err := h.svc.AccrueInterest(ctx, tx, runDay)
		return err
	})
	h.tx(func(ctx context.Context, tx store.Tx) error {
		if amount, _ := tx.Loan(ctx, "alice"); amount != MaxGems {
			t.Fatalf("principal: got %d want %d", amount, MaxGems)
		}
		return nil
	})
}

func TestAmountTooLarge(t *testing.T) {
	h := newHarness(t, map[string]int{"memes": 10})

	cases := []struct {
		text string
		want string
	}{
		{"[loan 99999999999999999999]", "alice tried to take a loan of 99999999999999999999 gems, but this number is too large. The loan has not been granted."},
		{"[buy 99999999999999999999 r/memes]", "alice tried to buy 99999999999999999999 stocks from r/memes, but this number is too large. The purchase has been cancelled."},
	}
	for _, tc := range cases {
		if got := last(h.comment("alice", tc.text, threadDay, runDay)); got != tc.want {
			t.Fatalf("%s:\n got %q\nwant %q", tc.text, got, tc.want)
		}
	}
	if got := h.balance("alice"); got != StartingGems {
		t.Fatalf("balance: got %d want %d", got, StartingGems)
	}
}
