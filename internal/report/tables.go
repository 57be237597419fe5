package report

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"dailytrade/internal/game"
	"dailytrade/internal/model"
)

// StockRow is a position with its signed profit if it were sold today.
type StockRow struct {
	model.Position
	Rate string `json:"rate"`
}

type WorthRow struct {
	Username string `json:"username"`
	Worth    int64  `json:"worth"`
}

// Snapshot is the ledger state rendered into the daily thread.
type Snapshot struct {
	Accounts   []model.Account
	Stocks     []StockRow
	Loans      []model.Loan
	Worth      []WorthRow
	Subreddits []string
}

var printer = message.NewPrinter(language.English)

var cellEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "_", `\_`, "*", `\*`)

// BuildTables renders the snapshot as the Markdown body of the daily thread.
func BuildTables(s Snapshot) string {
	var b strings.Builder
	b.WriteString("**Gems**\n\n")
	b.WriteString(gemsTable(s.Accounts, s.Loans))
	b.WriteString("\n\n**Stocks**\n\n")
	b.WriteString(stocksTable(s.Stocks))
	if len(s.Loans) > 0 {
		b.WriteString("\n\n**Loans**\n\n")
		b.WriteString(loansTable(s.Loans))
	}
	b.WriteString("\n\n**Virtual worth**\n\n")
	b.WriteString(worthTable(s.Worth))
	if len(s.Subreddits) > 0 {
		b.WriteString("\n\n**Tradable subreddits**\n\n")
		names := make([]string, len(s.Subreddits))
		for i, n := range s.Subreddits {
			names[i] = "r/" + n
		}
		b.WriteString(strings.Join(names, ", "))
	}
	return b.String()
}

// gemsTable lists balances by gems then username, both descending. Players with a loan get
// their balance after tomorrow's interest.
func gemsTable(accounts []model.Account, loans []model.Loan) string {
	rows := append([]model.Account(nil), accounts...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Gems != rows[j].Gems {
			return rows[i].Gems > rows[j].Gems
		}
		return rows[i].Username > rows[j].Username
	})

	if len(loans) == 0 {
		t := newTable("username", "gems")
		for _, a := range rows {
			t.add(cell(a.Username), gems(a.Gems))
		}
		return t.String()
	}

	principal := make(map[string]int64, len(loans))
	for _, l := range loans {
		principal[l.Username] = l.Amount
	}
	t := newTable("username", "gems", "gems after interest")
	for _, a := range rows {
		after := "-"
		if p, ok := principal[a.Username]; ok {
			after = gems(a.Gems - game.Interest(p))
		}
		t.add(cell(a.Username), gems(a.Gems), after)
	}
	return t.String()
}

func stocksTable(stocks []StockRow) string {
	rows := append([]StockRow(nil), stocks...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Username != rows[j].Username {
			return rows[i].Username < rows[j].Username
		}
		return rows[i].Subreddit < rows[j].Subreddit
	})
	t := newTable("username", "subreddit", "amount", "gems/post/stock", "current rate")
	for _, r := range rows {
		t.add(cell(r.Username), cell(r.Subreddit), gems(r.Amount), printer.Sprintf("%.5f", r.Value), cell(r.Rate))
	}
	return t.String()
}

func loansTable(loans []model.Loan) string {
	t := newTable("username", "amount")
	for _, l := range loans {
		t.add(cell(l.Username), gems(l.Amount))
	}
	return t.String()
}

func worthTable(worth []WorthRow) string {
	rows := append([]WorthRow(nil), worth...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Worth != rows[j].Worth {
			return rows[i].Worth > rows[j].Worth
		}
		return rows[i].Username > rows[j].Username
	})
	t := newTable("username", "virtual worth")
	for _, r := range rows {
		t.add(cell(r.Username), gems(r.Worth))
	}
	return t.String()
}

type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) String() string {
	if len(t.rows) == 0 {
		return "*Nothing here yet.*"
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(t.header, " | ") + " |\n")
	align := make([]string, len(t.header))
	for i := range align {
		align[i] = "---"
		if i > 0 {
			align[i] = "--:"
		}
	}
	b.WriteString("|" + strings.Join(align, "|") + "|")
	for _, r := range t.rows {
		b.WriteString("\n| " + strings.Join(r, " | ") + " |")
	}
	return b.String()
}

func cell(s string) string {
	return cellEscaper.Replace(s)
}

// gems formats n with thousands separators.
func gems(n int64) string {
	return printer.Sprintf("%d", n)
}
