package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	cl "dailytrade/internal/cli"
	"dailytrade/internal/command"
	"dailytrade/internal/model"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	numbers     = message.NewPrinter(language.English)
)

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		v, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		v = strings.TrimSpace(v)
		if v != "" {
			return v, nil
		}
		printWarn(label + " is required.")
	}
}

func renderPlayers(players []model.Account) {
	accent.Println("\n== PLAYERS ==")
	if len(players) == 0 {
		printInfo("Nobody is playing yet.")
		return
	}
	fmt.Printf("%-22s %14s %12s\n", "PLAYER", "GEMS", "SINCE")
	for _, p := range players {
		fmt.Printf("%-22s %14s %12s\n", truncate(p.Username, 22), comma(p.Gems), model.DayKey(p.Date))
	}
	fmt.Println()
}

func renderPlayer(p cl.Player) {
	accent.Printf("\n== u/%s ==\n", p.Username)
	fmt.Printf("Gems:           %s\n", comma(p.Gems))
	if p.Worth != nil {
		fmt.Printf("Virtual worth:  %s\n", comma(*p.Worth))
	} else {
		fmt.Printf("Virtual worth:  %s\n", warn.Sprint("unavailable"))
	}
	if p.Loan > 0 {
		fmt.Printf("Loan:           %s\n", danger.Sprint(comma(p.Loan)))
	}

	fmt.Println()
	accent.Println("Stocks")
	if len(p.Positions) == 0 {
		printInfo("No stocks.")
		fmt.Println()
		return
	}
	fmt.Printf("%-24s %12s %16s\n", "SUBREDDIT", "AMOUNT", "GEMS/POST/STOCK")
	for _, pos := range p.Positions {
		fmt.Printf("%-24s %12s %16.5f\n", truncate("r/"+pos.Subreddit, 24), comma(pos.Amount), pos.Value)
	}
	fmt.Println()
}

func renderLeaderboard(entries []cl.LeaderboardEntry, by string) {
	title := "GEMS"
	if by == "worth" {
		title = "VIRTUAL WORTH"
	}
	accent.Printf("\n== LEADERBOARD BY %s ==\n", title)
	if len(entries) == 0 {
		printInfo("No players yet.")
		return
	}
	fmt.Printf("%-6s %-22s %14s\n", "RANK", "PLAYER", title)
	for _, e := range entries {
		fmt.Printf("%-6d %-22s %14s\n", e.Rank, truncate(e.Username, 22), colorizeGems(e.Score))
	}
	fmt.Println()
}

func renderLoans(loans []cl.LoanInfo) {
	accent.Println("\n== LOANS ==")
	if len(loans) == 0 {
		printInfo("No open loans.")
		return
	}
	fmt.Printf("%-22s %14s %14s\n", "PLAYER", "PRINCIPAL", "INTEREST/DAY")
	for _, l := range loans {
		fmt.Printf("%-22s %14s %14s\n", truncate(l.Username, 22), comma(l.Amount), danger.Sprint(comma(l.Interest)))
	}
	fmt.Println()
}

func renderSubreddits(subs []string) {
	accent.Printf("\n== TRADABLE SUBREDDITS (%d) ==\n", len(subs))
	for i, s := range subs {
		fmt.Printf("%-26s", "r/"+s)
		if (i+1)%3 == 0 || i == len(subs)-1 {
			fmt.Println()
		}
	}
	fmt.Println()
}

func renderCommands(cmds []command.Command) {
	if len(cmds) == 0 {
		printWarn("No bracketed commands found.")
		return
	}
	for i, c := range cmds {
		switch c.Kind {
		case command.Unrecognized:
			fmt.Printf("%2d. %s %s\n", i+1, danger.Sprint("unknown"), c)
		default:
			detail := strings.TrimSpace(c.Amount + " " + subredditLabel(c.Subreddit))
			fmt.Printf("%2d. %s %s\n", i+1, success.Sprint(string(c.Kind)), detail)
		}
	}
}

func subredditLabel(s string) string {
	if s == "" {
		return ""
	}
	return "r/" + s
}

func colorizeGems(v int64) string {
	text := comma(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	return numbers.Sprintf("%d", v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
