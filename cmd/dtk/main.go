package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "dailytrade/internal/cli"
	"dailytrade/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "dtk",
		Short:        "DailyTrade operator CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "DailyTrade API base URL")

	root.AddCommand(
		newPlayersCmd(&apiBase),
		newPlayerCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newLoansCmd(&apiBase),
		newSubredditsCmd(&apiBase),
		newThreadCmd(&apiBase),
		newParseCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newPlayersCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List every player with their balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			players, err := newClient(apiBase).Players(ctx)
			if err != nil {
				return err
			}
			renderPlayers(players)
			return nil
		},
	}
}

func newPlayerCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "player <username>",
		Short: "Show one player's gems, stocks and loan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var username string
			if len(args) == 1 {
				username = args[0]
			} else {
				var err error
				if username, err = promptRequired("Username"); err != nil {
					return err
				}
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := newClient(apiBase).Player(ctx, username)
			if err != nil {
				return err
			}
			renderPlayer(p)
			return nil
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var by string
	c := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank players by gems or virtual worth",
		RunE: func(cmd *cobra.Command, args []string) error {
			by = strings.ToLower(strings.TrimSpace(by))
			if by != "gems" && by != "worth" {
				return fmt.Errorf("--by must be gems or worth")
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			entries, err := newClient(apiBase).Leaderboard(ctx, by)
			if err != nil {
				return err
			}
			renderLeaderboard(entries, by)
			return nil
		},
	}
	c.Flags().StringVar(&by, "by", "gems", "ranking: gems or worth")
	return c
}

func newLoansCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "loans",
		Short: "List open loans and their daily interest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			loans, err := newClient(apiBase).Loans(ctx)
			if err != nil {
				return err
			}
			renderLoans(loans)
			return nil
		},
	}
}

func newSubredditsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "subreddits",
		Short: "List tradable subreddits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			subs, err := newClient(apiBase).Subreddits(ctx)
			if err != nil {
				return err
			}
			renderSubreddits(subs)
			return nil
		},
	}
}

func newThreadCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "thread",
		Short: "Show the current game thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			th, err := newClient(apiBase).Thread(ctx)
			if err != nil {
				return err
			}
			accent.Printf("\n== DAILYTRADE DAY %d ==\n", th.Day)
			fmt.Printf("Thread:  https://redd.it/%s\n", th.ID)
			fmt.Printf("Posted:  %s\n\n", th.Date)
			return nil
		},
	}
}

func newParseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [comment text]",
		Short: "Show how the bot would read a comment",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				var err error
				if text, err = promptRequired("Comment"); err != nil {
					return err
				}
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			cmds, err := newClient(apiBase).Parse(ctx, text)
			if err != nil {
				return err
			}
			renderCommands(cmds)
			return nil
		},
	}
}
