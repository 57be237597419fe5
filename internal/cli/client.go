package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dailytrade/internal/command"
	"dailytrade/internal/model"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Player struct {
	model.Account
	Loan      int64            `json:"loan"`
	Positions []model.Position `json:"positions"`
	Worth     *int64           `json:"worth"`
}

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

type LoanInfo struct {
	model.Loan
	Interest int64 `json:"interest"`
}

type Thread struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Day  int    `json:"day"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) Players(ctx context.Context) ([]model.Account, error) {
	var out struct {
		Players []model.Account `json:"players"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/players", nil, &out)
	return out.Players, err
}

func (c *Client) Player(ctx context.Context, username string) (Player, error) {
	var out Player
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/players/"+url.PathEscape(strings.TrimPrefix(username, "u/")), nil, &out)
	return out, err
}

// Leaderboard ranks players by "gems" or "worth".
func (c *Client) Leaderboard(ctx context.Context, by string) ([]LeaderboardEntry, error) {
	var out struct {
		Entries []LeaderboardEntry `json:"entries"`
	}
	path := "/v1/leaderboard"
	if by != "" {
		path += "?by=" + url.QueryEscape(by)
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

func (c *Client) Loans(ctx context.Context) ([]LoanInfo, error) {
	var out struct {
		Loans []LoanInfo `json:"loans"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/loans", nil, &out)
	return out.Loans, err
}

func (c *Client) Subreddits(ctx context.Context) ([]string, error) {
	var out struct {
		Subreddits []string `json:"subreddits"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/subreddits", nil, &out)
	return out.Subreddits, err
}

func (c *Client) Thread(ctx context.Context) (Thread, error) {
	var out Thread
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/thread", nil, &out)
	return out, err
}

func (c *Client) Parse(ctx context.Context, text string) ([]command.Command, error) {
	var out struct {
		Commands []command.Command `json:"commands"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/parse", map[string]any{"text": text}, &out)
	return out.Commands, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, apiMessage(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiMessage unwraps the {"error": ...} body the API sends with failures.
func apiMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
