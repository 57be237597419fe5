package reddit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Submit creates a self post and returns its id.
func (c *Client) Submit(ctx context.Context, subreddit, title, body, flairID string) (string, error) {
	form := url.Values{
		"api_type": {"json"},
		"kind":     {"self"},
		"sr":       {subreddit},
		"title":    {title},
		"text":     {body},
	}
	if flairID != "" {
		form.Set("flair_id", flairID)
	}
	var resp struct {
		JSON struct {
			Errors apiErrors `json:"errors"`
			Data   struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := c.postForm(ctx, "/api/submit", form, &resp); err != nil {
		return "", fmt.Errorf("submit to r/%s: %w", subreddit, err)
	}
	if err := resp.JSON.Errors.err(); err != nil {
		return "", err
	}
	id := resp.JSON.Data.ID
	if id == "" {
		id = strings.TrimPrefix(resp.JSON.Data.Name, "t3_")
	}
	if id == "" {
		return "", fmt.Errorf("submit to r/%s: no post id in response", subreddit)
	}
	return id, nil
}

// Reply comments on the post postID and returns the comment id.
func (c *Client) Reply(ctx context.Context, postID, text string) (string, error) {
	var resp struct {
		JSON struct {
			Errors apiErrors `json:"errors"`
			Data   struct {
				Things []struct {
					Data struct {
						ID string `json:"id"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	err := c.postForm(ctx, "/api/comment", url.Values{
		"api_type": {"json"},
		"thing_id": {"t3_" + postID},
		"text":     {text},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("reply to %s: %w", postID, err)
	}
	if err := resp.JSON.Errors.err(); err != nil {
		return "", err
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("reply to %s: no comment in response", postID)
	}
	return resp.JSON.Data.Things[0].Data.ID, nil
}

// FlairID looks up the link flair template whose text is flairText.
func (c *Client) FlairID(ctx context.Context, subreddit, flairText string) (string, error) {
	var flairs []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	if err := c.getJSON(ctx, "/r/"+url.PathEscape(subreddit)+"/api/link_flair_v2", nil, &flairs); err != nil {
		return "", fmt.Errorf("flairs of r/%s: %w", subreddit, err)
	}
	for _, f := range flairs {
		if f.Text == flairText {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("flair %q not found in r/%s", flairText, subreddit)
}

// Publisher posts the daily thread into the home subreddit.
type Publisher struct {
	client    *Client
	subreddit string
	flairText string
	log       *slog.Logger
}

func NewPublisher(client *Client, subreddit, flairText string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, subreddit: subreddit, flairText: flairText, log: logger}
}

// Publish submits the thread and then replies with each comment in order. It returns the
// new post id and the ids of the bot's own comments.
func (p *Publisher) Publish(ctx context.Context, title, body string, comments []string) (string, []string, error) {
	flairID := ""
	if p.flairText != "" {
		id, err := p.client.FlairID(ctx, p.subreddit, p.flairText)
		if err != nil {
			p.log.Warn("posting without flair", "flair", p.flairText, "err", err)
		}
		flairID = id
	}

	postID, err := p.client.Submit(ctx, p.subreddit, title, body, flairID)
	if err != nil {
		return "", nil, err
	}
	p.log.Info("thread posted", "post_id", postID, "title", title)

	ids := make([]string, 0, len(comments))
	for _, text := range comments {
		id, err := p.client.Reply(ctx, postID, text)
		if err != nil {
			return postID, ids, err
		}
		ids = append(ids, id)
	}
	return postID, ids, nil
}
