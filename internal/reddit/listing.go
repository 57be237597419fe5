package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"dailytrade/internal/model"
)

// maxListing is the number of items Reddit serves for one listing, however it is paged.
const maxListing = 1000

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type commentData struct {
	ID         string          `json:"id"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

type moreData struct {
	Children []string `json:"children"`
}

type linkData struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
}

type apiErrors [][]any

func (e apiErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	parts := make([]string, 0, len(e))
	for _, item := range e {
		parts = append(parts, strings.TrimSpace(fmt.Sprintln(item...)))
	}
	return fmt.Errorf("reddit api: %s", strings.Join(parts, "; "))
}

func unix(seconds float64) time.Time {
	return time.Unix(int64(seconds), 0).UTC()
}

// Comments returns every comment below postID, nested replies included, oldest first.
// Comments of deleted accounts are dropped.
func (c *Client) Comments(ctx context.Context, postID string) ([]model.Comment, error) {
	var listings []listing
	err := c.getJSON(ctx, "/comments/"+url.PathEscape(postID), url.Values{
		"sort":     {"old"},
		"limit":    {"500"},
		"raw_json": {"1"},
	}, &listings)
	if err != nil {
		return nil, fmt.Errorf("comments of %s: %w", postID, err)
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("comments of %s: unexpected response with %d listings", postID, len(listings))
	}

	var out []model.Comment
	var more []string
	if err := walk(listings[1].Data.Children, &out, &more); err != nil {
		return nil, err
	}

	for len(more) > 0 {
		n := min(len(more), 100)
		batch := more[:n]
		more = more[n:]

		var resp struct {
			JSON struct {
				Errors apiErrors `json:"errors"`
				Data   struct {
					Things []thing `json:"things"`
				} `json:"data"`
			} `json:"json"`
		}
		err := c.getJSON(ctx, "/api/morechildren", url.Values{
			"api_type": {"json"},
			"link_id":  {"t3_" + postID},
			"children": {strings.Join(batch, ",")},
			"sort":     {"old"},
			"raw_json": {"1"},
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("more comments of %s: %w", postID, err)
		}
		if err := resp.JSON.Errors.err(); err != nil {
			return nil, err
		}
		if err := walk(resp.JSON.Data.Things, &out, &more); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func walk(things []thing, out *[]model.Comment, more *[]string) error {
	for _, t := range things {
		switch t.Kind {
		case "t1":
			var d commentData
			if err := json.Unmarshal(t.Data, &d); err != nil {
				return fmt.Errorf("decode comment: %w", err)
			}
			if d.Author != "" && d.Author != "[deleted]" {
				*out = append(*out, model.Comment{ID: d.ID, Username: d.Author, Body: d.Body, Created: unix(d.CreatedUTC)})
			}
			if len(d.Replies) > 0 && d.Replies[0] == '{' {
				var replies listing
				if err := json.Unmarshal(d.Replies, &replies); err != nil {
					return fmt.Errorf("decode replies: %w", err)
				}
				if err := walk(replies.Data.Children, out, more); err != nil {
					return err
				}
			}
		case "more":
			var d moreData
			if err := json.Unmarshal(t.Data, &d); err != nil {
				return fmt.Errorf("decode more: %w", err)
			}
			*more = append(*more, d.Children...)
		}
	}
	return nil
}

// SubredditPosts counts the posts of subreddit created in [start, end).
func (c *Client) SubredditPosts(ctx context.Context, subreddit string, start, end time.Time) (int, error) {
	return c.countLinks(ctx, "/r/"+url.PathEscape(subreddit)+"/new", start, end, func(linkData) bool { return true })
}

// UserPosts counts the posts username made in subreddit in [start, end).
func (c *Client) UserPosts(ctx context.Context, username, subreddit string, start, end time.Time) (int, error) {
	return c.countLinks(ctx, "/user/"+url.PathEscape(username)+"/submitted", start, end, func(d linkData) bool {
		return strings.EqualFold(d.Subreddit, subreddit)
	})
}

// countLinks pages through a newest-first listing and stops at the first post older
// than start.
func (c *Client) countLinks(ctx context.Context, path string, start, end time.Time, match func(linkData) bool) (int, error) {
	count, seen := 0, 0
	after := ""
	for seen < maxListing {
		q := url.Values{"limit": {"100"}, "sort": {"new"}, "raw_json": {"1"}}
		if after != "" {
			q.Set("after", after)
		}
		var l listing
		if err := c.getJSON(ctx, path, q, &l); err != nil {
			return 0, err
		}
		if len(l.Data.Children) == 0 {
			return count, nil
		}
		for _, t := range l.Data.Children {
			var d linkData
			if err := json.Unmarshal(t.Data, &d); err != nil {
				return 0, fmt.Errorf("decode post: %w", err)
			}
			seen++
			created := unix(d.CreatedUTC)
			if created.Before(start) {
				return count, nil
			}
			if created.Before(end) && match(d) {
				count++
			}
		}
		if l.Data.After == "" {
			break
		}
		after = l.Data.After
	}
	return count, nil
}
