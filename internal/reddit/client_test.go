package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var windowEnd = time.Date(2025, 3, 2, 5, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var logins int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&logins, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "password" || r.Form.Get("username") != "dailytradebot" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600,"scope":"*"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(Credentials{ClientID: "id", ClientSecret: "secret", Username: "dailytradebot", Password: "pw"}, nil)
	c.AuthURL = srv.URL
	c.APIURL = srv.URL
	return c, &logins
}

func post(id, sub string, created time.Time) string {
	return fmt.Sprintf(`{"kind":"t3","data":{"id":%q,"author":"x","subreddit":%q,"created_utc":%d}}`, id, sub, created.Unix())
}

func TestSubredditPostsCountsWindowAcrossPages(t *testing.T) {
	c, logins := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/memes/new" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("after") {
		case "":
			fmt.Fprintf(w, `{"kind":"Listing","data":{"after":"t3_b","children":[%s,%s]}}`,
				post("a", "memes", windowEnd.Add(time.Minute)),
				post("b", "memes", windowEnd.Add(-time.Hour)))
		case "t3_b":
			fmt.Fprintf(w, `{"kind":"Listing","data":{"after":"t3_d","children":[%s,%s]}}`,
				post("c", "memes", windowEnd.Add(-23*time.Hour)),
				post("d", "memes", windowEnd.Add(-25*time.Hour)))
		default:
			t.Errorf("paged past the window start")
		}
	})

	n, err := c.SubredditPosts(context.Background(), "memes", windowEnd.Add(-24*time.Hour), windowEnd)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d want 2", n)
	}
	if *logins != 1 {
		t.Fatalf("token must be reused, logins=%d", *logins)
	}
}

func TestUserPostsFiltersSubreddit(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/alice/submitted" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"kind":"Listing","data":{"after":"","children":[%s,%s,%s]}}`,
			post("a", "Memes", windowEnd.Add(-time.Hour)),
			post("b", "chess", windowEnd.Add(-2*time.Hour)),
			post("c", "memes", windowEnd.Add(-3*time.Hour)))
	})

	n, err := c.UserPosts(context.Background(), "alice", "memes", windowEnd.Add(-24*time.Hour), windowEnd)
	if err != nil || n != 2 {
		t.Fatalf("got %d %v", n, err)
	}
}

func TestCommentsFlattensRepliesAndMore(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/comments/abc":
			fmt.Fprint(w, `[
				{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"abc"}}]}},
				{"kind":"Listing","data":{"children":[
					{"kind":"t1","data":{"id":"c1","author":"alice","body":"[buy 10 r/memes]","created_utc":100,
						"replies":{"kind":"Listing","data":{"children":[
							{"kind":"t1","data":{"id":"c2","author":"bob","body":"[loan 5]","created_utc":300,"replies":""}}
						]}}}},
					{"kind":"t1","data":{"id":"c3","author":"[deleted]","body":"[deleted]","created_utc":150,"replies":""}},
					{"kind":"more","data":{"children":["c4"]}}
				]}}
			]`)
		case "/api/morechildren":
			if r.URL.Query().Get("children") != "c4" || r.URL.Query().Get("link_id") != "t3_abc" {
				t.Errorf("unexpected morechildren query %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, `{"json":{"errors":[],"data":{"things":[
				{"kind":"t1","data":{"id":"c4","author":"carol","body":"[exit]","created_utc":200,"replies":""}}
			]}}}`)
		default:
			http.NotFound(w, r)
		}
	})

	comments, err := c.Comments(context.Background(), "abc")
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	var ids []string
	for _, cm := range comments {
		ids = append(ids, cm.ID)
	}
	if got := strings.Join(ids, ","); got != "c1,c4,c2" {
		t.Fatalf("order: got %s want c1,c4,c2", got)
	}
	if comments[0].Username != "alice" || comments[0].Body != "[buy 10 r/memes]" {
		t.Fatalf("first comment: %+v", comments[0])
	}
}

func TestPublisherSubmitsAndReplies(t *testing.T) {
	var replies []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("form: %v", err)
			return
		}
		switch r.URL.Path {
		case "/r/dailygames/api/link_flair_v2":
			fmt.Fprint(w, `[{"id":"f1","text":"[Fun]"},{"id":"f2","text":"[Serious]"}]`)
		case "/api/submit":
			if r.Form.Get("sr") != "dailygames" || r.Form.Get("title") != "DailyTrade day 3" || r.Form.Get("flair_id") != "f2" {
				t.Errorf("unexpected submit form %v", r.Form)
			}
			fmt.Fprint(w, `{"json":{"errors":[],"data":{"id":"p9","name":"t3_p9","url":"https://reddit.com/p9"}}}`)
		case "/api/comment":
			if r.Form.Get("thing_id") != "t3_p9" {
				t.Errorf("reply to %s", r.Form.Get("thing_id"))
			}
			replies = append(replies, r.Form.Get("text"))
			fmt.Fprintf(w, `{"json":{"errors":[],"data":{"things":[{"kind":"t1","data":{"id":"r%d"}}]}}}`, len(replies))
		default:
			http.NotFound(w, r)
		}
	})

	p := NewPublisher(c, "dailygames", "[Serious]", nil)
	postID, ids, err := p.Publish(context.Background(), "DailyTrade day 3", "tables", []string{"rules", "log"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if postID != "p9" || strings.Join(ids, ",") != "r1,r2" {
		t.Fatalf("got post=%s comments=%v", postID, ids)
	}
	if strings.Join(replies, "|") != "rules|log" {
		t.Fatalf("replies: %v", replies)
	}
}

func TestSubmitReportsAPIErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"json":{"errors":[["RATELIMIT","you are doing that too much","ratelimit"]]}}`)
	})

	if _, err := c.Submit(context.Background(), "dailygames", "t", "b", ""); err == nil || !strings.Contains(err.Error(), "RATELIMIT") {
		t.Fatalf("expected RATELIMIT error, got %v", err)
	}
}
