package upstream

import (
	"time"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// Author is an account expanded alongside a page of posts.
type Author struct {
	ID            string
	Handle        string
	FollowerCount int64
	CreatedAt     time.Time
}

// RawPost is a post as returned by the upstream API, before scoring.
type RawPost struct {
	ID         string
	Text       string
	AuthorID   string
	CreatedAt  time.Time
	Metrics    model.Metrics
	Mentions   []string
	References []model.Reference
}

// Page is one page of upstream results with its expanded authors.
type Page struct {
	Posts     []RawPost
	Authors   map[string]Author
	NextToken string
}

// Author returns the expanded author of p, if present on the page.
func (pg *Page) Author(p RawPost) (Author, bool) {
	if pg == nil || pg.Authors == nil {
		return Author{}, false
	}
	a, ok := pg.Authors[p.AuthorID]
	return a, ok
}

type wirePublicMetrics struct {
	RetweetCount   int64 `json:"retweet_count"`
	ReplyCount     int64 `json:"reply_count"`
	LikeCount      int64 `json:"like_count"`
	QuoteCount     int64 `json:"quote_count"`
	FollowersCount int64 `json:"followers_count"`
}

type wireTweet struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	AuthorID      string            `json:"author_id"`
	CreatedAt     string            `json:"created_at"`
	PublicMetrics wirePublicMetrics `json:"public_metrics"`
	Entities      struct {
		Mentions []struct {
			Username string `json:"username"`
			ID       string `json:"id"`
		} `json:"mentions"`
	} `json:"entities"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type wireUser struct {
	ID            string            `json:"id"`
	Username      string            `json:"username"`
	CreatedAt     string            `json:"created_at"`
	PublicMetrics wirePublicMetrics `json:"public_metrics"`
}

type wireTimeline struct {
	Data     []wireTweet `json:"data"`
	Includes struct {
		Users  []wireUser  `json:"users"`
		Tweets []wireTweet `json:"tweets"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type wireUserLookup struct {
	Data *wireUser `json:"data"`
}

var referenceKinds = map[string]string{
	"retweeted":  model.RefReshare,
	"quoted":     model.RefQuote,
	"replied_to": model.RefReply,
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// toPage converts a decoded timeline/search body into a Page, resolving each
// reference's author through the included tweets and users.
func toPage(w *wireTimeline) *Page {
	users := make(map[string]wireUser, len(w.Includes.Users))
	authors := make(map[string]Author, len(w.Includes.Users))
	for _, u := range w.Includes.Users {
		users[u.ID] = u
		authors[u.ID] = Author{
			ID:            u.ID,
			Handle:        u.Username,
			FollowerCount: u.PublicMetrics.FollowersCount,
			CreatedAt:     parseTime(u.CreatedAt),
		}
	}
	included := make(map[string]wireTweet, len(w.Includes.Tweets))
	for _, t := range w.Includes.Tweets {
		included[t.ID] = t
	}

	posts := make([]RawPost, 0, len(w.Data))
	for _, t := range w.Data {
		p := RawPost{
			ID:        t.ID,
			Text:      t.Text,
			AuthorID:  t.AuthorID,
			CreatedAt: parseTime(t.CreatedAt),
			Metrics: model.Metrics{
				Reshares: t.PublicMetrics.RetweetCount,
				Likes:    t.PublicMetrics.LikeCount,
				Replies:  t.PublicMetrics.ReplyCount,
				Quotes:   t.PublicMetrics.QuoteCount,
			},
		}
		for _, m := range t.Entities.Mentions {
			p.Mentions = append(p.Mentions, m.Username)
		}
		for _, rt := range t.ReferencedTweets {
			kind, ok := referenceKinds[rt.Type]
			if !ok {
				kind = rt.Type
			}
			ref := model.Reference{Kind: kind, PostID: rt.ID}
			if target, ok := included[rt.ID]; ok {
				ref.AuthorID = target.AuthorID
				if u, ok := users[target.AuthorID]; ok {
					ref.AuthorHandle = u.Username
				}
			}
			p.References = append(p.References, ref)
		}
		posts = append(posts, p)
	}
	return &Page{Posts: posts, Authors: authors, NextToken: w.Meta.NextToken}
}
