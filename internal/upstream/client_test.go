package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/retry"
)

const timelineBody = `{
  "data": [
    {
      "id": "1001",
      "text": "Swapping on Jupiter again @jup_dao",
      "author_id": "42",
      "created_at": "2024-03-01T12:00:00.000Z",
      "public_metrics": {"retweet_count": 2, "reply_count": 1, "like_count": 12, "quote_count": 0},
      "entities": {"mentions": [{"username": "jup_dao", "id": "7"}], "hashtags": [{"tag": "J4J"}]},
      "referenced_tweets": [{"type": "quoted", "id": "900"}]
    }
  ],
  "includes": {
    "users": [
      {"id": "42", "username": "alice", "created_at": "2020-01-01T00:00:00.000Z", "public_metrics": {"followers_count": 310}},
      {"id": "7", "username": "jup_dao", "public_metrics": {"followers_count": 9000}}
    ],
    "tweets": [{"id": "900", "text": "original", "author_id": "7"}]
  },
  "meta": {"result_count": 1, "next_token": "abc"}
}`

type sleeps struct{ got []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

func newTestClient(t *testing.T, srv *httptest.Server, s *sleeps) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:     srv.URL,
		BearerToken: "token-123",
		Policy:      retry.Policy{Attempts: 3, Delay: time.Millisecond, Sleep: s.sleep},
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrFatalConfig))
}

func TestFetchByIdentity_ParsesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/42/tweets", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("max_results"))
		assert.Contains(t, r.URL.Query().Get("expansions"), "referenced_tweets.id.author_id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(timelineBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &sleeps{})
	page, ok := c.FetchByIdentity(context.Background(), "42", 500)
	require.True(t, ok)
	require.Len(t, page.Posts, 1)

	p := page.Posts[0]
	assert.Equal(t, "1001", p.ID)
	assert.Equal(t, "42", p.AuthorID)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), p.CreatedAt)
	assert.Equal(t, model.Metrics{Reshares: 2, Likes: 12, Replies: 1}, p.Metrics)
	assert.Equal(t, []string{"jup_dao"}, p.Mentions)
	require.Len(t, p.References, 1)
	assert.Equal(t, model.Reference{Kind: "quote", PostID: "900", AuthorID: "7", AuthorHandle: "jup_dao"}, p.References[0])

	a, ok := page.Author(p)
	require.True(t, ok)
	assert.Equal(t, "alice", a.Handle)
	assert.Equal(t, int64(310), a.FollowerCount)
	assert.Equal(t, "abc", page.NextToken)
}

func TestFetch_ThrottleHintThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(timelineBody))
	}))
	defer srv.Close()

	s := &sleeps{}
	c := newTestClient(t, srv, s)
	page, ok := c.FetchByIdentity(context.Background(), "42", 10)
	require.True(t, ok)
	assert.Len(t, page.Posts, 1)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, s.got)
}

func TestFetch_ThrottleResetHeader(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("x-rate-limit-reset", strconv.FormatInt(now.Add(90*time.Second).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(timelineBody))
	}))
	defer srv.Close()

	s := &sleeps{}
	c := newTestClient(t, srv, s)
	c.now = func() time.Time { return now }
	_, ok := c.FetchByQuery(context.Background(), []string{"Jupiter"}, 10)
	require.True(t, ok)
	assert.Equal(t, []time.Duration{90 * time.Second}, s.got)
}

func TestFetch_ClientErrorIsAbsenceWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := &sleeps{}
	c := newTestClient(t, srv, s)
	page, ok := c.FetchByIdentity(context.Background(), "42", 10)
	assert.False(t, ok)
	assert.Nil(t, page)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, s.got)
}

func TestFetch_ServerErrorRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(timelineBody))
	}))
	defer srv.Close()

	s := &sleeps{}
	c := newTestClient(t, srv, s)
	_, ok := c.FetchByIdentity(context.Background(), "42", 10)
	require.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, s.got, 2)
}

func TestFetch_ExhaustedIsAbsence(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := &sleeps{}
	c := newTestClient(t, srv, s)
	_, ok := c.FetchByIdentity(context.Background(), "42", 10)
	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{retry.DefaultThrottleWait, retry.DefaultThrottleWait}, s.got)
}

func TestFetch_MalformedBodyIsAbsence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &sleeps{})
	_, ok := c.FetchByIdentity(context.Background(), "42", 10)
	assert.False(t, ok)
}

func TestFetchByQuery_BuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, `Jupiter OR #J4J OR "jup dao"`, r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("max_results"))
		_, _ = w.Write([]byte(`{"data": [], "meta": {"result_count": 0}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &sleeps{})
	page, ok := c.FetchByQuery(context.Background(), []string{"Jupiter", "#J4J", "jup dao", "Jupiter", " "}, 1)
	require.True(t, ok)
	assert.Empty(t, page.Posts)

	_, ok = c.FetchByQuery(context.Background(), nil, 10)
	assert.False(t, ok)
}

func TestResolveHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/by/username/alice":
			_, _ = w.Write([]byte(`{"data": {"id": "42", "username": "alice"}}`))
		default:
			_, _ = w.Write([]byte(`{"errors": [{"title": "Not Found Error"}]}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &sleeps{})
	id, ok := c.ResolveHandle(context.Background(), "@alice")
	require.True(t, ok)
	assert.Equal(t, "42", id)

	_, ok = c.ResolveHandle(context.Background(), "nobody")
	assert.False(t, ok)
	_, ok = c.ResolveHandle(context.Background(), "@")
	assert.False(t, ok)
}
