package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/eligibility"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/ingest"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store/sqlite"
)

type mapResolver map[string]string

func (m mapResolver) ResolveHandle(_ context.Context, handle string) (string, bool) {
	id, ok := m[handle]
	return id, ok
}

type staticHealth struct{ ok bool }

func (s staticHealth) IsHealthy() bool { return s.ok }
func (s staticHealth) Components() map[string]bool {
	return map[string]bool{"store": s.ok}
}

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

type stubIndex struct{ hits []searchindex.Hit }

func (s stubIndex) UpsertPost(context.Context, searchindex.PostDoc, []float32) error { return nil }
func (s stubIndex) DeletePost(context.Context, string) error                        { return nil }
func (s stubIndex) Search(_ context.Context, _ string, _ []float32, topK int) ([]searchindex.Hit, error) {
	if topK < len(s.hits) {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

type stubTrigger struct{ calls int }

func (s *stubTrigger) RunOnce(context.Context) []ingest.Report {
	s.calls++
	return []ingest.Report{{Kind: ingest.KindAccounts, Processed: 2}}
}

type testServer struct {
	srv   *httptest.Server
	store store.Store
	svc   *services.IdentityService
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.EnsureSchema(context.Background(), db))
	st := sqlite.NewWithDB(db)
	t.Cleanup(func() { _ = st.Close() })

	svc := services.NewIdentityService(st, eligibility.AllowAll{},
		mapResolver{"alice": "1001", "bob": "1002"}, zerolog.Nop())
	d := Deps{Identities: svc, Store: st, Health: staticHealth{ok: true}, Log: zerolog.Nop()}
	if mutate != nil {
		mutate(&d)
	}
	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: st, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestRegisterAndGetIdentity(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/identities", map[string]string{"handle": "@alice", "address": "W1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "registered", body["reason"])

	resp, body = ts.do(t, http.MethodGet, "/api/identities/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1001", body["externalId"])
	wallets, ok := body["wallets"].([]interface{})
	require.True(t, ok)
	assert.Len(t, wallets, 1)
}

func TestRegister_OutcomeStatusCodes(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.do(t, http.MethodPost, "/api/identities", map[string]string{"handle": "alice", "address": "W1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name   string
		in     map[string]string
		status int
		reason string
	}{
		{"duplicate identity", map[string]string{"handle": "alice", "address": "W2"}, http.StatusConflict, "duplicate_identity"},
		{"duplicate wallet", map[string]string{"handle": "bob", "address": "W1"}, http.StatusConflict, "duplicate_wallet"},
		{"missing wallet", map[string]string{"handle": "bob"}, http.StatusUnprocessableEntity, "missing_wallet"},
		{"unresolvable", map[string]string{"handle": "nobody", "address": "W3"}, http.StatusUnprocessableEntity, "invalid_identity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/api/identities", tt.in)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Post(ts.srv.URL+"/api/identities", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWalletsAndArchive(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.do(t, http.MethodPost, "/api/identities/alice/wallets", map[string]string{"address": "W2"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ts.do(t, http.MethodPost, "/api/identities", map[string]string{"handle": "alice", "address": "W1"})
	resp, body := ts.do(t, http.MethodPost, "/api/identities/alice/wallets", map[string]string{"address": "W2", "chain": "eth"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "wallet_added", body["reason"])

	resp, body = ts.do(t, http.MethodPost, "/api/identities/alice/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "archived", body["reason"])

	_, body = ts.do(t, http.MethodGet, "/api/identities", nil)
	assert.EqualValues(t, 0, body["count"])
	_, body = ts.do(t, http.MethodGet, "/api/identities?includeArchived=true", nil)
	assert.EqualValues(t, 1, body["count"])

	resp, body = ts.do(t, http.MethodPost, "/api/identities/alice/reactivate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reactivated", body["reason"])
}

func TestIdentityPostsAndEngagement(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	out, err := ts.svc.Observe(ctx, "1001", "alice", 10)
	require.NoError(t, err)
	require.True(t, out.OK)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range []model.Post{
		{ExternalID: "p1", AuthorRef: "1001", Content: "first", CreatedTime: base, Relevant: true, Score: 2},
		{ExternalID: "p2", AuthorRef: "1001", Content: "second", CreatedTime: base.Add(time.Hour), Score: 5},
	} {
		_, err := ts.store.Posts().Upsert(ctx, &p)
		require.NoError(t, err, i)
	}
	_, err = ts.store.Engagement().Refresh(ctx, "1001")
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodGet, "/api/identities/alice/posts?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posts := body["posts"].([]interface{})
	require.Len(t, posts, 1)
	assert.Equal(t, "p2", posts[0].(map[string]interface{})["externalId"])

	resp, body = ts.do(t, http.MethodGet, "/api/identities/alice/engagement", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 7, body["score"])

	resp, body = ts.do(t, http.MethodGet, "/api/posts/relevant", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, body = ts.do(t, http.MethodGet, "/api/posts/p1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "first", body["content"])

	resp, _ = ts.do(t, http.MethodGet, "/api/posts/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/engagement/top?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = ts.do(t, http.MethodGet, "/api/posts/relevant?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearch(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, nil)
		resp, _ := ts.do(t, http.MethodPost, "/api/search", map[string]interface{}{"query": "solana"})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
	t.Run("empty query", func(t *testing.T) {
		ts := newTestServer(t, nil)
		resp, _ := ts.do(t, http.MethodPost, "/api/search", map[string]interface{}{"query": "  "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("hits", func(t *testing.T) {
		ts := newTestServer(t, func(d *Deps) {
			d.Embedder = stubEmbedder{}
			d.Index = stubIndex{hits: []searchindex.Hit{{PostID: "p1"}, {PostID: "p2"}}}
		})
		resp, body := ts.do(t, http.MethodPost, "/api/search", map[string]interface{}{"query": "solana", "topK": 1})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 1, body["count"])
	})
	t.Run("embedder down", func(t *testing.T) {
		ts := newTestServer(t, func(d *Deps) {
			d.Embedder = stubEmbedder{err: errors.New("down")}
			d.Index = stubIndex{}
		})
		resp, _ := ts.do(t, http.MethodPost, "/api/search", map[string]interface{}{"query": "solana"})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestIngestRun(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.do(t, http.MethodPost, "/api/ingest/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	trig := &stubTrigger{}
	ts = newTestServer(t, func(d *Deps) { d.Ingest = trig })
	resp, body := ts.do(t, http.MethodPost, "/api/ingest/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["reports"], 1)
	assert.Equal(t, 1, trig.calls)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.Health = staticHealth{ok: false} })
	resp, body := ts.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, map[string]interface{}{"store": false}, body["components"])

	mresp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, outcomeStatus(model.Failed(model.ReasonFailed, "")))
	assert.Equal(t, http.StatusOK, outcomeStatus(model.Outcome{OK: true, Reason: model.ReasonObserved}))
}
