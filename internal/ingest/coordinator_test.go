package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/eligibility"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/engagement"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/indexing"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/relevance"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/services"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store/sqlite"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

// --- Fakes ---

type fakeFetcher struct {
	mu         sync.Mutex
	byIdentity map[string]*upstream.Page
	byQuery    *upstream.Page
	idCalls    atomic.Int32
	queryCalls atomic.Int32
}

func (f *fakeFetcher) FetchByIdentity(_ context.Context, ref string, _ int) (*upstream.Page, bool) {
	f.idCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byIdentity[ref]
	return p, ok
}

func (f *fakeFetcher) FetchByQuery(context.Context, []string, int) (*upstream.Page, bool) {
	f.queryCalls.Add(1)
	return f.byQuery, f.byQuery != nil
}

func (f *fakeFetcher) set(ref string, p *upstream.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIdentity[ref] = p
}

type recordingSink struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingSink) Store(_ context.Context, p model.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, p.ExternalID)
}

var (
	alice = upstream.Author{ID: "1001", Handle: "alice", FollowerCount: 10}
	bob   = upstream.Author{ID: "1002", Handle: "bob", FollowerCount: 20}
	t0    = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func raw(id string, a upstream.Author, text string, likes int64) upstream.RawPost {
	return upstream.RawPost{ID: id, Text: text, AuthorID: a.ID, CreatedAt: t0, Metrics: model.Metrics{Likes: likes}}
}

func page(authors []upstream.Author, posts ...upstream.RawPost) *upstream.Page {
	pg := &upstream.Page{Posts: posts, Authors: map[string]upstream.Author{}}
	for _, a := range authors {
		pg.Authors[a.ID] = a
	}
	return pg
}

type harness struct {
	coord *Coordinator
	fetch *fakeFetcher
	sink  *recordingSink
	store store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.EnsureSchema(context.Background(), db))
	st := sqlite.NewWithDB(db)
	t.Cleanup(func() { _ = st.Close() })

	ids := services.NewIdentityService(st, eligibility.AllowAll{}, nil, zerolog.Nop())
	fetch := &fakeFetcher{byIdentity: map[string]*upstream.Page{}}
	sink := &recordingSink{}
	coord := NewCoordinator(fetch, ids, st,
		relevance.New(relevance.Config{Keywords: []string{"solana"}, Accounts: []string{"@project"}}),
		engagement.New(engagement.Weights{}),
		sink, Config{Workers: 4, PageSize: 10}, zerolog.Nop())
	return &harness{coord: coord, fetch: fetch, sink: sink, store: st}
}

func TestProcess_AbsentPageIsSkippedNotFatal(t *testing.T) {
	h := newHarness(t)
	h.fetch.set(alice.ID, page([]upstream.Author{alice},
		raw("p1", alice, "gm solana", 5),
		raw("p2", alice, "lunch", 1),
	))

	rep := h.coord.Process(context.Background(), []string{"missing", alice.ID})
	assert.Equal(t, KindAccounts, rep.Kind)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, rep.Failed)

	ctx := context.Background()
	p1, err := h.store.Posts().Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p1.Relevant)
	assert.Equal(t, 5.0, p1.Score)

	p2, err := h.store.Posts().Get(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, p2.Relevant)

	id, err := h.store.Identities().Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Handle)
	assert.Empty(t, id.Wallets)

	agg, err := h.store.Engagement().Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 6.0, agg.Score)

	assert.ElementsMatch(t, []string{"p1", "p2"}, h.sink.ids)
}

func TestProcess_ReingestUpdatesScore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.fetch.set(alice.ID, page([]upstream.Author{alice}, raw("p1", alice, "gm", 5)))
	h.coord.Process(ctx, []string{alice.ID})

	later := raw("p1", alice, "gm (edited)", 12)
	later.CreatedAt = t0.Add(time.Hour)
	h.fetch.set(alice.ID, page([]upstream.Author{alice}, later))
	rep := h.coord.Process(ctx, []string{alice.ID})
	assert.Equal(t, 1, rep.Processed)

	p, err := h.store.Posts().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, p.Score)
	assert.Equal(t, "gm (edited)", p.Content)
	assert.True(t, p.CreatedTime.Equal(t0), "creation time is immutable")

	agg, err := h.store.Engagement().Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, agg.Score)
}

func TestProcess_InvalidPostCountsAsFailed(t *testing.T) {
	h := newHarness(t)
	orphan := raw("p9", bob, "no author on page", 1)
	undated := raw("p1", alice, "no timestamp", 1)
	undated.CreatedAt = time.Time{}
	h.fetch.set(alice.ID, page([]upstream.Author{alice},
		undated,
		raw("p2", alice, "fine", 1),
		orphan,
	))

	rep := h.coord.Process(context.Background(), []string{alice.ID})
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Skipped)

	_, err := h.store.Posts().Get(context.Background(), "p1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestProcess_CanceledBeforeStartFetchesNothing(t *testing.T) {
	h := newHarness(t)
	h.fetch.set(alice.ID, page([]upstream.Author{alice}, raw("p1", alice, "gm", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := h.coord.Process(ctx, []string{alice.ID, bob.ID})
	assert.Equal(t, Report{Kind: KindAccounts, Duration: rep.Duration}, rep)
	assert.Equal(t, int32(0), h.fetch.idCalls.Load())
}

func TestProcess_OverlappingBatches(t *testing.T) {
	h := newHarness(t)
	h.fetch.set(alice.ID, page([]upstream.Author{alice}, raw("p1", alice, "a", 1), raw("p2", alice, "b", 2)))
	h.fetch.set(bob.ID, page([]upstream.Author{bob}, raw("p3", bob, "c", 3)))

	var wg sync.WaitGroup
	reports := make([]Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i] = h.coord.Process(context.Background(), []string{alice.ID, bob.ID, alice.ID})
		}(i)
	}
	wg.Wait()

	for _, r := range reports {
		assert.Equal(t, 3, r.Processed)
		assert.Equal(t, 0, r.Failed)
	}
	posts, err := h.store.Posts().RecentByAuthor(context.Background(), alice.ID, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestProcessByKeywords_DedupesBeforeFanOut(t *testing.T) {
	h := newHarness(t)
	h.fetch.byQuery = page([]upstream.Author{alice, bob},
		raw("p1", alice, "solana summer", 1),
		raw("p2", bob, "solana and #bonk", 2),
		raw("p1", alice, "solana summer", 1),
		raw("p2", bob, "solana and #bonk", 2),
	)

	rep := h.coord.ProcessByKeywords(context.Background(), []string{"solana", "bonk", "solana"})
	assert.Equal(t, KindKeywords, rep.Kind)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, int32(1), h.fetch.queryCalls.Load())
	assert.Len(t, h.sink.ids, 2)

	agg, err := h.store.Engagement().Get(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, agg.Score)
}

func TestProcessByKeywords_NoDataAndNoTerms(t *testing.T) {
	h := newHarness(t)
	rep := h.coord.ProcessByKeywords(context.Background(), []string{"solana"})
	assert.Equal(t, 1, rep.Skipped)

	rep = h.coord.ProcessByKeywords(context.Background(), nil)
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, int32(1), h.fetch.queryCalls.Load())
}

func TestNewCoordinator_CapsWorkers(t *testing.T) {
	c := NewCoordinator(&fakeFetcher{}, nil, nil, relevance.New(relevance.Config{}), engagement.New(engagement.Weights{}), nil, Config{Workers: 50}, zerolog.Nop())
	assert.Equal(t, MaxWorkers, c.cfg.Workers)
	assert.Equal(t, 10, c.cfg.PageSize)
	assert.IsType(t, indexing.Noop{}, c.sink)
}
