package indexing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/searchindex"
)

// --- Fakes ---

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

type recordingIndex struct {
	mu      sync.Mutex
	docs    map[string]searchindex.PostDoc
	vecs    map[string][]float32
	failN   int
	upserts int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{docs: map[string]searchindex.PostDoc{}, vecs: map[string][]float32{}}
}

func (r *recordingIndex) UpsertPost(_ context.Context, doc searchindex.PostDoc, vec []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.failN > 0 {
		r.failN--
		return errors.New("weaviate unavailable")
	}
	r.docs[doc.PostID] = doc
	r.vecs[doc.PostID] = vec
	return nil
}

func (r *recordingIndex) Search(context.Context, string, []float32, int) ([]searchindex.Hit, error) {
	return nil, nil
}
func (r *recordingIndex) DeletePost(context.Context, string) error { return nil }

func (r *recordingIndex) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func fastConfig(size int) Config {
	return Config{QueueSize: size, MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func post(id string) model.Post {
	return model.Post{ExternalID: id, AuthorRef: "a1", Content: "gm " + id, CreatedTime: time.Now(), Score: 1}
}

func TestQueue_IndexesStoredPosts(t *testing.T) {
	idx := newRecordingIndex()
	q := NewQueue(fakeEmbedder{}, idx, fastConfig(8), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	q.Store(ctx, post("p1"))
	q.Store(ctx, post("p2"))

	require.Eventually(t, func() bool { return idx.count() == 2 }, time.Second, 5*time.Millisecond)
	idx.mu.Lock()
	assert.Equal(t, "a1", idx.docs["p1"].AuthorRef)
	assert.Equal(t, []float32{float32(len("gm p1"))}, idx.vecs["p1"])
	idx.mu.Unlock()
	assert.Equal(t, int64(2), q.Stats().Indexed)
}

func TestQueue_RetriesTransientIndexErrors(t *testing.T) {
	idx := newRecordingIndex()
	idx.failN = 2
	q := NewQueue(nil, idx, fastConfig(4), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	q.Store(ctx, post("p1"))
	require.Eventually(t, func() bool { return idx.count() == 1 }, time.Second, 5*time.Millisecond)
	idx.mu.Lock()
	assert.Equal(t, 3, idx.upserts)
	assert.Nil(t, idx.vecs["p1"], "nil embedder stores without vectors")
	idx.mu.Unlock()
}

func TestQueue_GivesUpAfterMaxAttempts(t *testing.T) {
	idx := newRecordingIndex()
	q := NewQueue(fakeEmbedder{err: errors.New("ollama down")}, idx, fastConfig(4), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = q.Run(ctx) }()

	q.Store(ctx, post("p1"))
	require.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, idx.count())
}

func TestQueue_FullQueueDrops(t *testing.T) {
	q := NewQueue(nil, newRecordingIndex(), fastConfig(1), zerolog.Nop())
	ctx := context.Background()

	q.Store(ctx, post("p1"))
	q.Store(ctx, post("p2"))
	q.Store(ctx, post("p3"))
	assert.Equal(t, int64(2), q.Stats().Dropped)
}

func TestQueue_RunStopsOnCancel(t *testing.T) {
	q := NewQueue(nil, newRecordingIndex(), fastConfig(1), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNoop(t *testing.T) {
	var s Sink = Noop{}
	s.Store(context.Background(), post("p1"))
}
