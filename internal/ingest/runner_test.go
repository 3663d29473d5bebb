package ingest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/upstream"
)

type countingResolver struct {
	calls atomic.Int32
	ids   map[string]string
}

func (c *countingResolver) ResolveHandle(_ context.Context, handle string) (string, bool) {
	c.calls.Add(1)
	id, ok := c.ids[handle]
	return id, ok
}

func TestRunner_RunOnceResolvesHandlesOnce(t *testing.T) {
	h := newHarness(t)
	h.fetch.set(alice.ID, page([]upstream.Author{alice}, raw("p1", alice, "gm", 1)))
	h.fetch.set(bob.ID, page([]upstream.Author{bob}, raw("p2", bob, "gn", 1)))
	h.fetch.byQuery = page([]upstream.Author{alice}, raw("p3", alice, "solana", 1))

	res := &countingResolver{ids: map[string]string{"alice": alice.ID}}
	r, err := NewRunner(h.coord, res, Sources{
		Accounts: []string{"@alice", bob.ID, "ghost"},
		Keywords: []string{"solana"},
	}, time.Hour, zerolog.Nop())
	require.NoError(t, err)

	reports := r.RunOnce(context.Background())
	require.Len(t, reports, 2)
	assert.Equal(t, KindAccounts, reports[0].Kind)
	assert.Equal(t, 2, reports[0].Processed)
	assert.Equal(t, KindKeywords, reports[1].Kind)
	assert.Equal(t, 1, reports[1].Processed)

	r.RunOnce(context.Background())
	// alice is cached; ghost is retried each round.
	assert.Equal(t, int32(3), res.calls.Load())
}

func TestRunner_StartAndShutdown(t *testing.T) {
	h := newHarness(t)
	h.fetch.set(alice.ID, page([]upstream.Author{alice}, raw("p1", alice, "gm", 1)))

	r, err := NewRunner(h.coord, nil, Sources{Accounts: []string{alice.ID}}, time.Hour, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	require.Eventually(t, func() bool { return h.fetch.idCalls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Shutdown())
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, isNumeric("12345"))
	assert.False(t, isNumeric("alice1"))
	assert.False(t, isNumeric(""))
}
