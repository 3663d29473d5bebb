// Package storetest is a driver-independent compliance suite for store.Store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
)

// Run exercises the compliance suite against a store.Store implementation.
// makeStore may return a shared store; every case uses unique identifiers.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"RegisterThenGet", testRegisterThenGet},
		{"DuplicateWallet", testDuplicateWallet},
		{"DuplicateIdentity", testDuplicateIdentity},
		{"HandleHeldByAnotherIdentity", testHandleHeldByAnother},
		{"RegisterObservedIdentity", testRegisterObserved},
		{"AddWallet", testAddWallet},
		{"Observe", testObserve},
		{"ArchiveReactivate", testArchiveReactivate},
		{"List", testList},
		{"PostUpsertMerges", testPostUpsertMerges},
		{"PostValidation", testPostValidation},
		{"PostQueries", testPostQueries},
		{"EngagementRefresh", testEngagementRefresh},
		{"ConcurrentWalletRegistration", testConcurrentWalletRegistration},
		{"ConcurrentPostUpserts", testConcurrentPostUpserts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, makeStore(t))
		})
	}
}

func uniq(prefix string) string { return prefix + "-" + uuid.NewString()[:12] }

func ts(offset time.Duration) time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset)
}

func identity(ext, handle string, reg time.Time) *model.Identity {
	return &model.Identity{ExternalID: ext, Handle: handle, RegistrationTime: reg}
}

func wallet(addr string) *model.Wallet {
	return &model.Wallet{Address: addr, Chain: model.DefaultChain}
}

func post(id, author, content string, created time.Time, score float64, relevant bool) *model.Post {
	return &model.Post{ExternalID: id, AuthorRef: author, Content: content, CreatedTime: created, Score: score, Relevant: relevant}
}

func walletAddresses(id *model.Identity) []string {
	out := make([]string, 0, len(id.Wallets))
	for _, w := range id.Wallets {
		out = append(out, w.Address)
	}
	return out
}

func testRegisterThenGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	ext, handle, addr := uniq("id"), uniq("alice"), uniq("W")

	got, err := s.Identities().Register(ctx, identity(ext, handle, ts(0)), wallet(addr))
	require.NoError(t, err)
	require.Equal(t, ext, got.ExternalID)

	byHandle, err := s.Identities().GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, walletAddresses(byHandle))
	assert.True(t, byHandle.Wallets[0].Primary)
	assert.Equal(t, model.DefaultChain, byHandle.Wallets[0].Chain)
	assert.NotEmpty(t, byHandle.Wallets[0].ID)
	assert.True(t, byHandle.RegistrationTime.Equal(ts(0)))
	assert.False(t, byHandle.Archived)

	registered, err := s.Identities().HandleRegistered(ctx, handle)
	require.NoError(t, err)
	assert.True(t, registered)
	bound, err := s.Identities().WalletBound(ctx, addr)
	require.NoError(t, err)
	assert.True(t, bound)
}

func testDuplicateWallet(t *testing.T, s store.Store) {
	ctx := context.Background()
	addr := uniq("WALLET1")
	alice, bob := uniq("alice"), uniq("bob")

	_, err := s.Identities().Register(ctx, identity(uniq("id"), alice, ts(0)), wallet(addr))
	require.NoError(t, err)

	bobID := uniq("id")
	_, err = s.Identities().Register(ctx, identity(bobID, bob, ts(0)), wallet(addr))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateWallet), "got %v", err)

	// the failed registration must not leave the identity behind
	_, err = s.Identities().GetByHandle(ctx, bob)
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
	_, err = s.Identities().Get(ctx, bobID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)

	got, err := s.Identities().GetByHandle(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, walletAddresses(got))
}

func testDuplicateIdentity(t *testing.T, s store.Store) {
	ctx := context.Background()
	ext, handle := uniq("id"), uniq("alice")
	w1, w2 := uniq("W"), uniq("W")

	_, err := s.Identities().Register(ctx, identity(ext, handle, ts(0)), wallet(w1))
	require.NoError(t, err)

	_, err = s.Identities().Register(ctx, identity(ext, handle, ts(time.Hour)), wallet(w2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateIdentity), "got %v", err)

	bound, err := s.Identities().WalletBound(ctx, w2)
	require.NoError(t, err)
	assert.False(t, bound)
}

func testHandleHeldByAnother(t *testing.T, s store.Store) {
	ctx := context.Background()
	handle := uniq("carol")
	_, err := s.Identities().Observe(ctx, identity(uniq("id"), handle, ts(0)))
	require.NoError(t, err)

	other := uniq("id")
	_, err = s.Identities().Register(ctx, identity(other, handle, ts(0)), wallet(uniq("W")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateIdentity), "got %v", err)

	_, err = s.Identities().Get(ctx, other)
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
}

func testRegisterObserved(t *testing.T, s store.Store) {
	ctx := context.Background()
	ext, handle := uniq("id"), uniq("dave")

	observed := identity(ext, handle, ts(0))
	observed.FollowerCount = 50
	_, err := s.Identities().Observe(ctx, observed)
	require.NoError(t, err)

	registered, err := s.Identities().HandleRegistered(ctx, handle)
	require.NoError(t, err)
	assert.False(t, registered, "observed identity without wallets is not registered")

	_, err = s.Identities().Register(ctx, identity(ext, handle, ts(24*time.Hour)), wallet(uniq("W")))
	require.NoError(t, err)

	got, err := s.Identities().Get(ctx, ext)
	require.NoError(t, err)
	assert.True(t, got.RegistrationTime.Equal(ts(0)), "earliest registration time wins, got %v", got.RegistrationTime)
	assert.Equal(t, int64(50), got.FollowerCount)
	assert.Len(t, got.Wallets, 1)
}

func testAddWallet(t *testing.T, s store.Store) {
	ctx := context.Background()
	handle, w1, w2 := uniq("erin"), uniq("W"), uniq("W")
	_, err := s.Identities().Register(ctx, identity(uniq("id"), handle, ts(0)), wallet(w1))
	require.NoError(t, err)

	added, err := s.Identities().AddWallet(ctx, handle, wallet(w2))
	require.NoError(t, err)
	assert.False(t, added.Primary)
	assert.Equal(t, w2, added.Address)

	_, err = s.Identities().AddWallet(ctx, handle, wallet(w1))
	assert.True(t, errors.Is(err, model.ErrDuplicateWallet), "got %v", err)

	_, err = s.Identities().AddWallet(ctx, uniq("ghost"), wallet(uniq("W")))
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)

	got, err := s.Identities().GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{w1, w2}, walletAddresses(got))
}

func testObserve(t *testing.T, s store.Store) {
	ctx := context.Background()
	ext, handle := uniq("id"), uniq("frank")
	_, err := s.Identities().Register(ctx, identity(ext, handle, ts(0)), wallet(uniq("W")))
	require.NoError(t, err)
	_, err = s.Identities().SetArchived(ctx, handle, true)
	require.NoError(t, err)

	renamed := uniq("frank2")
	upd := identity(ext, renamed, ts(time.Hour))
	upd.FollowerCount = 77
	got, err := s.Identities().Observe(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, renamed, got.Handle)
	assert.Equal(t, int64(77), got.FollowerCount)
	assert.True(t, got.Archived, "observe never clears archived")
	assert.True(t, got.RegistrationTime.Equal(ts(0)))

	full, err := s.Identities().GetByHandle(ctx, renamed)
	require.NoError(t, err)
	assert.Len(t, full.Wallets, 1, "observe never touches wallets")

	// a different identity may not take the handle
	_, err = s.Identities().Observe(ctx, identity(uniq("id"), renamed, ts(0)))
	assert.True(t, errors.Is(err, model.ErrDuplicateIdentity), "got %v", err)
}

func testArchiveReactivate(t *testing.T, s store.Store) {
	ctx := context.Background()
	handle := uniq("gina")
	_, err := s.Identities().Register(ctx, identity(uniq("id"), handle, ts(0)), wallet(uniq("W")))
	require.NoError(t, err)
	before, err := s.Identities().GetByHandle(ctx, handle)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := s.Identities().SetArchived(ctx, handle, true)
		require.NoError(t, err)
		assert.True(t, got.Archived)
	}
	for i := 0; i < 2; i++ {
		_, err := s.Identities().SetArchived(ctx, handle, false)
		require.NoError(t, err)
	}

	after, err := s.Identities().GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.False(t, after.Archived)
	assert.Equal(t, before.ExternalID, after.ExternalID)
	assert.Equal(t, before.Handle, after.Handle)
	assert.Equal(t, before.FollowerCount, after.FollowerCount)
	assert.True(t, before.RegistrationTime.Equal(after.RegistrationTime))
	assert.Equal(t, walletAddresses(before), walletAddresses(after))

	_, err = s.Identities().SetArchived(ctx, uniq("ghost"), true)
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	active, archived := uniq("hal"), uniq("ivy")
	_, err := s.Identities().Observe(ctx, identity(uniq("id"), active, ts(0)))
	require.NoError(t, err)
	_, err = s.Identities().Observe(ctx, identity(uniq("id"), archived, ts(0)))
	require.NoError(t, err)
	_, err = s.Identities().SetArchived(ctx, archived, true)
	require.NoError(t, err)

	handles := func(includeArchived bool) map[string]bool {
		lst, err := s.Identities().List(ctx, includeArchived, 10000)
		require.NoError(t, err)
		out := map[string]bool{}
		for _, id := range lst {
			out[id.Handle] = true
		}
		return out
	}
	live := handles(false)
	assert.True(t, live[active])
	assert.False(t, live[archived])
	all := handles(true)
	assert.True(t, all[active])
	assert.True(t, all[archived])
}

func observeAuthor(t *testing.T, s store.Store) string {
	t.Helper()
	ext := uniq("author")
	_, err := s.Identities().Observe(context.Background(), identity(ext, uniq("h"), ts(0)))
	require.NoError(t, err)
	return ext
}

func testPostUpsertMerges(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := observeAuthor(t, s)
	id := uniq("post")

	_, err := s.Posts().Upsert(ctx, post(id, author, "first", ts(0), 5, false))
	require.NoError(t, err)
	gotID, err := s.Posts().Upsert(ctx, post(id, author, "second", ts(time.Hour), 12, true))
	require.NoError(t, err)
	assert.Equal(t, id, gotID)

	got, err := s.Posts().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
	assert.Equal(t, 12.0, got.Score)
	assert.True(t, got.Relevant)
	assert.True(t, got.CreatedTime.Equal(ts(0)), "creation time is immutable, got %v", got.CreatedTime)

	lst, err := s.Posts().RecentByAuthor(ctx, author, 10)
	require.NoError(t, err)
	assert.Len(t, lst, 1)

	_, err = s.Posts().Get(ctx, uniq("missing"))
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
}

func testPostValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := observeAuthor(t, s)
	id := uniq("post")

	_, err := s.Posts().Upsert(ctx, post(id, author, "bad", ts(0), -1, false))
	require.Error(t, err)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "Score", ve.Field)

	_, err = s.Posts().Get(ctx, id)
	assert.True(t, errors.Is(err, model.ErrNotFound), "invalid post must not be written")

	_, err = s.Posts().Upsert(ctx, post(id, author, "", ts(0), 1, false))
	require.NoError(t, err)
	got, err := s.Posts().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "", got.Content)
}

func testPostQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := observeAuthor(t, s)
	other := observeAuthor(t, s)

	p1 := post(uniq("p"), author, "oldest", ts(0), 1, true)
	p2 := post(uniq("p"), author, "middle", ts(time.Minute), 1, false)
	p3 := post(uniq("p"), author, "newest", ts(2*time.Minute), 1, true)
	p4 := post(uniq("p"), other, "elsewhere", ts(3*time.Minute), 1, true)
	for _, p := range []*model.Post{p1, p2, p3, p4} {
		_, err := s.Posts().Upsert(ctx, p)
		require.NoError(t, err)
	}

	recent, err := s.Posts().RecentByAuthor(ctx, author, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, p3.ExternalID, recent[0].ExternalID)
	assert.Equal(t, p2.ExternalID, recent[1].ExternalID)

	all, err := s.Posts().RecentByAuthor(ctx, author, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	relevant, err := s.Posts().Relevant(ctx, 10000)
	require.NoError(t, err)
	seen := map[string]int{}
	for i, p := range relevant {
		assert.True(t, p.Relevant)
		seen[p.ExternalID] = i
	}
	for _, id := range []string{p1.ExternalID, p3.ExternalID, p4.ExternalID} {
		_, ok := seen[id]
		assert.True(t, ok, "relevant post %s missing", id)
	}
	_, ok := seen[p2.ExternalID]
	assert.False(t, ok)
	assert.Less(t, seen[p4.ExternalID], seen[p3.ExternalID])
	assert.Less(t, seen[p3.ExternalID], seen[p1.ExternalID])
}

func testEngagementRefresh(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := observeAuthor(t, s)
	low := observeAuthor(t, s)

	id := uniq("p")
	_, err := s.Posts().Upsert(ctx, post(id, author, "a", ts(0), 5, false))
	require.NoError(t, err)
	_, err = s.Posts().Upsert(ctx, post(uniq("p"), author, "b", ts(time.Minute), 3, false))
	require.NoError(t, err)

	agg, err := s.Engagement().Refresh(ctx, author)
	require.NoError(t, err)
	assert.Equal(t, 8.0, agg.Score)
	assert.False(t, agg.LastUpdated.IsZero())

	_, err = s.Posts().Upsert(ctx, post(id, author, "a", ts(0), 12, false))
	require.NoError(t, err)
	agg, err = s.Engagement().Refresh(ctx, author)
	require.NoError(t, err)
	assert.Equal(t, 15.0, agg.Score)

	got, err := s.Engagement().Get(ctx, author)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Score)

	empty, err := s.Engagement().Refresh(ctx, low)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.Score)

	top, err := s.Engagement().Top(ctx, 10000)
	require.NoError(t, err)
	pos := map[string]int{}
	for i, a := range top {
		pos[a.IdentityRef] = i
	}
	assert.Less(t, pos[author], pos[low])

	_, err = s.Engagement().Get(ctx, uniq("nobody"))
	assert.True(t, errors.Is(err, model.ErrNotFound), "got %v", err)
}

func testConcurrentWalletRegistration(t *testing.T, s store.Store) {
	ctx := context.Background()
	addr := uniq("SHARED")
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Identities().Register(ctx, identity(uniq("id"), fmt.Sprintf("%s-%d", uniq("racer"), i), ts(0)), wallet(addr))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrDuplicateWallet), "got %v", err)
	}
	assert.Equal(t, 1, wins)
}

func testConcurrentPostUpserts(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := observeAuthor(t, s)
	id := uniq("p")
	const n = 8

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Posts().Upsert(ctx, post(id, author, fmt.Sprintf("v%d", i), ts(time.Duration(i)*time.Minute), float64(i), false))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	lst, err := s.Posts().RecentByAuthor(ctx, author, 100)
	require.NoError(t, err)
	require.Len(t, lst, 1)
	assert.Equal(t, id, lst[0].ExternalID)
}
