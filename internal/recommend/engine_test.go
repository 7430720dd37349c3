package recommend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/lumapix/lumapix/internal/recommend"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/lumapix/lumapix/internal/similarity"
	"github.com/lumapix/lumapix/internal/vector"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStore is an in-memory recommend.Store. Candidate scoring reads it
// concurrently, so every accessor takes the lock.
type stubStore struct {
	mu       sync.Mutex
	users    map[uint64]*types.User
	unusable map[uint64]bool
	edges    []*types.RelationshipEdge
	counts   map[uint64]types.ActivityCounts
	photos   map[uint64][]*types.Photo
	recs     map[uint64][]*types.Recommendation
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    make(map[uint64]*types.User),
		unusable: make(map[uint64]bool),
		counts:   make(map[uint64]types.ActivityCounts),
		photos:   make(map[uint64][]*types.Photo),
		recs:     make(map[uint64][]*types.Recommendation),
	}
}

func (s *stubStore) addUser(id uint64) {
	s.users[id] = &types.User{
		ID:       id,
		IsActive: true,
		JoinedAt: time.Now().AddDate(-1, 0, 0),
	}
}

func (s *stubStore) GetUser(_ context.Context, userID uint64) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, types.ErrUserNotFound
	}

	return user, nil
}

func (s *stubStore) IsUsable(_ context.Context, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.unusable[userID], nil
}

func (s *stubStore) GetCandidates(_ context.Context) ([]*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*types.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}

	return users, nil
}

func (s *stubStore) GetFollowEdges(_ context.Context) ([]*types.RelationshipEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.edges, nil
}

func (s *stubStore) CountsSince(
	_ context.Context, userID uint64, _ time.Time,
) (types.ActivityCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[userID], nil
}

func (s *stubStore) GetLatestPhotos(
	_ context.Context, userID uint64, limit int,
) ([]*types.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photos := s.photos[userID]
	if len(photos) > limit {
		photos = photos[:limit]
	}

	return photos, nil
}

func (s *stubStore) ReplaceRecommendations(
	_ context.Context, userID uint64, records []*types.Recommendation,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recs[userID] = records

	return nil
}

func (s *stubStore) GetRecommendations(
	_ context.Context, userID uint64, limit int,
) ([]*types.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.recs[userID]
	if len(recs) > limit {
		recs = recs[:limit]
	}

	return recs, nil
}

// stubDispatcher records dispatched user IDs instead of queueing tasks.
type stubDispatcher struct {
	mu    sync.Mutex
	calls []uint64
}

func (d *stubDispatcher) Dispatch(_ context.Context, userID uint64, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, userID)

	return nil
}

func (d *stubDispatcher) dispatched() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]uint64(nil), d.calls...)
}

type emptyPhotoSource struct{}

func (emptyPhotoSource) PhotosWithEmbeddings(context.Context) ([]*types.Photo, error) {
	return nil, nil
}

func testScoringConfig() *config.Scoring {
	return &config.Scoring{
		BaselineScore:          0.1,
		RecentActivityWeight:   0.5,
		RecentDayFactor:        3,
		RecentActivityScale:    30,
		LifetimeActivityWeight: 0.3,
		LifetimeActivityScale:  200,
		MutualFriendWeight:     0.4,
		MutualFriendScale:      10,
		CommonFollowingWeight:  0.2,
		PublicAccountWeight:    0.1,
		CommonFollowerWeight:   0.2,
		OverlapScale:           20,
		PhotoSimilarityWeight:  0.3,
		NewAccountWeight:       0.2,
		NewAccountWindowDays:   30,
		NormalizationDivisor:   2,
		TopK:                   10,
		DisplayCount:           5,
		RotationWindowMinutes:  60,
	}
}

func newTestEngine(
	t *testing.T, store recommend.Store, dispatcher recommend.Dispatcher,
) (*recommend.Engine, *recommend.Cache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	cache := recommend.NewCache(client, time.Hour, zap.NewNop())

	index := vector.New(&config.Vector{Dimension: 3}, emptyPhotoSource{}, zap.NewNop())
	pairCache := similarity.NewPairCache(client, time.Hour, zap.NewNop())
	scorer := similarity.NewScorer(index, pairCache, &config.Similarity{
		VisualWeight: 1,
	}, zap.NewNop())

	engine := recommend.NewEngine(store, scorer, cache, dispatcher, testScoringConfig(), zap.NewNop())

	return engine, cache
}

func TestDisplaySelfHealing(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addUser(2)
	store.addUser(3)
	store.unusable[3] = true

	dispatcher := &stubDispatcher{}
	engine, cache := newTestEngine(t, store, dispatcher)

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, 1, []types.RankedUser{
		{UserID: 2, Score: 0.9},
		{UserID: 3, Score: 0.5},
	}))

	got, err := engine.Display(ctx, 1, 5)
	require.NoError(t, err)

	// The deleted user is gone from the served list.
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].UserID)

	// The cache entry was rewritten immediately and is strictly shorter.
	rewritten, cached := cache.Get(ctx, 1)
	require.True(t, cached)
	require.Len(t, rewritten, 1)
	assert.Equal(t, uint64(2), rewritten[0].UserID)

	// A cache hit never triggers a recompute dispatch.
	assert.Empty(t, dispatcher.dispatched())
}

func TestDisplayCacheMissServesPersistedAndDispatches(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addUser(4)
	store.addUser(5)

	now := time.Now()
	store.recs[1] = []*types.Recommendation{
		{UserID: 1, RecommendedUserID: 4, Score: 0.8, ComputedAt: now},
		{UserID: 1, RecommendedUserID: 5, Score: 0.6, ComputedAt: now},
	}

	dispatcher := &stubDispatcher{}
	engine, cache := newTestEngine(t, store, dispatcher)

	ctx := context.Background()

	got, err := engine.Display(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].UserID)
	assert.Equal(t, uint64(5), got[1].UserID)

	// The miss triggered a background recompute, never an inline one.
	assert.Equal(t, []uint64{1}, dispatcher.dispatched())

	// Persisted rows are served as-is without populating the cache.
	_, cached := cache.Get(ctx, 1)
	assert.False(t, cached)
}

func TestComputeForUser(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	for id := uint64(1); id <= 5; id++ {
		store.addUser(id)
	}

	// 1 follows 2 and 3; both follow 4. 5 has no graph signal at all.
	store.edges = []*types.RelationshipEdge{
		follow(1, 2), follow(1, 3),
		follow(2, 4), follow(3, 4),
	}
	store.counts[4] = types.ActivityCounts{PostCount: 5, PhotoCount: 10}

	dispatcher := &stubDispatcher{}
	engine, cache := newTestEngine(t, store, dispatcher)

	ctx := context.Background()

	ranked, err := engine.ComputeForUser(ctx, 1)
	require.NoError(t, err)

	// The friend-of-friend is recommended; self, followed users, and
	// zero-score candidates are not.
	require.Len(t, ranked, 1)
	assert.Equal(t, uint64(4), ranked[0].UserID)
	assert.Greater(t, ranked[0].Score, 0.0)
	assert.LessOrEqual(t, ranked[0].Score, 1.0)

	// Persisted records mirror the ranked list and honor the exclusions.
	records := store.recs[1]
	require.Len(t, records, 1)

	for _, record := range records {
		assert.Equal(t, uint64(1), record.UserID)
		assert.NotEqual(t, uint64(1), record.RecommendedUserID)
		assert.NotContains(t, []uint64{2, 3}, record.RecommendedUserID)
		assert.Greater(t, record.Score, 0.0)
		assert.LessOrEqual(t, record.Score, 1.0)
	}

	// The display cache holds the fresh generation.
	cached, ok := cache.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, ranked, cached)
}

func TestComputeForUserBaselineFallback(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addUser(1)
	store.addUser(2)

	dispatcher := &stubDispatcher{}
	engine, _ := newTestEngine(t, store, dispatcher)

	// The requester follows nobody, so every other candidate starts from
	// the baseline score instead of zero.
	ranked, err := engine.ComputeForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, uint64(2), ranked[0].UserID)
	assert.Greater(t, ranked[0].Score, 0.0)
	assert.LessOrEqual(t, ranked[0].Score, 1.0)
}

func TestComputeForUserUnknownRequester(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	dispatcher := &stubDispatcher{}
	engine, _ := newTestEngine(t, store, dispatcher)

	_, err := engine.ComputeForUser(context.Background(), 42)
	require.ErrorIs(t, err, types.ErrUserNotFound)
}
