package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/lumapix/lumapix/internal/similarity"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// maxScoringConcurrency bounds the per-candidate scoring fan-out.
	maxScoringConcurrency = 8

	// photoComparisonLimit caps how many of the candidate's recent photos
	// are compared for the photo similarity boost.
	photoComparisonLimit = 3
)

// Dispatcher triggers a background recompute for a user. The display path
// only ever dispatches; it never blocks on a recompute.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID uint64, reason string) error
}

// Engine produces ordered, deduplicated top-K user recommendations by
// combining the collaborative-filtering base score with a multiplicative
// boost cascade.
type Engine struct {
	store      Store
	scorer     *similarity.Scorer
	cache      *Cache
	dispatcher Dispatcher
	cfg        *config.Scoring
	logger     *zap.Logger
}

// NewEngine creates a recommendation engine. The dispatcher may be nil when
// no background scheduler is wired, in which case display reads simply serve
// whatever is persisted.
func NewEngine(
	store Store, scorer *similarity.Scorer, cache *Cache,
	dispatcher Dispatcher, cfg *config.Scoring, logger *zap.Logger,
) *Engine {
	return &Engine{
		store:      store,
		scorer:     scorer,
		cache:      cache,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger.Named("recommend_engine"),
	}
}

// ComputeForUser recomputes and persists the requester's top-K
// recommendations, replacing the previous generation, and refreshes the
// per-user cache.
func (e *Engine) ComputeForUser(ctx context.Context, userID uint64) ([]types.RankedUser, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load requester: %w", err)
	}

	edges, err := e.store.GetFollowEdges(ctx)
	if err != nil {
		return nil, err
	}

	graph := BuildGraph(edges)

	candidates, err := e.store.GetCandidates(ctx)
	if err != nil {
		return nil, err
	}

	base, hasGraphSignal := graph.BaseScores(userID)
	followed := graph.Following(userID)

	ranked := e.scoreCandidates(ctx, userID, candidates, graph, base, hasGraphSignal, followed)

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}

		return ranked[i].UserID < ranked[j].UserID
	})

	if len(ranked) > e.cfg.TopK {
		ranked = ranked[:e.cfg.TopK]
	}

	now := time.Now()
	records := make([]*types.Recommendation, 0, len(ranked))

	for _, entry := range ranked {
		records = append(records, &types.Recommendation{
			UserID:            userID,
			RecommendedUserID: entry.UserID,
			Score:             entry.Score,
			ComputedAt:        now,
		})
	}

	if err := e.store.ReplaceRecommendations(ctx, userID, records); err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, userID, ranked); err != nil {
		e.logger.Warn("Failed to cache recommendations",
			zap.Uint64("userID", userID),
			zap.Error(err))
	}

	e.logger.Info("Computed recommendations",
		zap.Uint64("userID", userID),
		zap.Int("count", len(ranked)),
		zap.Bool("graphSignal", hasGraphSignal))

	return ranked, nil
}

// scoreCandidates runs the boost cascade over every eligible candidate with
// bounded concurrency. Per-candidate failures degrade that candidate to its
// unboosted score, never the whole pass.
func (e *Engine) scoreCandidates(
	ctx context.Context, userID uint64, candidates []*types.User, graph *Graph,
	base map[uint64]float64, hasGraphSignal bool, followed map[uint64]struct{},
) []types.RankedUser {
	var (
		mu     sync.Mutex
		ranked []types.RankedUser
	)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(maxScoringConcurrency)

	for _, candidate := range candidates {
		candidate := candidate

		if candidate.ID == userID {
			continue
		}

		if _, alreadyFollowed := followed[candidate.ID]; alreadyFollowed {
			continue
		}

		p.Go(func(ctx context.Context) error {
			var baseScore float64
			if hasGraphSignal {
				baseScore = base[candidate.ID]
			} else {
				baseScore = e.cfg.BaselineScore
			}

			if baseScore == 0 {
				return nil
			}

			score := e.applyBoosts(ctx, userID, candidate, graph, baseScore)
			if score == 0 {
				return nil
			}

			mu.Lock()
			ranked = append(ranked, types.RankedUser{UserID: candidate.ID, Score: score})
			mu.Unlock()

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		e.logger.Warn("Candidate scoring pool reported errors", zap.Error(err))
	}

	return ranked
}

// applyBoosts runs the multiplicative boost cascade in its fixed order:
// recent activity, lifetime activity, mutual friends, common following,
// public account, common followers, photo similarity, new-account recency.
// Later boosts compound on earlier ones, so activity dominates before the
// smaller relationship-based correctors; the ordering is part of the
// ranking contract. The result is normalized into [0,1] by a fixed divisor.
func (e *Engine) applyBoosts(
	ctx context.Context, userID uint64, candidate *types.User, graph *Graph, base float64,
) float64 {
	score := base

	score *= 1 + e.recentActivityFactor(ctx, candidate.ID)*e.cfg.RecentActivityWeight
	score *= 1 + e.lifetimeActivityFactor(ctx, candidate.ID)*e.cfg.LifetimeActivityWeight

	mutualFriends := saturate(float64(graph.MutualFriendCount(userID, candidate.ID)), e.cfg.MutualFriendScale)
	score *= 1 + mutualFriends*e.cfg.MutualFriendWeight

	commonFollowing := saturate(float64(graph.CommonFollowingCount(userID, candidate.ID)), e.cfg.OverlapScale)
	score *= 1 + commonFollowing*e.cfg.CommonFollowingWeight

	// Public accounts get a small positive multiplier; private accounts are
	// never penalized below their unboosted score.
	if !candidate.IsPrivate {
		score *= 1 + e.cfg.PublicAccountWeight
	}

	commonFollowers := saturate(float64(graph.CommonFollowerCount(userID, candidate.ID)), e.cfg.OverlapScale)
	score *= 1 + commonFollowers*e.cfg.CommonFollowerWeight

	score *= 1 + e.photoSimilarityFactor(ctx, userID, candidate.ID)*e.cfg.PhotoSimilarityWeight
	score *= 1 + e.newAccountFactor(candidate)*e.cfg.NewAccountWeight

	if e.cfg.NormalizationDivisor > 0 {
		score /= e.cfg.NormalizationDivisor
	}

	return math.Min(score, 1)
}

// recentActivityFactor weighs last-day activity heavier than last-month
// activity, saturating at the configured scale.
func (e *Engine) recentActivityFactor(ctx context.Context, candidateID uint64) float64 {
	now := time.Now()

	day, err := e.store.CountsSince(ctx, candidateID, now.Add(-24*time.Hour))
	if err != nil {
		return 0
	}

	month, err := e.store.CountsSince(ctx, candidateID, now.AddDate(0, -1, 0))
	if err != nil {
		return 0
	}

	weighted := float64(day.Total())*e.cfg.RecentDayFactor + float64(month.Total())

	return saturate(weighted, e.cfg.RecentActivityScale)
}

// lifetimeActivityFactor counts total activity with posts weighted double
// relative to photos.
func (e *Engine) lifetimeActivityFactor(ctx context.Context, candidateID uint64) float64 {
	counts, err := e.store.CountsSince(ctx, candidateID, time.Time{})
	if err != nil {
		return 0
	}

	weighted := 2*float64(counts.PostCount) + float64(counts.PhotoCount)

	return saturate(weighted, e.cfg.LifetimeActivityScale)
}

// photoSimilarityFactor compares the requester's newest photo against the
// candidate's recent photos and returns the best hybrid similarity. Missing
// photos or embeddings contribute 0.
func (e *Engine) photoSimilarityFactor(ctx context.Context, userID, candidateID uint64) float64 {
	own, err := e.store.GetLatestPhotos(ctx, userID, 1)
	if err != nil || len(own) == 0 || !own[0].HasAnySignal() {
		return 0
	}

	theirs, err := e.store.GetLatestPhotos(ctx, candidateID, photoComparisonLimit)
	if err != nil {
		return 0
	}

	var best float64

	for _, photo := range theirs {
		if !photo.HasAnySignal() {
			continue
		}

		score := e.scorer.CachedHybridSimilarity(ctx, own[0], photo, similarity.MetricCosine)
		if score > best {
			best = score
		}
	}

	return math.Max(best, 0)
}

// newAccountFactor gives accounts younger than the configured window a
// bonus decaying linearly with age.
func (e *Engine) newAccountFactor(candidate *types.User) float64 {
	window := time.Duration(e.cfg.NewAccountWindowDays) * 24 * time.Hour
	if window <= 0 {
		return 0
	}

	age := time.Since(candidate.JoinedAt)
	if age < 0 || age >= window {
		return 0
	}

	return 1 - float64(age)/float64(window)
}

// saturate maps a count onto [0,1], saturating at scale.
func saturate(value, scale float64) float64 {
	if scale <= 0 || value <= 0 {
		return 0
	}

	return math.Min(value/scale, 1)
}

// Display serves a user's recommendation list for rendering. The read path
// only consults the cache (falling back to persisted rows) and triggers a
// background dispatch on a miss; it never computes inline. A deterministic
// time-bucket rotation selects a stable sub-slice of the cached top-K so
// repeated loads within a window show the same subset while successive
// windows vary it.
func (e *Engine) Display(ctx context.Context, userID uint64, count int) ([]types.RankedUser, error) {
	if count <= 0 {
		count = e.cfg.DisplayCount
	}

	list, cached := e.cache.Get(ctx, userID)

	if !cached {
		records, err := e.store.GetRecommendations(ctx, userID, e.cfg.TopK)
		if err != nil {
			return nil, err
		}

		for _, record := range records {
			list = append(list, types.RankedUser{
				UserID: record.RecommendedUserID,
				Score:  record.Score,
			})
		}

		if e.dispatcher != nil {
			if err := e.dispatcher.Dispatch(ctx, userID, "cache miss"); err != nil {
				e.logger.Warn("Failed to dispatch recompute",
					zap.Uint64("userID", userID),
					zap.Error(err))
			}
		}
	}

	list = e.selfHeal(ctx, userID, list, cached)

	return e.rotate(list, userID, count), nil
}

// selfHeal drops entries referencing users that have since been deleted or
// anonymized and rewrites the (shorter) cache value immediately instead of
// waiting for TTL expiry.
func (e *Engine) selfHeal(
	ctx context.Context, userID uint64, list []types.RankedUser, cached bool,
) []types.RankedUser {
	healed := make([]types.RankedUser, 0, len(list))

	for _, entry := range list {
		usable, err := e.store.IsUsable(ctx, entry.UserID)
		if err != nil {
			// Keep the entry on lookup failure; eviction needs certainty.
			healed = append(healed, entry)
			continue
		}

		if usable {
			healed = append(healed, entry)
		}
	}

	if cached && len(healed) < len(list) {
		if err := e.cache.Set(ctx, userID, healed); err != nil {
			e.logger.Warn("Failed to rewrite healed cache entry",
				zap.Uint64("userID", userID),
				zap.Error(err))
		}

		e.logger.Debug("Evicted stale recommendations",
			zap.Uint64("userID", userID),
			zap.Int("removed", len(list)-len(healed)))
	}

	return healed
}

// rotate returns the rotation-window slice of an already-ranked list.
// Rotation is a display stability mechanism only; it never reorders scores.
func (e *Engine) rotate(list []types.RankedUser, userID uint64, count int) []types.RankedUser {
	if len(list) <= count {
		return list
	}

	windowSeconds := int64(e.cfg.RotationWindowMinutes) * 60
	if windowSeconds <= 0 {
		return list[:count]
	}

	bucket := time.Now().Unix() / windowSeconds
	span := int64(len(list) - count + 1)
	offset := (bucket + int64(userID)) % span

	return list[offset : offset+int64(count)]
}
