package similarity

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/lumapix/lumapix/internal/vector"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// coarseFactor controls how many index candidates are retrieved per
// requested result before hybrid re-scoring. The index only captures the
// visual signal, so re-ranking needs headroom.
const coarseFactor = 4

// Scorer combines visual, metadata, and location signals into one composite
// similarity score per photo pair.
type Scorer struct {
	index  *vector.Index
	cache  *PairCache
	cfg    *config.Similarity
	logger *zap.Logger
}

// NewScorer creates a hybrid similarity scorer.
func NewScorer(
	index *vector.Index, cache *PairCache, cfg *config.Similarity, logger *zap.Logger,
) *Scorer {
	return &Scorer{
		index:  index,
		cache:  cache,
		cfg:    cfg,
		logger: logger.Named("similarity"),
	}
}

// Cache returns the scorer's pairwise cache, exposed for operational
// controls like the kill switch.
func (s *Scorer) Cache() *PairCache {
	return s.cache
}

// VisualSimilarity compares two embedding vectors with the selected metric.
// A malformed or absent embedding contributes 0 rather than failing the
// comparison.
func (s *Scorer) VisualSimilarity(vecA, vecB []float64, metric Metric) float64 {
	score, err := Compare(vecA, vecB, metric)
	if err != nil {
		return 0
	}

	return score
}

// ExifSimilarity compares the numeric EXIF fields shared by both photos,
// scaled to a common range, using the same metric as visual similarity.
func (s *Scorer) ExifSimilarity(photoA, photoB *types.Photo, metric Metric) float64 {
	vecA, vecB := exifVectors(photoA, photoB)

	score, err := Compare(vecA, vecB, metric)
	if err != nil {
		return 0
	}

	return score
}

// LocationSimilarity scores two photos by great-circle distance: 1.0 for
// identical coordinates, decaying toward 0 past the configured radius, 0 if
// either photo lacks coordinates.
func (s *Scorer) LocationSimilarity(photoA, photoB *types.Photo) float64 {
	if !photoA.HasLocation() || !photoB.HasLocation() {
		return 0
	}

	distance := haversineKM(
		*photoA.Latitude, *photoA.Longitude,
		*photoB.Latitude, *photoB.Longitude,
	)

	return locationScore(distance, s.cfg.LocationRadiusKM)
}

// HybridSimilarity combines the three signals into one composite score.
// Weights come from configuration; a missing signal contributes 0 to the
// weighted sum rather than aborting the comparison.
func (s *Scorer) HybridSimilarity(photoA, photoB *types.Photo, metric Metric) float64 {
	totalWeight := s.cfg.VisualWeight + s.cfg.ExifWeight + s.cfg.LocationWeight
	if totalWeight <= 0 {
		return 0
	}

	weighted := s.cfg.VisualWeight*s.VisualSimilarity(photoA.Embedding, photoB.Embedding, metric) +
		s.cfg.ExifWeight*s.ExifSimilarity(photoA, photoB, metric) +
		s.cfg.LocationWeight*s.LocationSimilarity(photoA, photoB)

	return weighted / totalWeight
}

// CachedHybridSimilarity resolves the pair through the similarity cache,
// computing on a miss. Errors resolve to 0 at this boundary; a single pair
// never fails a larger scoring pass.
func (s *Scorer) CachedHybridSimilarity(
	ctx context.Context, photoA, photoB *types.Photo, metric Metric,
) float64 {
	score, err := s.cache.GetOrCompute(ctx, photoA.ID, photoB.ID, func() (float64, error) {
		return s.HybridSimilarity(photoA, photoB, metric), nil
	})
	if err != nil {
		s.logger.Warn("Failed to score photo pair",
			zap.Uint64("photoA", photoA.ID),
			zap.Uint64("photoB", photoB.ID),
			zap.Error(err))

		return 0
	}

	return score
}

// FindSimilar returns up to k candidates ranked by hybrid similarity to the
// query photo, applying the threshold cutoff.
//
// When useIndex is true and the query has an embedding, coarse candidates
// come from the vector index and are re-scored with the full hybrid metric.
// Otherwise every pool candidate is scored pairwise. Both paths produce
// identical orderings for the same inputs.
func (s *Scorer) FindSimilar(
	ctx context.Context, query *types.Photo, candidates []*types.Photo,
	k int, threshold float64, metric Metric, useIndex bool,
) ([]vector.Result, error) {
	if k <= 0 || !query.HasAnySignal() {
		return []vector.Result{}, nil
	}

	byID := make(map[uint64]*types.Photo, len(candidates))
	for _, photo := range candidates {
		byID[photo.ID] = photo
	}

	var eligible []*types.Photo

	if useIndex && query.HasEmbedding() {
		hits, err := s.index.Search(ctx, query.Embedding, coarseFactor*k, query.ID)
		if err != nil {
			if errors.Is(err, vector.ErrEmptyVector) || errors.Is(err, vector.ErrZeroNorm) {
				return []vector.Result{}, nil
			}

			return nil, err
		}

		for _, hit := range hits {
			if photo, ok := byID[hit.PhotoID]; ok {
				eligible = append(eligible, photo)
			}
		}
	} else {
		for _, photo := range candidates {
			if photo.ID != query.ID {
				eligible = append(eligible, photo)
			}
		}
	}

	results := s.scorePool(ctx, query, eligible, metric)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		return results[i].PhotoID < results[j].PhotoID
	})

	filtered := make([]vector.Result, 0, k)

	for _, result := range results {
		if result.Score < threshold {
			continue
		}

		filtered = append(filtered, result)
		if len(filtered) == k {
			break
		}
	}

	return filtered, nil
}

// scorePool computes hybrid scores for all eligible candidates in parallel.
// Candidates without any usable signal are excluded rather than scored.
func (s *Scorer) scorePool(
	ctx context.Context, query *types.Photo, eligible []*types.Photo, metric Metric,
) []vector.Result {
	var (
		mu      sync.Mutex
		results = make([]vector.Result, 0, len(eligible))
	)

	p := pool.New().WithContext(ctx)

	for _, candidate := range eligible {
		candidate := candidate

		p.Go(func(ctx context.Context) error {
			comparable, err := s.cache.HasSignal(ctx, candidate.ID, func() (bool, error) {
				return candidate.HasAnySignal(), nil
			})
			if err != nil || !comparable {
				return nil
			}

			score := s.CachedHybridSimilarity(ctx, query, candidate, metric)

			mu.Lock()
			results = append(results, vector.Result{PhotoID: candidate.ID, Score: score})
			mu.Unlock()

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		s.logger.Warn("Similarity scoring pool reported errors", zap.Error(err))
	}

	return results
}
