package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/lumapix/lumapix/internal/setup/config"
	"go.uber.org/zap"
)

// Source supplies the embedding source of truth the index is built from.
// Satisfied by the photo model.
type Source interface {
	PhotosWithEmbeddings(ctx context.Context) ([]*types.Photo, error)
}

// Result is a single search hit: a photo and its inner-product score against
// the query. Vectors are stored L2-normalized, so the inner product equals
// cosine similarity.
type Result struct {
	PhotoID uint64  `json:"photoId"`
	Score   float64 `json:"score"`
}

// Stats describes the current state of the index.
type Stats struct {
	Size      int    `json:"size"`
	Dimension int    `json:"dimension"`
	Path      string `json:"path"`
}

// Index maintains a searchable set of normalized photo embeddings.
//
// All mutating operations (Build, Update, Remove, Clear) are serialized
// behind the write lock; searches take the read lock and may run
// concurrently with each other but never with a mutation in progress.
type Index struct {
	mu        sync.RWMutex
	vectors   [][]float64
	ids       []uint64
	positions map[uint64]int
	dim       int
	path      string
	source    Source
	logger    *zap.Logger
}

// New creates an index backed by the given source of truth. A snapshot is
// loaded from disk if one exists; a missing or corrupt snapshot leaves the
// index empty and triggers a rebuild on first use, never a startup failure.
func New(cfg *config.Vector, source Source, logger *zap.Logger) *Index {
	ix := &Index{
		positions: make(map[uint64]int),
		dim:       cfg.Dimension,
		path:      cfg.IndexPath,
		source:    source,
		logger:    logger.Named("vector_index"),
	}

	if err := ix.load(); err != nil {
		ix.logger.Warn("Failed to load index snapshot, starting empty", zap.Error(err))
		ix.reset()
	}

	return ix
}

// Normalize scales a vector to unit L2 length.
func Normalize(vec []float64) ([]float64, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}

	var sum float64
	for _, v := range vec {
		sum += v * v
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, ErrZeroNorm
	}

	unit := make([]float64, len(vec))
	for i, v := range vec {
		unit[i] = v / norm
	}

	return unit, nil
}

// Build (re)constructs the full index from the source of truth. It is a
// no-op when an index already exists and force is false. Returns false
// without error when the source holds no embeddings.
func (ix *Index) Build(ctx context.Context, force bool) (bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return ix.buildLocked(ctx, force)
}

// buildLocked is Build without locking; callers must hold the write lock.
func (ix *Index) buildLocked(ctx context.Context, force bool) (bool, error) {
	if len(ix.ids) > 0 && !force {
		return false, nil
	}

	photos, err := ix.source.PhotosWithEmbeddings(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load embeddings: %w", err)
	}

	ix.reset()

	for _, photo := range photos {
		if err := ix.insertLocked(photo); err != nil {
			// A single malformed embedding degrades that photo, not the build.
			ix.logger.Warn("Skipping photo with unusable embedding",
				zap.Uint64("photoID", photo.ID),
				zap.Error(err))
		}
	}

	if len(ix.ids) == 0 {
		// A forced rebuild that finds no embeddings must still overwrite
		// the old snapshot, or purged photos reappear after a restart.
		if force {
			ix.persistLocked()
		}

		return false, nil
	}

	ix.persistLocked()
	ix.logger.Info("Built vector index", zap.Int("size", len(ix.ids)))

	return true, nil
}

// Update inserts or replaces a single photo's vector and persists the index.
func (ix *Index) Update(ctx context.Context, photo *types.Photo) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !photo.HasEmbedding() {
		return ErrMissingEmbedding
	}

	if err := ix.insertLocked(photo); err != nil {
		return err
	}

	ix.persistLocked()

	return nil
}

// insertLocked normalizes and stores a photo's vector. An existing entry is
// logically replaced: its slot is overwritten rather than appended again, so
// the id-to-position mapping stays injective.
func (ix *Index) insertLocked(photo *types.Photo) error {
	if ix.dim > 0 && len(photo.Embedding) != ix.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(photo.Embedding), ix.dim)
	}

	unit, err := Normalize(photo.Embedding)
	if err != nil {
		return err
	}

	if pos, exists := ix.positions[photo.ID]; exists {
		ix.vectors[pos] = unit
		return nil
	}

	ix.positions[photo.ID] = len(ix.ids)
	ix.ids = append(ix.ids, photo.ID)
	ix.vectors = append(ix.vectors, unit)

	return nil
}

// Remove purges an entry from the index. The underlying store has no
// efficient point deletion, so removal always triggers a full rebuild from
// the source of truth. The source no longer contains the photo at this
// point, so the rebuilt index is the previous one minus the removed entry.
func (ix *Index) Remove(ctx context.Context, photoID uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.positions[photoID]; !exists {
		return nil
	}

	ix.logger.Info("Rebuilding index after removal", zap.Uint64("photoID", photoID))

	if _, err := ix.buildLocked(ctx, true); err != nil {
		return err
	}

	ix.persistLocked()

	return nil
}

// Search returns up to k photos ordered by descending similarity to the
// query. The excluded id never appears in results. An empty index attempts
// one lazy build; if it stays empty, an empty list is returned, not an error.
func (ix *Index) Search(
	ctx context.Context, query []float64, k int, excludeID uint64,
) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	unit, err := Normalize(query)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	if len(ix.ids) == 0 {
		ix.mu.RUnlock()

		if _, err := ix.Build(ctx, false); err != nil {
			return nil, err
		}

		ix.mu.RLock()
	}
	defer ix.mu.RUnlock()

	if len(ix.ids) == 0 {
		return []Result{}, nil
	}

	// Score every entry, then keep the top 2k raw candidates so the
	// exclusion filter cannot starve the final k.
	raw := make([]Result, 0, len(ix.ids))

	for pos, vec := range ix.vectors {
		if len(vec) != len(unit) {
			continue
		}

		var dot float64
		for i, v := range vec {
			dot += v * unit[i]
		}

		raw = append(raw, Result{PhotoID: ix.ids[pos], Score: dot})
	}

	sort.Slice(raw, func(i, j int) bool {
		if raw[i].Score != raw[j].Score {
			return raw[i].Score > raw[j].Score
		}

		return raw[i].PhotoID < raw[j].PhotoID
	})

	if len(raw) > 2*k {
		raw = raw[:2*k]
	}

	results := make([]Result, 0, k)

	for _, hit := range raw {
		if hit.PhotoID == excludeID || math.IsNaN(hit.Score) {
			continue
		}

		results = append(results, hit)
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// Stats returns the current index size and dimension.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return Stats{
		Size:      len(ix.ids),
		Dimension: ix.dim,
		Path:      ix.path,
	}
}

// Clear empties the index and persists the empty snapshot.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.reset()
	ix.persistLocked()
	ix.logger.Info("Cleared vector index")
}

// Save writes the current snapshot to disk. Unlike the automatic
// persistence after mutations, a failure here surfaces to the caller.
func (ix *Index) Save() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.path == "" {
		return nil
	}

	return ix.save()
}

// reset drops all in-memory state; callers must hold the write lock.
func (ix *Index) reset() {
	ix.vectors = nil
	ix.ids = nil
	ix.positions = make(map[uint64]int)
}

// persistLocked writes the snapshot to disk. Persistence failures are logged
// and the in-memory index continues to serve; they are never fatal.
func (ix *Index) persistLocked() {
	if ix.path == "" {
		return
	}

	if err := ix.save(); err != nil {
		ix.logger.Error("Failed to persist index snapshot", zap.Error(err))
	}
}
