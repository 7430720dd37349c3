package vector_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/lumapix/lumapix/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSource serves a fixed photo set as the index's source of truth.
type stubSource struct {
	photos []*types.Photo
}

func (s *stubSource) PhotosWithEmbeddings(_ context.Context) ([]*types.Photo, error) {
	return s.photos, nil
}

func photo(id uint64, embedding []float64) *types.Photo {
	return &types.Photo{ID: id, OwnerID: id, Embedding: embedding}
}

func newTestIndex(t *testing.T, source *stubSource) *vector.Index {
	t.Helper()

	cfg := &config.Vector{
		Dimension: 3,
		IndexPath: filepath.Join(t.TempDir(), "index.gob"),
	}

	return vector.New(cfg, source, zap.NewNop())
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("unit length", func(t *testing.T) {
		t.Parallel()

		unit, err := vector.Normalize([]float64{3, 0, 4})
		require.NoError(t, err)

		var sum float64
		for _, v := range unit {
			sum += v * v
		}

		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-12)
		assert.InDelta(t, 0.6, unit[0], 1e-12)
		assert.InDelta(t, 0.8, unit[2], 1e-12)
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		once, err := vector.Normalize([]float64{1, 2, 2})
		require.NoError(t, err)

		twice, err := vector.Normalize(once)
		require.NoError(t, err)

		for i := range once {
			assert.InDelta(t, once[i], twice[i], 1e-12)
		}
	})

	t.Run("empty vector", func(t *testing.T) {
		t.Parallel()

		_, err := vector.Normalize(nil)
		assert.ErrorIs(t, err, vector.ErrEmptyVector)
	})

	t.Run("zero norm", func(t *testing.T) {
		t.Parallel()

		_, err := vector.Normalize([]float64{0, 0, 0})
		assert.ErrorIs(t, err, vector.ErrZeroNorm)
	})
}

func TestIndexBuild(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
		photo(2, []float64{0, 1, 0}),
		photo(3, []float64{0, 0, 1}),
	}}
	ix := newTestIndex(t, source)

	built, err := ix.Build(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 3, ix.Stats().Size)

	// Second build without force is a no-op.
	built, err = ix.Build(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, built)
}

func TestIndexBuildEmptySource(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t, &stubSource{})

	built, err := ix.Build(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, 0, ix.Stats().Size)
}

func TestIndexBuildSkipsMalformed(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
		photo(2, []float64{0, 0, 0}),
		photo(3, []float64{1, 2}),
	}}
	ix := newTestIndex(t, source)

	built, err := ix.Build(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 1, ix.Stats().Size)
}

func TestIndexSearch(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
		photo(2, []float64{0.9, 0.1, 0}),
		photo(3, []float64{0, 1, 0}),
		photo(4, []float64{0, 0, 1}),
	}}
	ix := newTestIndex(t, source)

	_, err := ix.Build(context.Background(), false)
	require.NoError(t, err)

	t.Run("orders by similarity", func(t *testing.T) {
		t.Parallel()

		results, err := ix.Search(context.Background(), []float64{1, 0, 0}, 3, 0)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, uint64(1), results[0].PhotoID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-12)
		assert.Equal(t, uint64(2), results[1].PhotoID)
		assert.Greater(t, results[0].Score, results[1].Score)
		assert.Greater(t, results[1].Score, results[2].Score)
	})

	t.Run("excludes query photo", func(t *testing.T) {
		t.Parallel()

		results, err := ix.Search(context.Background(), []float64{1, 0, 0}, 4, 1)
		require.NoError(t, err)

		for _, result := range results {
			assert.NotEqual(t, uint64(1), result.PhotoID)
		}
	})

	t.Run("caps at k", func(t *testing.T) {
		t.Parallel()

		results, err := ix.Search(context.Background(), []float64{1, 0, 0}, 2, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("zero query vector", func(t *testing.T) {
		t.Parallel()

		_, err := ix.Search(context.Background(), []float64{0, 0, 0}, 3, 0)
		assert.ErrorIs(t, err, vector.ErrZeroNorm)
	})
}

func TestIndexSearchLazyBuild(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
	}}
	ix := newTestIndex(t, source)

	// No explicit Build; the first search constructs the index.
	results, err := ix.Search(context.Background(), []float64{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].PhotoID)
}

func TestIndexSearchEmptyIndex(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t, &stubSource{})

	results, err := ix.Search(context.Background(), []float64{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexUpdate(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
	}}
	ix := newTestIndex(t, source)

	_, err := ix.Build(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, ix.Update(context.Background(), photo(2, []float64{0, 1, 0})))
	assert.Equal(t, 2, ix.Stats().Size)

	// Replacing an existing photo keeps the size stable.
	require.NoError(t, ix.Update(context.Background(), photo(2, []float64{0, 0, 1})))
	assert.Equal(t, 2, ix.Stats().Size)

	results, err := ix.Search(context.Background(), []float64{0, 0, 1}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].PhotoID)
}

func TestIndexUpdateMissingEmbedding(t *testing.T) {
	t.Parallel()

	ix := newTestIndex(t, &stubSource{})

	err := ix.Update(context.Background(), photo(1, nil))
	assert.ErrorIs(t, err, vector.ErrMissingEmbedding)
}

func TestIndexRemove(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
		photo(2, []float64{0, 1, 0}),
	}}
	ix := newTestIndex(t, source)

	_, err := ix.Build(context.Background(), false)
	require.NoError(t, err)

	// Source of truth no longer has the photo; removal rebuilds from it.
	source.photos = source.photos[:1]

	require.NoError(t, ix.Remove(context.Background(), 2))
	assert.Equal(t, 1, ix.Stats().Size)

	// Removing an absent photo is a no-op.
	require.NoError(t, ix.Remove(context.Background(), 99))
	assert.Equal(t, 1, ix.Stats().Size)
}

func TestIndexPersistence(t *testing.T) {
	t.Parallel()

	cfg := &config.Vector{
		Dimension: 3,
		IndexPath: filepath.Join(t.TempDir(), "index.gob"),
	}
	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
		photo(2, []float64{0, 1, 0}),
	}}

	ix := vector.New(cfg, source, zap.NewNop())
	_, err := ix.Build(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, ix.Save())

	// A fresh index with an empty source restores from the snapshot.
	restored := vector.New(cfg, &stubSource{}, zap.NewNop())
	assert.Equal(t, 2, restored.Stats().Size)

	results, err := restored.Search(context.Background(), []float64{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].PhotoID)
}

func TestIndexForcedRebuildEmptiesSnapshot(t *testing.T) {
	t.Parallel()

	cfg := &config.Vector{
		Dimension: 3,
		IndexPath: filepath.Join(t.TempDir(), "index.gob"),
	}
	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
	}}

	ix := vector.New(cfg, source, zap.NewNop())
	_, err := ix.Build(context.Background(), false)
	require.NoError(t, err)

	// Every photo is purged from the source of truth before the rebuild.
	source.photos = nil

	built, err := ix.Build(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, 0, ix.Stats().Size)

	// The emptied state survives a restart; the old snapshot must not
	// resurrect the purged photo.
	restored := vector.New(cfg, &stubSource{}, zap.NewNop())
	assert.Equal(t, 0, restored.Stats().Size)
}

func TestIndexClear(t *testing.T) {
	t.Parallel()

	source := &stubSource{photos: []*types.Photo{
		photo(1, []float64{1, 0, 0}),
	}}
	ix := newTestIndex(t, source)

	_, err := ix.Build(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 1, ix.Stats().Size)

	ix.Clear()
	assert.Equal(t, 0, ix.Stats().Size)
}
