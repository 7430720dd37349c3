package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lumapix/lumapix/internal/database/dbretry"
	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PhotoModel handles database operations for photo records. The photos table
// is the source of truth the vector index is rebuilt from.
type PhotoModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPhoto creates a PhotoModel for accessing photo records.
func NewPhoto(db *bun.DB, logger *zap.Logger) *PhotoModel {
	return &PhotoModel{
		db:     db,
		logger: logger.Named("db_photo"),
	}
}

// GetPhoto retrieves a single photo by ID.
func (r *PhotoModel) GetPhoto(ctx context.Context, photoID uint64) (*types.Photo, error) {
	photo, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.Photo, error) {
		var photo types.Photo

		err := r.db.NewSelect().
			Model(&photo).
			Where("id = ?", photoID).
			Scan(ctx)

		return &photo, err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrPhotoNotFound
		}

		return nil, fmt.Errorf("failed to get photo %d: %w", photoID, err)
	}

	return photo, nil
}

// PhotosWithEmbeddings returns every photo carrying an embedding vector.
// This is the embedding source of truth used for index builds and rebuilds.
func (r *PhotoModel) PhotosWithEmbeddings(ctx context.Context) ([]*types.Photo, error) {
	photos, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Photo, error) {
		var photos []*types.Photo

		err := r.db.NewSelect().
			Model(&photos).
			Where("embedding IS NOT NULL").
			Order("id ASC").
			Scan(ctx)

		return photos, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get photos with embeddings: %w", err)
	}

	return photos, nil
}

// GetLatestPhotos returns a user's most recent photos, newest first.
func (r *PhotoModel) GetLatestPhotos(
	ctx context.Context, ownerID uint64, limit int,
) ([]*types.Photo, error) {
	photos, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Photo, error) {
		var photos []*types.Photo

		err := r.db.NewSelect().
			Model(&photos).
			Where("owner_id = ?", ownerID).
			Order("created_at DESC").
			Limit(limit).
			Scan(ctx)

		return photos, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest photos for user %d: %w", ownerID, err)
	}

	return photos, nil
}
