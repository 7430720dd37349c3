package models

import (
	"context"
	"fmt"

	"github.com/lumapix/lumapix/internal/database/dbretry"
	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RecommendationModel handles database operations for persisted
// recommendation records.
type RecommendationModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRecommendation creates a RecommendationModel for managing
// recommendation records.
func NewRecommendation(db *bun.DB, logger *zap.Logger) *RecommendationModel {
	return &RecommendationModel{
		db:     db,
		logger: logger.Named("db_recommendation"),
	}
}

// ReplaceForUser atomically replaces all recommendation rows for a user with
// a new generation. Delete-then-insert inside one transaction keeps mixed
// generations from ever being observable.
func (r *RecommendationModel) ReplaceForUser(
	ctx context.Context, userID uint64, recs []*types.Recommendation,
) error {
	err := dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*types.Recommendation)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return err
		}

		if len(recs) == 0 {
			return nil
		}

		_, err := tx.NewInsert().
			Model(&recs).
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to replace recommendations for user %d: %w", userID, err)
	}

	r.logger.Debug("Replaced recommendations",
		zap.Uint64("userID", userID),
		zap.Int("count", len(recs)))

	return nil
}

// GetForUser returns a user's persisted recommendations ordered by score.
func (r *RecommendationModel) GetForUser(
	ctx context.Context, userID uint64, limit int,
) ([]*types.Recommendation, error) {
	recs, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Recommendation, error) {
		var recs []*types.Recommendation

		query := r.db.NewSelect().
			Model(&recs).
			Where("user_id = ?", userID).
			Order("score DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}

		err := query.Scan(ctx)

		return recs, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendations for user %d: %w", userID, err)
	}

	return recs, nil
}

// GetAll returns every persisted recommendation row, ordered per user by
// score. Used by the export command.
func (r *RecommendationModel) GetAll(ctx context.Context) ([]*types.Recommendation, error) {
	recs, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Recommendation, error) {
		var recs []*types.Recommendation

		err := r.db.NewSelect().
			Model(&recs).
			Order("user_id ASC", "score DESC").
			Scan(ctx)

		return recs, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get all recommendations: %w", err)
	}

	return recs, nil
}
