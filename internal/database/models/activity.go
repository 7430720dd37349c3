package models

import (
	"context"
	"fmt"
	"time"

	"github.com/lumapix/lumapix/internal/database/dbretry"
	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ActivityModel handles database operations for user activity counters.
// Post and photo counts feed the recommendation boost cascade.
type ActivityModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewActivity creates an ActivityModel for querying activity counters.
func NewActivity(db *bun.DB, logger *zap.Logger) *ActivityModel {
	return &ActivityModel{
		db:     db,
		logger: logger.Named("db_activity"),
	}
}

// CountsSince returns a user's post and photo counts created after the given
// time. A zero time returns lifetime counts.
func (r *ActivityModel) CountsSince(
	ctx context.Context, userID uint64, since time.Time,
) (types.ActivityCounts, error) {
	counts, err := dbretry.Operation(ctx, func(ctx context.Context) (types.ActivityCounts, error) {
		var counts types.ActivityCounts

		postQuery := r.db.NewSelect().
			Model((*types.Post)(nil)).
			Where("owner_id = ?", userID)
		if !since.IsZero() {
			postQuery = postQuery.Where("created_at > ?", since)
		}

		postCount, err := postQuery.Count(ctx)
		if err != nil {
			return counts, err
		}

		photoQuery := r.db.NewSelect().
			Model((*types.Photo)(nil)).
			Where("owner_id = ?", userID)
		if !since.IsZero() {
			photoQuery = photoQuery.Where("created_at > ?", since)
		}

		photoCount, err := photoQuery.Count(ctx)
		if err != nil {
			return counts, err
		}

		counts.PostCount = postCount
		counts.PhotoCount = photoCount

		return counts, nil
	})
	if err != nil {
		return types.ActivityCounts{}, fmt.Errorf(
			"failed to get activity counts for user %d: %w", userID, err)
	}

	return counts, nil
}
