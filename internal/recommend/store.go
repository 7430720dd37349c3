package recommend

import (
	"context"
	"time"

	"github.com/lumapix/lumapix/internal/database"
	"github.com/lumapix/lumapix/internal/database/types"
)

// Store describes the persistence reads and writes the engine performs.
// The production implementation wraps the database repositories; tests
// substitute an in-memory one.
type Store interface {
	// GetUser loads a single user record.
	GetUser(ctx context.Context, userID uint64) (*types.User, error)
	// IsUsable reports whether a user may still appear in served lists.
	IsUsable(ctx context.Context, userID uint64) (bool, error)
	// GetCandidates returns every user eligible for recommendation.
	GetCandidates(ctx context.Context) ([]*types.User, error)
	// GetFollowEdges returns every follow edge in the graph.
	GetFollowEdges(ctx context.Context) ([]*types.RelationshipEdge, error)
	// CountsSince returns a user's post and photo counts created at or
	// after the given time.
	CountsSince(ctx context.Context, userID uint64, since time.Time) (types.ActivityCounts, error)
	// GetLatestPhotos returns a user's most recent photos, newest first.
	GetLatestPhotos(ctx context.Context, userID uint64, limit int) ([]*types.Photo, error)
	// ReplaceRecommendations atomically replaces a user's persisted
	// recommendation generation.
	ReplaceRecommendations(ctx context.Context, userID uint64, records []*types.Recommendation) error
	// GetRecommendations returns a user's persisted recommendations in
	// descending score order.
	GetRecommendations(ctx context.Context, userID uint64, limit int) ([]*types.Recommendation, error)
}

// dbStore adapts the database client to the engine's Store.
type dbStore struct {
	db database.Client
}

// NewStore wraps the database client as the engine's data source.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) GetUser(ctx context.Context, userID uint64) (*types.User, error) {
	return s.db.Model().User().GetUser(ctx, userID)
}

func (s *dbStore) IsUsable(ctx context.Context, userID uint64) (bool, error) {
	return s.db.Model().User().IsUsable(ctx, userID)
}

func (s *dbStore) GetCandidates(ctx context.Context) ([]*types.User, error) {
	return s.db.Model().User().GetCandidates(ctx)
}

func (s *dbStore) GetFollowEdges(ctx context.Context) ([]*types.RelationshipEdge, error) {
	return s.db.Model().Relationship().GetFollowEdges(ctx)
}

func (s *dbStore) CountsSince(
	ctx context.Context, userID uint64, since time.Time,
) (types.ActivityCounts, error) {
	return s.db.Model().Activity().CountsSince(ctx, userID, since)
}

func (s *dbStore) GetLatestPhotos(
	ctx context.Context, userID uint64, limit int,
) ([]*types.Photo, error) {
	return s.db.Model().Photo().GetLatestPhotos(ctx, userID, limit)
}

func (s *dbStore) ReplaceRecommendations(
	ctx context.Context, userID uint64, records []*types.Recommendation,
) error {
	return s.db.Model().Recommendation().ReplaceForUser(ctx, userID, records)
}

func (s *dbStore) GetRecommendations(
	ctx context.Context, userID uint64, limit int,
) ([]*types.Recommendation, error) {
	return s.db.Model().Recommendation().GetForUser(ctx, userID, limit)
}
