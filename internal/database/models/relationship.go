package models

import (
	"context"
	"fmt"

	"github.com/lumapix/lumapix/internal/database/dbretry"
	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RelationshipModel handles database operations for the directed follow graph.
type RelationshipModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRelationship creates a RelationshipModel for querying follow edges.
func NewRelationship(db *bun.DB, logger *zap.Logger) *RelationshipModel {
	return &RelationshipModel{
		db:     db,
		logger: logger.Named("db_relationship"),
	}
}

// GetFollowEdges returns every follow edge in the graph. Close-friend edges
// are excluded; they annotate follows rather than extend the graph.
func (r *RelationshipModel) GetFollowEdges(ctx context.Context) ([]*types.RelationshipEdge, error) {
	edges, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.RelationshipEdge, error) {
		var edges []*types.RelationshipEdge

		err := r.db.NewSelect().
			Model(&edges).
			Where("type = ?", types.RelationshipFollow).
			Scan(ctx)

		return edges, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get follow edges: %w", err)
	}

	return edges, nil
}
