package migrations

import (
	"context"
	"fmt"

	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.User)(nil),
			(*types.Post)(nil),
			(*types.Photo)(nil),
			(*types.RelationshipEdge)(nil),
			(*types.Recommendation)(nil),
		}

		for _, model := range models {
			if _, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		indexes := []struct {
			table   string
			columns string
		}{
			{"photos", "owner_id, created_at DESC"},
			{"posts", "owner_id, created_at DESC"},
			{"relationship_edges", "to_user_id"},
			{"recommendations", "user_id, score DESC"},
		}

		for i, idx := range indexes {
			if _, err := db.ExecContext(ctx, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%d ON %s (%s)",
				idx.table, i, idx.table, idx.columns,
			)); err != nil {
				return fmt.Errorf("failed to create index on %s: %w", idx.table, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"recommendations", "relationship_edges", "photos", "posts", "users",
		}

		for _, table := range tables {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
