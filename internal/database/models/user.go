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

// UserModel handles database operations for user records.
type UserModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewUser creates a UserModel for accessing user records.
func NewUser(db *bun.DB, logger *zap.Logger) *UserModel {
	return &UserModel{
		db:     db,
		logger: logger.Named("db_user"),
	}
}

// GetUser retrieves a single user by ID.
func (r *UserModel) GetUser(ctx context.Context, userID uint64) (*types.User, error) {
	user, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.User, error) {
		var user types.User

		err := r.db.NewSelect().
			Model(&user).
			Where("id = ?", userID).
			Scan(ctx)

		return &user, err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	return user, nil
}

// GetCandidates retrieves all users eligible to appear in recommendation
// results: active accounts that have not been anonymized.
func (r *UserModel) GetCandidates(ctx context.Context) ([]*types.User, error) {
	users, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.User, error) {
		var users []*types.User

		err := r.db.NewSelect().
			Model(&users).
			Where("is_active = TRUE").
			Where("is_anonymized = FALSE").
			Scan(ctx)

		return users, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate users: %w", err)
	}

	return users, nil
}

// IsUsable reports whether a user may still be shown in served lists.
// Deleted or anonymized accounts are filtered out of cached results lazily.
func (r *UserModel) IsUsable(ctx context.Context, userID uint64) (bool, error) {
	exists, err := dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		return r.db.NewSelect().
			Model((*types.User)(nil)).
			Where("id = ?", userID).
			Where("is_active = TRUE").
			Where("is_anonymized = FALSE").
			Exists(ctx)
	})
	if err != nil {
		return false, fmt.Errorf("failed to check user %d: %w", userID, err)
	}

	return exists, nil
}
