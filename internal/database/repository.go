package database

import (
	"github.com/lumapix/lumapix/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	user           *models.UserModel
	photo          *models.PhotoModel
	relationship   *models.RelationshipModel
	recommendation *models.RecommendationModel
	activity       *models.ActivityModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		user:           models.NewUser(db, logger),
		photo:          models.NewPhoto(db, logger),
		relationship:   models.NewRelationship(db, logger),
		recommendation: models.NewRecommendation(db, logger),
		activity:       models.NewActivity(db, logger),
	}
}

// User returns the user model repository.
func (r *Repository) User() *models.UserModel {
	return r.user
}

// Photo returns the photo model repository.
func (r *Repository) Photo() *models.PhotoModel {
	return r.photo
}

// Relationship returns the relationship model repository.
func (r *Repository) Relationship() *models.RelationshipModel {
	return r.relationship
}

// Recommendation returns the recommendation model repository.
func (r *Repository) Recommendation() *models.RecommendationModel {
	return r.recommendation
}

// Activity returns the activity model repository.
func (r *Repository) Activity() *models.ActivityModel {
	return r.activity
}
