package types

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidUserID = errors.New("invalid user ID")
)

// User represents an account supplied by the account-lifecycle collaborator.
// Identity fields are immutable from this subsystem's point of view; only the
// external lifecycle service mutates them.
type User struct {
	ID           uint64    `bun:",pk"                    json:"id"`
	Username     string    `bun:",notnull"               json:"username"`
	IsActive     bool      `bun:",notnull,default:true"  json:"isActive"`
	IsAnonymized bool      `bun:",notnull,default:false" json:"isAnonymized"`
	IsPrivate    bool      `bun:",notnull,default:false" json:"isPrivate"`
	JoinedAt     time.Time `bun:",notnull"               json:"joinedAt"`
}

// Post represents a text post counted by the activity signals.
// Only the owner and creation time matter to scoring.
type Post struct {
	ID        uint64    `bun:",pk"      json:"id"`
	OwnerID   uint64    `bun:",notnull" json:"ownerId"`
	CreatedAt time.Time `bun:",notnull" json:"createdAt"`
}

// ActivityCounts bundles a user's post and photo counts for a time window.
type ActivityCounts struct {
	PostCount  int `json:"postCount"`
	PhotoCount int `json:"photoCount"`
}

// Total returns the combined post and photo count.
func (a ActivityCounts) Total() int {
	return a.PostCount + a.PhotoCount
}
