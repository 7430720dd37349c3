package types

import "time"

// RelationshipType identifies the kind of directed edge between two users.
type RelationshipType string

const (
	// RelationshipFollow is a standard directed follow edge.
	RelationshipFollow RelationshipType = "follow"
	// RelationshipCloseFriend marks a followee as a close friend.
	// Friendship itself is derived from mutual follow edges, never stored.
	RelationshipCloseFriend RelationshipType = "close_friend"
)

// RelationshipEdge represents a directed edge in the social graph.
type RelationshipEdge struct {
	FromUserID uint64           `bun:",pk"      json:"fromUserId"`
	ToUserID   uint64           `bun:",pk"      json:"toUserId"`
	Type       RelationshipType `bun:",pk"      json:"type"`
	CreatedAt  time.Time        `bun:",notnull" json:"createdAt"`
}
