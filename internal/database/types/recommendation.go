package types

import "time"

// Recommendation represents a scored user recommendation persisted for a
// requester. Rows for a user are always replaced as a full generation,
// never patched, so a stored set is internally consistent.
type Recommendation struct {
	UserID            uint64    `bun:",pk"      json:"userId"`
	RecommendedUserID uint64    `bun:",pk"      json:"recommendedUserId"`
	Score             float64   `bun:",notnull" json:"score"`
	ComputedAt        time.Time `bun:",notnull" json:"computedAt"`
}

// RankedUser is a single entry in a served recommendation or display list.
type RankedUser struct {
	UserID uint64  `json:"userId"`
	Score  float64 `json:"score"`
}
