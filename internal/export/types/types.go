package types

import "time"

// ExportRecord is one persisted recommendation in export form, shared by
// every output format.
type ExportRecord struct {
	UserID            uint64    `json:"userId"`
	RecommendedUserID uint64    `json:"recommendedUserId"`
	Score             float64   `json:"score"`
	ComputedAt        time.Time `json:"computedAt"`
}
