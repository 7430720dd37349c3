package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Freshness describes a user's recommendation state. An absent key reads as
// stale, so state storage loss degrades to recomputation rather than serving
// stale data as fresh.
type Freshness string

const (
	FreshnessStale       Freshness = "stale"
	FreshnessRecomputing Freshness = "recomputing"
	FreshnessFresh       Freshness = "fresh"
)

// stateKeyPrefix namespaces the per-user freshness keys.
// Keys are formatted as "rec_state:{userID}".
const stateKeyPrefix = "rec_state:"

// StateStore tracks per-user recommendation freshness in Redis. Fresh
// entries carry a TTL so recommendations age back to stale on their own.
type StateStore struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStateStore initializes the freshness state store. The client is
// expected to be connected to the scheduler database index.
func NewStateStore(client rueidis.Client, freshTTL time.Duration, logger *zap.Logger) *StateStore {
	return &StateStore{
		client: client,
		ttl:    freshTTL,
		logger: logger.Named("state_store"),
	}
}

func stateKey(userID uint64) string {
	return stateKeyPrefix + strconv.FormatUint(userID, 10)
}

// Get returns a user's current freshness. Missing keys and read errors both
// resolve to stale.
func (s *StateStore) Get(ctx context.Context, userID uint64) Freshness {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(stateKey(userID)).Build()).ToString()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.logger.Warn("Failed to read freshness state",
				zap.Uint64("userID", userID),
				zap.Error(err))
		}

		return FreshnessStale
	}

	switch Freshness(value) {
	case FreshnessRecomputing:
		return FreshnessRecomputing
	case FreshnessFresh:
		return FreshnessFresh
	default:
		return FreshnessStale
	}
}

// MarkRecomputing flags a user as mid-recompute. The key carries the fresh
// TTL as a safety bound in case the worker dies before resolving it.
func (s *StateStore) MarkRecomputing(ctx context.Context, userID uint64) error {
	err := s.client.Do(ctx, s.client.B().Set().
		Key(stateKey(userID)).
		Value(string(FreshnessRecomputing)).
		Ex(s.ttl).
		Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to mark user %d recomputing: %w", userID, err)
	}

	return nil
}

// MarkFresh flags a user's recommendations as current. The TTL returns the
// user to stale when the freshness window lapses.
func (s *StateStore) MarkFresh(ctx context.Context, userID uint64) error {
	err := s.client.Do(ctx, s.client.B().Set().
		Key(stateKey(userID)).
		Value(string(FreshnessFresh)).
		Ex(s.ttl).
		Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to mark user %d fresh: %w", userID, err)
	}

	return nil
}

// MarkStale drops a user's freshness key, forcing the next read to trigger a
// recompute. Previously persisted recommendations remain servable.
func (s *StateStore) MarkStale(ctx context.Context, userID uint64) error {
	err := s.client.Do(ctx, s.client.B().Del().Key(stateKey(userID)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to mark user %d stale: %w", userID, err)
	}

	return nil
}
