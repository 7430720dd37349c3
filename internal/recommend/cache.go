package recommend

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// recsKeyPrefix namespaces per-user recommendation lists in Redis.
// Keys are formatted as "recs:{userID}".
const recsKeyPrefix = "recs:"

// Cache stores display-ready recommendation lists per user with a TTL.
// Writes replace the whole value for a key, so a concurrent reader always
// observes one complete generation, never a partial update.
type Cache struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache initializes the recommendation list cache. The client is expected
// to be connected to the recommendation database index.
func NewCache(client rueidis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("recommendation_cache"),
	}
}

func recsKey(userID uint64) string {
	return recsKeyPrefix + strconv.FormatUint(userID, 10)
}

// Get returns a user's cached recommendation list. The second return value
// reports whether a cached list was present.
func (c *Cache) Get(ctx context.Context, userID uint64) ([]types.RankedUser, bool) {
	raw, err := c.client.Do(ctx, c.client.B().Get().Key(recsKey(userID)).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("Failed to read recommendation cache",
				zap.Uint64("userID", userID),
				zap.Error(err))
		}

		return nil, false
	}

	var list []types.RankedUser
	if err := sonic.Unmarshal(raw, &list); err != nil {
		c.logger.Warn("Invalid cached recommendation list",
			zap.Uint64("userID", userID),
			zap.Error(err))

		return nil, false
	}

	return list, true
}

// Set replaces a user's cached recommendation list.
func (c *Cache) Set(ctx context.Context, userID uint64, list []types.RankedUser) error {
	raw, err := sonic.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation list: %w", err)
	}

	err = c.client.Do(ctx, c.client.B().Set().
		Key(recsKey(userID)).
		Value(string(raw)).
		Ex(c.ttl).
		Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to cache recommendations for user %d: %w", userID, err)
	}

	return nil
}

// Invalidate drops a user's cached recommendation list.
func (c *Cache) Invalidate(ctx context.Context, userID uint64) error {
	err := c.client.Do(ctx, c.client.B().Del().Key(recsKey(userID)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to invalidate recommendations for user %d: %w", userID, err)
	}

	return nil
}
