package similarity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// pairKeyPrefix namespaces cached pairwise scores. Keys canonicalize the
	// pair as (min,max) so both orderings hit the same entry.
	pairKeyPrefix = "sim:"

	// signalKeyPrefix namespaces the signal-presence fast path. Presence
	// flags are cheap and long-lived, so skipping hopeless comparisons
	// stays cheap.
	signalKeyPrefix = "sim_signal:"

	// disabledKey is the operational kill switch. While set, every pair
	// scores 0 without invoking the compute function.
	disabledKey = "similarity:disabled"

	// signalTTL controls how long signal-presence flags remain cached.
	signalTTL = 24 * time.Hour
)

// PairCache memoizes pairwise similarity scores in Redis.
type PairCache struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPairCache initializes the pairwise score cache. The client is expected
// to be connected to the similarity database index.
func NewPairCache(client rueidis.Client, cacheTTL time.Duration, logger *zap.Logger) *PairCache {
	return &PairCache{
		client: client,
		ttl:    cacheTTL,
		logger: logger.Named("similarity_cache"),
	}
}

// PairKey canonicalizes an unordered photo pair into a cache key.
func PairKey(idA, idB uint64) string {
	if idA > idB {
		idA, idB = idB, idA
	}

	return fmt.Sprintf("%s%d:%d", pairKeyPrefix, idA, idB)
}

// GetOrCompute returns the cached score for a photo pair, invoking compute
// and caching the result on a miss. While the kill switch is set, every pair
// resolves to 0 without computing.
func (c *PairCache) GetOrCompute(
	ctx context.Context, idA, idB uint64, compute func() (float64, error),
) (float64, error) {
	if c.IsDisabled(ctx) {
		return 0, nil
	}

	key := PairKey(idA, idB)

	cached, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if err == nil {
		score, parseErr := strconv.ParseFloat(cached, 64)
		if parseErr == nil {
			return score, nil
		}

		c.logger.Warn("Invalid cached similarity value",
			zap.String("key", key),
			zap.String("value", cached))
	} else if !rueidis.IsRedisNil(err) {
		c.logger.Warn("Failed to read similarity cache", zap.String("key", key), zap.Error(err))
	}

	score, err := compute()
	if err != nil {
		return 0, err
	}

	setErr := c.client.Do(ctx, c.client.B().Set().
		Key(key).
		Value(strconv.FormatFloat(score, 'g', -1, 64)).
		Ex(c.ttl).
		Build(),
	).Error()
	if setErr != nil {
		c.logger.Warn("Failed to cache similarity score", zap.String("key", key), zap.Error(setErr))
	}

	return score, nil
}

// HasSignal reports whether a photo has any usable comparison signal,
// caching the answer aggressively. The load function is only invoked on a
// cache miss.
func (c *PairCache) HasSignal(
	ctx context.Context, photoID uint64, load func() (bool, error),
) (bool, error) {
	key := signalKeyPrefix + strconv.FormatUint(photoID, 10)

	cached, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if err == nil {
		return cached == "1", nil
	}

	if !rueidis.IsRedisNil(err) {
		c.logger.Warn("Failed to read signal presence cache",
			zap.Uint64("photoID", photoID),
			zap.Error(err))
	}

	present, err := load()
	if err != nil {
		return false, err
	}

	value := "0"
	if present {
		value = "1"
	}

	setErr := c.client.Do(ctx, c.client.B().Set().
		Key(key).
		Value(value).
		Ex(signalTTL).
		Build(),
	).Error()
	if setErr != nil {
		c.logger.Warn("Failed to cache signal presence",
			zap.Uint64("photoID", photoID),
			zap.Error(setErr))
	}

	return present, nil
}

// InvalidateSignal drops a photo's cached signal-presence flag, used when a
// photo gains or loses an embedding.
func (c *PairCache) InvalidateSignal(ctx context.Context, photoID uint64) {
	key := signalKeyPrefix + strconv.FormatUint(photoID, 10)

	if err := c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error(); err != nil {
		c.logger.Warn("Failed to invalidate signal presence",
			zap.Uint64("photoID", photoID),
			zap.Error(err))
	}
}

// SetDisabled toggles the global kill switch for similarity computation.
func (c *PairCache) SetDisabled(ctx context.Context, disabled bool) error {
	var err error
	if disabled {
		err = c.client.Do(ctx, c.client.B().Set().Key(disabledKey).Value("1").Build()).Error()
	} else {
		err = c.client.Do(ctx, c.client.B().Del().Key(disabledKey).Build()).Error()
	}

	if err != nil {
		return fmt.Errorf("failed to toggle similarity kill switch: %w", err)
	}

	c.logger.Info("Toggled similarity kill switch", zap.Bool("disabled", disabled))

	return nil
}

// IsDisabled reports whether the kill switch is currently set. Read errors
// fail open; a cache outage must not disable scoring.
func (c *PairCache) IsDisabled(ctx context.Context) bool {
	_, err := c.client.Do(ctx, c.client.B().Get().Key(disabledKey).Build()).ToString()
	if err != nil {
		return false
	}

	return true
}
