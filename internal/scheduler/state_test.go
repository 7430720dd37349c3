package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/lumapix/lumapix/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStateDefaultsToStale(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	store := scheduler.NewStateStore(client, time.Hour, zap.NewNop())

	assert.Equal(t, scheduler.FreshnessStale, store.Get(context.Background(), 1))
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	store := scheduler.NewStateStore(client, time.Hour, zap.NewNop())

	ctx := context.Background()

	require.NoError(t, store.MarkRecomputing(ctx, 1))
	assert.Equal(t, scheduler.FreshnessRecomputing, store.Get(ctx, 1))

	require.NoError(t, store.MarkFresh(ctx, 1))
	assert.Equal(t, scheduler.FreshnessFresh, store.Get(ctx, 1))

	require.NoError(t, store.MarkStale(ctx, 1))
	assert.Equal(t, scheduler.FreshnessStale, store.Get(ctx, 1))
}

func TestStateFreshExpiresToStale(t *testing.T) {
	t.Parallel()

	client, mr := setupRedis(t)
	store := scheduler.NewStateStore(client, time.Hour, zap.NewNop())

	ctx := context.Background()

	require.NoError(t, store.MarkFresh(ctx, 1))
	require.Equal(t, scheduler.FreshnessFresh, store.Get(ctx, 1))

	// The freshness window lapsing returns the user to stale on its own.
	mr.FastForward(2 * time.Hour)

	assert.Equal(t, scheduler.FreshnessStale, store.Get(ctx, 1))
}

func TestStateIsPerUser(t *testing.T) {
	t.Parallel()

	client, _ := setupRedis(t)
	store := scheduler.NewStateStore(client, time.Hour, zap.NewNop())

	ctx := context.Background()

	require.NoError(t, store.MarkFresh(ctx, 1))

	assert.Equal(t, scheduler.FreshnessFresh, store.Get(ctx, 1))
	assert.Equal(t, scheduler.FreshnessStale, store.Get(ctx, 2))
}
