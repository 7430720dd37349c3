package recommend

import (
	"testing"
	"time"

	"github.com/lumapix/lumapix/internal/database/types"
	"github.com/lumapix/lumapix/internal/setup/config"
	"github.com/stretchr/testify/assert"
)

func rankedList(n int) []types.RankedUser {
	list := make([]types.RankedUser, n)
	for i := range list {
		list[i] = types.RankedUser{UserID: uint64(i + 1), Score: 1 - float64(i)*0.01}
	}

	return list
}

func TestSaturate(t *testing.T) {
	t.Parallel()

	assert.Zero(t, saturate(0, 10))
	assert.Zero(t, saturate(-1, 10))
	assert.Zero(t, saturate(5, 0))
	assert.InDelta(t, 0.5, saturate(5, 10), 1e-12)
	assert.InDelta(t, 1.0, saturate(10, 10), 1e-12)

	// Values past the scale saturate instead of growing.
	assert.InDelta(t, 1.0, saturate(100, 10), 1e-12)
}

func TestNewAccountFactor(t *testing.T) {
	t.Parallel()

	e := &Engine{cfg: &config.Scoring{NewAccountWindowDays: 10}}

	fresh := &types.User{JoinedAt: time.Now().Add(-1 * time.Hour)}
	assert.Greater(t, e.newAccountFactor(fresh), 0.9)

	midWindow := &types.User{JoinedAt: time.Now().Add(-5 * 24 * time.Hour)}
	assert.InDelta(t, 0.5, e.newAccountFactor(midWindow), 0.01)

	old := &types.User{JoinedAt: time.Now().Add(-30 * 24 * time.Hour)}
	assert.Zero(t, e.newAccountFactor(old))

	// Disabled window gives no boost to anyone.
	disabled := &Engine{cfg: &config.Scoring{NewAccountWindowDays: 0}}
	assert.Zero(t, disabled.newAccountFactor(fresh))
}

func TestRotate(t *testing.T) {
	t.Parallel()

	e := &Engine{cfg: &config.Scoring{RotationWindowMinutes: 60}}

	t.Run("short list returned whole", func(t *testing.T) {
		t.Parallel()

		list := rankedList(3)
		assert.Equal(t, list, e.rotate(list, 1, 5))
	})

	t.Run("slice length matches count", func(t *testing.T) {
		t.Parallel()

		got := e.rotate(rankedList(20), 1, 5)
		assert.Len(t, got, 5)
	})

	t.Run("stable within a window", func(t *testing.T) {
		t.Parallel()

		list := rankedList(20)
		first := e.rotate(list, 7, 5)
		second := e.rotate(list, 7, 5)

		assert.Equal(t, first, second)
	})

	t.Run("preserves ranking order", func(t *testing.T) {
		t.Parallel()

		got := e.rotate(rankedList(20), 3, 5)
		for i := 1; i < len(got); i++ {
			assert.Greater(t, got[i-1].Score, got[i].Score)
		}
	})

	t.Run("different users can see different slices", func(t *testing.T) {
		t.Parallel()

		list := rankedList(20)

		// Adjacent user IDs shift the rotation offset by one, so at least one
		// pair of consecutive users differs.
		a := e.rotate(list, 100, 5)
		b := e.rotate(list, 101, 5)
		c := e.rotate(list, 102, 5)

		assert.True(t,
			a[0].UserID != b[0].UserID || b[0].UserID != c[0].UserID)
	})

	t.Run("zero window disables rotation", func(t *testing.T) {
		t.Parallel()

		static := &Engine{cfg: &config.Scoring{RotationWindowMinutes: 0}}
		got := static.rotate(rankedList(20), 9, 5)

		assert.Equal(t, rankedList(20)[:5], got)
	})
}
