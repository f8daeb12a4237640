package occupancy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func newManualClock() *manualClock {
	return &manualClock{current: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
}

// registryContract exercises the behaviour every Registry shares.
func registryContract(t *testing.T, registry Registry, clock *manualClock) {
	t.Helper()

	ctx := context.Background()

	t.Run("occupy and conflict", func(t *testing.T) {
		require.NoError(t, registry.Reset(ctx))

		first, err := registry.Occupy(ctx, "A", "op-1")
		require.NoError(t, err)
		assert.Equal(t, "op-1", first.OperatorID)

		clock.Advance(time.Minute)

		again, err := registry.Occupy(ctx, "A", "op-1")
		require.NoError(t, err)
		assert.True(t, again.Since.Equal(first.Since.Add(time.Minute)), "re-occupying restamps since")

		stored, held, err := registry.Get(ctx, "A")
		require.NoError(t, err)
		require.True(t, held)
		assert.True(t, stored.Since.Equal(again.Since))

		released, err := registry.ReleaseOlderThan(ctx, again.Since)
		require.NoError(t, err)
		assert.Empty(t, released, "a refreshed occupancy is not expired by the old since")

		_, err = registry.Occupy(ctx, "A", "op-2")
		require.Error(t, err)
		assert.True(t, models.IsConflict(err))

		var conflict *models.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "op-1", conflict.CurrentOccupant)
	})

	t.Run("takeover and release", func(t *testing.T) {
		require.NoError(t, registry.Reset(ctx))

		_, err := registry.Occupy(ctx, "A", "op-1")
		require.NoError(t, err)

		taken, err := registry.Takeover(ctx, "A", "op-2")
		require.NoError(t, err)
		assert.Equal(t, "op-2", taken.OperatorID)

		current, held, err := registry.Get(ctx, "A")
		require.NoError(t, err)
		require.True(t, held)
		assert.Equal(t, "op-2", current.OperatorID)

		require.NoError(t, registry.Release(ctx, "A"))
		require.NoError(t, registry.Release(ctx, "A"))

		_, held, err = registry.Get(ctx, "A")
		require.NoError(t, err)
		assert.False(t, held)

		_, err = registry.Takeover(ctx, "B", "op-3")
		require.NoError(t, err, "taking over a free station occupies it")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := registry.Occupy(ctx, "", "op-1")
		assert.True(t, models.IsValidation(err))

		_, err = registry.Takeover(ctx, "A", "")
		assert.True(t, models.IsValidation(err))
	})

	t.Run("list and expire", func(t *testing.T) {
		require.NoError(t, registry.Reset(ctx))

		_, err := registry.Occupy(ctx, "C", "op-3")
		require.NoError(t, err)

		clock.Advance(2 * time.Hour)

		_, err = registry.Occupy(ctx, "A", "op-1")
		require.NoError(t, err)

		list, err := registry.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "A", list[0].StationID)
		assert.Equal(t, "C", list[1].StationID)

		released, err := registry.ReleaseOlderThan(ctx, clock.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, released, 1)
		assert.Equal(t, "C", released[0].StationID)

		list, err = registry.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "A", list[0].StationID)
	})

	t.Run("concurrent occupy has one winner", func(t *testing.T) {
		require.NoError(t, registry.Reset(ctx))

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)

		for i := range 8 {
			wg.Add(1)

			go func(operator string) {
				defer wg.Done()

				_, err := registry.Occupy(ctx, "HOT", operator)
				if err == nil {
					winners.Add(1)
				}
			}(string(rune('a' + i)))
		}

		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("reset", func(t *testing.T) {
		_, err := registry.Occupy(ctx, "Z", "op-9")
		require.NoError(t, err)

		require.NoError(t, registry.Reset(ctx))

		list, err := registry.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.NoError(t, registry.HealthCheck(ctx))
	})
}

func TestMemory(t *testing.T) {
	clock := newManualClock()
	registry := NewMemoryWithClock(clock.Now)

	registryContract(t, registry, clock)
	assert.NoError(t, registry.Close())
}
