package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartcost/backend/internal/domain"
)

type resolution struct {
	Price float64
}

func TestQuoteCache_KeepsValuesAsStored(t *testing.T) {
	c := NewQuoteCache(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", resolution{Price: 1.25}, time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, resolution{Price: 1.25}, got)
}

func TestQuoteCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQuoteCache(2, time.Minute)
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, 0)
	_ = c.Set(ctx, "b", 2, 0)
	_, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", 3, 0)

	_, err := c.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestQuoteCache_PerKeyTTL(t *testing.T) {
	c := NewQuoteCache(10, time.Minute)
	ctx := context.Background()

	_ = c.Set(ctx, "short", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestQuoteCache_DeleteAndPurge(t *testing.T) {
	c := NewQuoteCache(10, time.Minute)
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, 0)
	_ = c.Set(ctx, "b", 2, 0)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, 0, c.Len())
}
