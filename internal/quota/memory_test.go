package quota

import (
	"context"
	"testing"
	"time"

	"storybook-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_PerMinute(t *testing.T) {
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Limits{PerMinute: 2, PerDay: 10})
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, "child-1"))
	require.NoError(t, l.Reserve(ctx, "child-1"))
	assert.ErrorIs(t, l.Reserve(ctx, "child-1"), models.ErrQuotaExceeded)

	// Другой ребенок не затронут
	assert.NoError(t, l.Reserve(ctx, "child-2"))

	clock = clock.Add(time.Minute)
	assert.NoError(t, l.Reserve(ctx, "child-1"))
}

func TestMemoryLimiter_PerDay(t *testing.T) {
	clock := time.Date(2024, 5, 1, 23, 58, 0, 0, time.UTC)
	l := NewMemoryLimiter(Limits{PerDay: 2})
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, "c"))
	clock = clock.Add(time.Minute)
	require.NoError(t, l.Reserve(ctx, "c"))
	assert.ErrorIs(t, l.Reserve(ctx, "c"), models.ErrQuotaExceeded)

	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, l.Reserve(ctx, "c"), "new day resets the counter")
}

func TestMemoryLimiter_CancelledContext(t *testing.T) {
	l := NewMemoryLimiter(Limits{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Reserve(ctx, "c"), context.Canceled)
}

func TestUnlimited(t *testing.T) {
	assert.NoError(t, Unlimited{}.Reserve(context.Background(), "c"))
}
