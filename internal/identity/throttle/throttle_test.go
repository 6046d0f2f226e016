package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFixedWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	d, err := m.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = m.Allow(ctx, "u1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	now = now.Add(10 * time.Minute)
	d, _ = m.Allow(ctx, "u1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 50*time.Minute, d.RetryAfter)

	d, _ = m.Allow(ctx, "u2")
	assert.True(t, d.Allowed, "keys are independent")

	now = now.Add(time.Hour)
	d, _ = m.Allow(ctx, "u1")
	assert.True(t, d.Allowed, "window resets")
}

func TestMemorySweepsExpiredWindows(t *testing.T) {
	now := time.Now()
	m := NewMemory(1, time.Minute)
	m.now = func() time.Time { return now }
	for i := 0; i < sweepThreshold; i++ {
		_, _ = m.Allow(context.Background(), time.Duration(i).String())
	}
	now = now.Add(2 * time.Minute)
	_, _ = m.Allow(context.Background(), "fresh")
	assert.Len(t, m.windows, 1)
}
