package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractionLimiter_Increment(t *testing.T) {
	limiter := NewInteractionLimiter(2, 0)

	require.NoError(t, limiter.Increment())
	require.NoError(t, limiter.Increment())
	assert.True(t, limiter.Exhausted())
	assert.Error(t, limiter.Increment())
	assert.Equal(t, 3, limiter.Count())
}

func TestInteractionLimiter_Seeded(t *testing.T) {
	limiter := NewInteractionLimiter(3, 2)

	require.NoError(t, limiter.Increment())
	assert.Error(t, limiter.Increment())
}

func TestInteractionLimiter_Unlimited(t *testing.T) {
	limiter := NewInteractionLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Increment())
	}
	assert.False(t, limiter.Exhausted())
}
