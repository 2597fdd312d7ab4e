package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchRateLimiter(t *testing.T) {
	rl := NewMatchRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("acct-1"))
	assert.True(t, rl.Allow("acct-1"))
	assert.False(t, rl.Allow("acct-1"))

	// Independent accounts have independent windows.
	assert.True(t, rl.Allow("acct-2"))
}

func TestMatchRateLimiterWindowExpiry(t *testing.T) {
	rl := NewMatchRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("acct-1"))
	assert.False(t, rl.Allow("acct-1"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.Allow("acct-1"))
}
