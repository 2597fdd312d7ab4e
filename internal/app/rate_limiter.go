package app

import (
	"sync"
	"time"

	"github.com/focusduo/focusduo/internal/domain"
)

// MatchRateLimiter caps matchmaking attempts per account over a sliding
// window, so a reconnect-looping client cannot churn the waiting queue.
type MatchRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.AccountID][]time.Time
	limit    int
	interval time.Duration
}

func NewMatchRateLimiter(limit int, interval time.Duration) *MatchRateLimiter {
	return &MatchRateLimiter{
		history:  make(map[domain.AccountID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *MatchRateLimiter) Allow(acct domain.AccountID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[acct]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[acct] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[acct] = fresh
	return true
}
