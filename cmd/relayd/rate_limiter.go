// rate_limiter.go - Rate limiting for shield requests
package main

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v2"
	"github.com/pkg/errors"
)

// RateLimiter implements a token bucket refilled continuously at rate
// tokens per second up to burst.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	rate       float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return newRateLimiter(rate, burst, time.Now)
}

func newRateLimiter(rate float64, burst int, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		burst:      float64(burst),
		rate:       rate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// SenderRateLimiter keeps one bucket per sender public key. Buckets of
// senders idle for longer than the idle window are evicted.
type SenderRateLimiter struct {
	cache *ttlcache.Cache
	rate  float64
	burst int
	now   func() time.Time
}

// NewSenderRateLimiter creates a per-sender limiter.
func NewSenderRateLimiter(rate float64, burst int, idle time.Duration) (*SenderRateLimiter, error) {
	cache := ttlcache.NewCache()
	if err := cache.SetTTL(idle); err != nil {
		return nil, errors.Wrap(err, "failed to set limiter idle window")
	}
	return &SenderRateLimiter{cache: cache, rate: rate, burst: burst, now: time.Now}, nil
}

// Allow checks if a request from sender is allowed.
func (s *SenderRateLimiter) Allow(sender string) bool {
	v, err := s.cache.GetByLoader(sender, func(string) (interface{}, time.Duration, error) {
		return newRateLimiter(s.rate, s.burst, s.now), ttlcache.ItemExpireWithGlobalTTL, nil
	})
	if err != nil {
		// Only a closed cache fails; refuse rather than run unlimited.
		return false
	}
	return v.(*RateLimiter).Allow()
}

// Senders returns how many senders currently hold a bucket.
func (s *SenderRateLimiter) Senders() int {
	return s.cache.Count()
}

// Close stops the eviction goroutine.
func (s *SenderRateLimiter) Close() error {
	return s.cache.Close()
}
