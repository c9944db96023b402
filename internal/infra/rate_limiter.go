package infra

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent API calls.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
// maxBurst: maximum burst size
// perSecond: refill rate (requests per second)
func NewRateLimiter(maxBurst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxBurst),
		maxTokens:  float64(maxBurst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available.
// Returns immediately if a token is available.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	for r.tokens < 1 {
		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()
		time.Sleep(waitTime)
		r.mu.Lock()
		r.refill()
	}

	r.tokens--
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// Breeze documents 3 requests/second and a per-minute quota on order
// endpoints; quote endpoints tolerate more. Limits below stay under the
// documented ceilings to avoid session throttling.
var (
	breezeOrderLimiter  *RateLimiter
	breezeStatusLimiter *RateLimiter
	breezeQuoteLimiter  *RateLimiter
	rateLimiterOnce     sync.Once
)

// GetBreezeOrderLimiter returns the rate limiter for order placement.
// Limit: 3 requests/second with burst of 2.
func GetBreezeOrderLimiter() *RateLimiter {
	rateLimiterOnce.Do(initBreezeLimiters)
	return breezeOrderLimiter
}

// GetBreezeStatusLimiter returns the rate limiter for order status and
// funds queries used during reconciliation.
func GetBreezeStatusLimiter() *RateLimiter {
	rateLimiterOnce.Do(initBreezeLimiters)
	return breezeStatusLimiter
}

// GetBreezeQuoteLimiter returns the rate limiter for quote endpoints.
// Limit: 10 requests/second with burst of 5.
func GetBreezeQuoteLimiter() *RateLimiter {
	rateLimiterOnce.Do(initBreezeLimiters)
	return breezeQuoteLimiter
}

func initBreezeLimiters() {
	breezeOrderLimiter = NewRateLimiter(2, 3)
	breezeStatusLimiter = NewRateLimiter(2, 3)
	breezeQuoteLimiter = NewRateLimiter(5, 10)
}
