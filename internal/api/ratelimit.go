package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a token bucket.
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a full bucket of burst tokens refilled at rate per
// second. A non-positive rate returns nil, which admits everything.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// TryAcquire takes a token without blocking. When none is available it
// returns how long until one will be.
func (r *RateLimiter) TryAcquire() (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true, 0
	}
	missing := 1 - r.tokens
	return false, time.Duration(missing / r.refillRate * float64(time.Second))
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// refill adds tokens based on elapsed time.
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill)
	r.lastRefill = now

	r.tokens = math.Min(r.maxTokens, r.tokens+elapsed.Seconds()*r.refillRate)
}

// rateLimitMiddleware rejects requests with 429 when the bucket is empty.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := s.limiter.TryAcquire()
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			respondError(w, http.StatusTooManyRequests, "too many refinement requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
