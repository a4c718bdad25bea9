package middleware

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 5 * time.Minute
	idleThreshold   = 10 * time.Minute
)

// rateLimitClient tracks the limiter and its last usage time
type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // Unix nanoseconds
}

// RateLimiter limits requests per client with a token bucket each
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rateLimitClient
	limit    rate.Limit
	burst    int
	now      func() time.Time

	// OnReject is called for every rejected request
	OnReject func()

	cleanupTick *time.Ticker
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter allows each client requestsPerMinute with bursts of burst.
// Call Stop to end the cleanup goroutine.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	limit := rate.Limit(0) // no requests allowed
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	if burst <= 0 {
		burst = 1
	}

	rl := &RateLimiter{
		limiters:    make(map[string]*rateLimitClient),
		limit:       limit,
		burst:       burst,
		now:         time.Now,
		cleanupTick: time.NewTicker(cleanupInterval),
		stopChan:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// getLimiter gets or creates the limiter of key and marks it used
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := rl.now().UnixNano()

	rl.mu.RLock()
	if client, exists := rl.limiters[key]; exists {
		client.lastSeen.Store(now)
		rl.mu.RUnlock()
		return client.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another request may have created it meanwhile
	if client, exists := rl.limiters[key]; exists {
		client.lastSeen.Store(now)
		return client.limiter
	}

	client := &rateLimitClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	client.lastSeen.Store(now)
	rl.limiters[key] = client
	return client.limiter
}

// Handler returns the fiber middleware. Clients are told apart by ClientKey.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := rl.getLimiter(ClientKey(c))

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if limiter.AllowN(rl.now(), 1) {
			return c.Next()
		}

		if rl.OnReject != nil {
			rl.OnReject()
		}

		retryAfter := rl.retryAfter()
		c.Set("X-RateLimit-Remaining", "0")
		c.Set("Retry-After", strconv.Itoa(retryAfter))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "rate_limit_exceeded",
			"message":     "Too many requests",
			"retry_after": retryAfter,
		})
	}
}

// retryAfter is the whole number of seconds until a token is available
func (rl *RateLimiter) retryAfter() int {
	if rl.limit <= 0 {
		return 3600
	}
	return int(math.Ceil(1 / float64(rl.limit)))
}

// Clients returns the number of tracked clients
func (rl *RateLimiter) Clients() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// cleanupOnce removes clients idle for longer than idleThreshold
func (rl *RateLimiter) cleanupOnce() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, client := range rl.limiters {
		if now.Sub(time.Unix(0, client.lastSeen.Load())) > idleThreshold {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.cleanupTick.Stop()
	})
}
