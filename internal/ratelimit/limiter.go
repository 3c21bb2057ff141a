// Package ratelimit throttles replica clients so the harness can be run
// against a target that answers bursts with 429 Too Many Requests, the way
// a busy repository instance does.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the per-client budget.
type Config struct {
	RPS         float64       // sustained requests per second per client
	Burst       int           // requests allowed at once
	IdleTimeout time.Duration // idle clients are forgotten after this long
}

// DefaultConfig is generous enough for one suite run from one machine.
var DefaultConfig = Config{
	RPS:         10,
	Burst:       40,
	IdleTimeout: time.Hour,
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter holds one token bucket per client key.
type RateLimiter struct {
	limiters map[string]*clientEntry
	mu       sync.Mutex
	config   Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRateLimiter starts a limiter and its background cleanup. Call Stop
// when done.
func NewRateLimiter(config Config) *RateLimiter {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig.IdleTimeout
	}
	rl := &RateLimiter{
		limiters: make(map[string]*clientEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from client fits its budget.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.GetLimiter(client).Allow()
}

// GetLimiter returns the bucket for client, creating it on first use.
func (rl *RateLimiter) GetLimiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[client]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)
	rl.limiters[client] = &clientEntry{limiter: limiter, lastUsed: time.Now()}
	return limiter
}

// Cleanup forgets clients idle for longer than the idle timeout.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.IdleTimeout)
	for client, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, client)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.IdleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop ends the cleanup goroutine and waits for it.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.wg.Wait()
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
