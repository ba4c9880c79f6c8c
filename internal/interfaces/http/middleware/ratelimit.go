package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/supplychain/backend/internal/interfaces/http/dto"
)

// RateLimiter is a fixed-window request counter per key. Every key gets
// limit requests per window; the window restarts on the first request after
// it elapses.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*rateWindow

	stop     chan struct{}
	stopOnce sync.Once
}

type rateWindow struct {
	started time.Time
	used    int
}

// NewRateLimiter starts a limiter with a background sweep of idle keys.
// Call Stop when done.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return newRateLimiter(limit, window, time.Now, true)
}

func newRateLimiter(limit int, window time.Duration, now func() time.Time, sweep bool) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string]*rateWindow),
		stop:    make(chan struct{}),
	}
	if sweep {
		go rl.sweepLoop(2 * window)
	}
	return rl
}

// Allow consumes one request for key and reports whether it fit in the
// current window, along with how many remain.
func (rl *RateLimiter) Allow(key string) (ok bool, remaining int) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || now.Sub(w.started) >= rl.window {
		w = &rateWindow{started: now}
		rl.windows[key] = w
	}
	if w.used >= rl.limit {
		return false, 0
	}
	w.used++
	return true, rl.limit - w.used
}

// Stop ends the sweep goroutine. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	cutoff := rl.now().Add(-rl.window)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		if w.started.Before(cutoff) {
			delete(rl.windows, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// WriteRateLimit throttles mutating requests (POST, PUT, PATCH, DELETE) per
// authenticated wallet, falling back to the client IP when the request is
// unauthenticated. Reads pass through untouched. Mount it after the JWT
// middleware.
func WriteRateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		key := GetCallerAddress(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		ok, remaining := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many partner changes, try again later",
				getRequestID(c),
			))
			return
		}
		c.Next()
	}
}
