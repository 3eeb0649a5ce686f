// Package ratelimit provides a token bucket.
package ratelimit

import (
	"sync"
	"time"
)

// RateLimit is a token bucket refilled continuously at a fixed rate.
type RateLimit struct {
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	lastTime time.Time
	now      func() time.Time
	mtx      sync.Mutex
}

// NewRateLimit creates a full bucket. A rate of 0 never refills.
func NewRateLimit(rate float64, capacity int64) *RateLimit {
	return newWithClock(rate, capacity, time.Now)
}

func newWithClock(rate float64, capacity int64, now func() time.Time) *RateLimit {
	return &RateLimit{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		rate:     rate,
		lastTime: now(),
		now:      now,
	}
}

// GetToken takes one token if available.
func (r *RateLimit) GetToken() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	now := r.now()
	r.tokens += now.Sub(r.lastTime).Seconds() * r.rate
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	r.lastTime = now

	if r.tokens < 1 {
		return false
	}

	r.tokens--
	return true
}
