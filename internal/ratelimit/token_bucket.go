// Package ratelimit provides a simple in-memory token-bucket rate limiter and
// an HTTP middleware that limits clients by IP address.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a single token-bucket rate limiter.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens added per second
	burst      float64 // maximum token capacity
	tokens     float64
	lastRefill time.Time
}

// New creates a Limiter allowing ratePerSecond requests/s with a burst capacity.
// If burst <= 0, it defaults to ratePerSecond (no extra burst).
func New(ratePerSecond, burst float64) *Limiter {
	return newAt(ratePerSecond, burst, time.Now())
}

func newAt(ratePerSecond, burst float64, now time.Time) *Limiter {
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &Limiter{
		rate:       ratePerSecond,
		burst:      burst,
		tokens:     burst,
		lastRefill: now,
	}
}

// Allow consumes one token and returns true if the request is permitted.
func (l *Limiter) Allow() bool {
	return l.allowAt(time.Now())
}

func (l *Limiter) allowAt(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elapsed := now.Sub(l.lastRefill).Seconds(); elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
		l.lastRefill = now
	}

	if l.tokens >= 1.0 {
		l.tokens--
		return true
	}
	return false
}

// full reports whether the bucket would be at capacity at now. A full bucket
// carries no state worth keeping.
func (l *Limiter) full(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens+now.Sub(l.lastRefill).Seconds()*l.rate >= l.burst
}

// Store maintains per-key Limiter instances, typically one per client IP.
type Store struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	rate     float64
	burst    float64
	now      func() time.Time
}

// NewStore creates a Store whose per-key limiters share the same rate/burst.
func NewStore(ratePerSecond, burst float64) *Store {
	return &Store{
		limiters: make(map[string]*Limiter),
		rate:     ratePerSecond,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow checks (and creates if needed) the limiter for key.
func (s *Store) Allow(key string) bool {
	now := s.now()

	s.mu.RLock()
	l, ok := s.limiters[key]
	s.mu.RUnlock()
	if ok {
		return l.allowAt(now)
	}

	s.mu.Lock()
	if l, ok = s.limiters[key]; !ok {
		l = newAt(s.rate, s.burst, now)
		s.limiters[key] = l
	}
	s.mu.Unlock()
	return l.allowAt(now)
}

// Prune drops limiters whose bucket has refilled completely and returns how
// many were removed. Dropping a full bucket does not change behaviour since a
// new one starts full.
func (s *Store) Prune() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, l := range s.limiters {
		if l.full(now) {
			delete(s.limiters, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}
