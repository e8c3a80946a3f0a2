package ratelimit

import (
	"sync"
	"time"
)

// idleAfter is how long a key may stay silent before its history is dropped
const idleAfter = 15 * time.Minute

// Limiter is a sliding-window limiter keyed by user ID or client address.
// A zero or negative default limit disables Allow.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time

	stop chan struct{}
	once sync.Once
}

// NewLimiter allows maxRequests per window for each key
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		max:    maxRequests,
		window: window,
		now:    time.Now,
		hits:   map[string][]time.Time{},
		stop:   make(chan struct{}),
	}
	go l.sweep(5 * time.Minute)
	return l
}

// Allow records a request for key under the default limit. An empty key is
// never limited.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if key == "" || l.max <= 0 {
		return true, 0
	}
	return l.take(key, l.max, l.window)
}

// AllowStrict records a request under a tighter limit for sensitive
// endpoints. Strict keys never share history with Allow.
func (l *Limiter) AllowStrict(key string, max int, window time.Duration) (bool, time.Duration) {
	return l.take("strict:"+key, max, window)
}

// take reports whether a request fits and, if not, how long until the
// oldest request in the window expires
func (l *Limiter) take(key string, max int, window time.Duration) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= max {
		l.hits[key] = kept
		return false, kept[0].Add(window).Sub(now)
	}
	l.hits[key] = append(kept, now)
	return true, 0
}

func (l *Limiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.forgetIdle()
		}
	}
}

func (l *Limiter) forgetIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := l.now().Add(-idleAfter)
	removed := 0
	for key, hits := range l.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(threshold) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// Stop ends the background sweep
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
