package auth

import (
	"sync"
	"time"
)

// SlidingWindowLimiter allows at most limit events per key within any
// window-long interval.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
	pruned  time.Time
}

func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow records an event for key and reports whether it is within budget.
// Rejected events are not recorded.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Add(-l.window)
	if now.Sub(l.pruned) >= l.window {
		l.prune(start)
		l.pruned = now
	}
	kept := l.windows[key][:0]
	for _, at := range l.windows[key] {
		if at.After(start) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.limit {
		l.windows[key] = kept
		return false
	}
	l.windows[key] = append(kept, now)
	return true
}

// Prune drops keys with no events inside the window. Allow also prunes, at
// most once per window, so idle keys never outlive two windows.
func (l *SlidingWindowLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now().Add(-l.window))
}

func (l *SlidingWindowLimiter) prune(start time.Time) {
	for key, events := range l.windows {
		if len(events) == 0 || !events[len(events)-1].After(start) {
			delete(l.windows, key)
		}
	}
}

// Limit is the per-window budget.
func (l *SlidingWindowLimiter) Limit() int { return l.limit }

// IPRateLimiter limits requests per client IP per minute.
type IPRateLimiter struct {
	*SlidingWindowLimiter
}

func NewIPRateLimiter(requestsPerMinute int) *IPRateLimiter {
	return &IPRateLimiter{NewSlidingWindowLimiter(requestsPerMinute, time.Minute)}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	return l.SlidingWindowLimiter.Allow("ip:" + ip)
}
