// Package ratelimit implements per-domain sliding-window admission control.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/insight-crawler/internal/crawler"
	"github.com/JakeFAU/insight-crawler/internal/metrics"
)

// DefaultWindow is the length of the admission window.
const DefaultWindow = time.Minute

// Limiter caps outbound requests per domain within a sliding window.
// It never blocks: a denied caller records the condition and moves on.
type Limiter struct {
	mu     sync.Mutex
	clock  crawler.Clock
	window time.Duration
	hits   map[string][]time.Time
}

// Config holds rate limiter configuration.
type Config struct {
	Window time.Duration
}

// New creates a new Limiter.
func New(cfg Config, clock crawler.Clock) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		clock:  clock,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// TryAcquire admits one request for domain if fewer than limitPerMinute requests were
// admitted within the window. A non-positive limit admits nothing.
func (l *Limiter) TryAcquire(domain string, limitPerMinute int) bool {
	key := strings.ToLower(domain)
	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := pruneBefore(l.hits[key], cutoff)
	if len(kept) >= limitPerMinute {
		l.hits[key] = kept
		metrics.ObserveRateLimited(key)
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// InFlight reports how many requests are currently counted against domain.
func (l *Limiter) InFlight(domain string) int {
	key := strings.ToLower(domain)
	cutoff := l.clock.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := pruneBefore(l.hits[key], cutoff)
	if len(kept) == 0 {
		delete(l.hits, key)
		return 0
	}
	l.hits[key] = kept
	return len(kept)
}

// pruneBefore drops timestamps at or before cutoff. Timestamps are appended in order,
// so the first retained index marks the start of the window.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	out := make([]time.Time, len(stamps)-idx)
	copy(out, stamps[idx:])
	return out
}
