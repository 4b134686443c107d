package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter tracks and enforces per-client request rate limits
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool

	clients map[string]*windows
	mu      sync.Mutex
	now     func() time.Time
}

type windows struct {
	minute []time.Time
	hour   []time.Time
	day    []time.Time
}

// NewRateLimiter creates a new rate limiter with the given limits. A zero limit disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		clients:           make(map[string]*windows),
		now:               time.Now,
	}
}

// AllowRequest checks if a request from client is allowed.
// When it is not, retryAfter tells how long until the oldest request in the full window expires.
func (rl *RateLimiter) AllowRequest(client string) (allowed bool, retryAfter time.Duration) {
	if !rl.enabled {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.clients[client]
	if w == nil {
		w = &windows{}
		rl.clients[client] = w
	}
	w.cleanup(now)

	if wait, full := exceeded(w.minute, rl.requestsPerMinute, time.Minute, now); full {
		return false, wait
	}
	if wait, full := exceeded(w.hour, rl.requestsPerHour, time.Hour, now); full {
		return false, wait
	}
	if wait, full := exceeded(w.day, rl.requestsPerDay, 24*time.Hour, now); full {
		return false, wait
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	w.day = append(w.day, now)
	return true, 0
}

func exceeded(window []time.Time, limit int, span time.Duration, now time.Time) (time.Duration, bool) {
	if limit <= 0 || len(window) < limit {
		return 0, false
	}
	return window[0].Add(span).Sub(now), true
}

// cleanup removes expired entries from the time windows
func (w *windows) cleanup(now time.Time) {
	w.minute = filterTimes(w.minute, now.Add(-time.Minute))
	w.hour = filterTimes(w.hour, now.Add(-time.Hour))
	w.day = filterTimes(w.day, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Prune drops clients with no requests in the last day
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for k, w := range rl.clients {
		w.cleanup(now)
		if len(w.day) == 0 {
			delete(rl.clients, k)
			removed++
		}
	}
	return removed
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	stats := Stats{
		Enabled:        true,
		Clients:        len(rl.clients),
		LimitPerMinute: rl.requestsPerMinute,
		LimitPerHour:   rl.requestsPerHour,
		LimitPerDay:    rl.requestsPerDay,
	}
	for _, w := range rl.clients {
		w.cleanup(now)
		stats.RequestsLastMinute += len(w.minute)
		stats.RequestsLastHour += len(w.hour)
		stats.RequestsLastDay += len(w.day)
	}
	return stats
}

// Stats contains rate limiter statistics summed over all clients
type Stats struct {
	Enabled            bool `json:"enabled"`
	Clients            int  `json:"clients"`
	RequestsLastMinute int  `json:"requests_last_minute"`
	RequestsLastHour   int  `json:"requests_last_hour"`
	RequestsLastDay    int  `json:"requests_last_day"`
	LimitPerMinute     int  `json:"limit_per_minute"`
	LimitPerHour       int  `json:"limit_per_hour"`
	LimitPerDay        int  `json:"limit_per_day"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clients = make(map[string]*windows)
}
