package geocode

import (
	"log"
	"net/http"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
)

// CircuitBreaker stops calling the geocoder after repeated upstream failures.
// Once the cooldown has passed the next caller is let through and the counters start over.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    breakerState
	openedAt time.Time
	streak   int
	failed   int
	total    int
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.total++
	cb.streak = 0
}

// RecordFailure counts an upstream failure. statusCode is 0 for transport errors.
// A 429 trips the breaker at once.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.total++
	cb.failed++
	cb.streak++
	if cb.state == stateOpen {
		return
	}
	if statusCode == http.StatusTooManyRequests || cb.streak >= cb.threshold {
		cb.state = stateOpen
		cb.openedAt = cb.now()
		log.Printf("Geocoder: circuit open (status %d, %d in a row), pausing for %v", statusCode, cb.streak, cb.cooldown)
	}
}

// CanProceed reports whether a request may be sent now
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == stateClosed {
		return true
	}
	if cb.now().Sub(cb.openedAt) <= cb.cooldown {
		return false
	}
	log.Printf("Geocoder: cooldown of %v elapsed, closing circuit", cb.cooldown)
	cb.state = stateClosed
	cb.streak, cb.failed, cb.total = 0, 0, 0
	return true
}

func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen, cb.failed, cb.total
}
