package auth

import "sync"

// EventType describes a change in a user's session
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventRefreshed EventType = "refreshed"
	EventSignedOut EventType = "signed_out"
)

// Event is published to SessionHub subscribers
type Event struct {
	Type  EventType
	UID   string
	Email string
}

// SessionHub fans session events out to subscribers
type SessionHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewSessionHub() *SessionHub {
	return &SessionHub{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it
func (h *SessionHub) Subscribe(fn func(Event)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish calls every subscriber synchronously
func (h *SessionHub) Publish(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
