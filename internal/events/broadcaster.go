// Package events fans state-change notifications out to connected views.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types.
const (
	TypeSession = "session"
	TypeFiles   = "files"
	TypeNotice  = "notice"
	TypePending = "pending"
)

// Event tells a view that part of the state it renders has changed.
type Event struct {
	Type      string `json:"type"`
	FileID    string `json:"fileId,omitempty"`
	// Timestamp is in unix milliseconds.
	Timestamp int64  `json:"timestamp"`
}

// Publisher is the write side of a Broadcaster.
type Publisher interface {
	Publish(event Event)
}

// Broadcaster manages subscribers and publishes events to them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	buffer      int
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold up to
// buffer pending events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
