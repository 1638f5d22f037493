// Package eventbus fans session events out to subscribers over bounded
// channels. Publishers never block: when a subscriber's queue is full the
// oldest event is dropped, and publishing after Close is a no-op. This lets
// the sequencer's scheduling goroutine hand events into the orchestration
// layer without ever stalling on a slow or absent consumer.
package eventbus

import (
	"sync"
	"time"
)

const subscriberQueueSize = 100

// Event is one session-scoped notification.
type Event struct {
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"ts"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

// Bus routes events to per-session subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	closed bool
}

func New() *Bus {
	return &Bus{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers a queue for a session's events. The returned cancel
// function detaches the queue; the channel is closed afterwards.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueueSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	set, ok := b.subs[sessionID]
	if !ok {
		set = map[chan Event]struct{}{}
		b.subs[sessionID] = set
	}
	set[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			set, ok := b.subs[sessionID]
			if !ok {
				return
			}
			if _, present := set[ch]; !present {
				return
			}
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the session without
// blocking. A full queue loses its oldest event first.
func (b *Bus) Publish(sessionID, eventType string, payload map[string]any) {
	event := Event{
		SessionID: sessionID,
		Timestamp: time.Now(),
		Type:      eventType,
		Payload:   payload,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs[sessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Close detaches and closes every subscriber queue. Subsequent publishes are
// dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for ch := range set {
			close(ch)
		}
	}
	b.subs = map[string]map[chan Event]struct{}{}
}
