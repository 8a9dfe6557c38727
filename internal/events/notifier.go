// Package events provides the per-instance change notifier used by a virtual
// file system to announce active-file transitions to independent observers.
package events

import (
	"encoding/json"
	"sync"
)

// Event types
const (
	EventActiveFileChanged = "vfs.active_file_changed"
)

// Event is delivered to every handler registered at publish time.
type Event struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

type subscription struct {
	handler Handler
	removed bool
}

// Notifier is a synchronous publish/subscribe list. Each virtual file system
// owns its own Notifier; there is no package-level instance.
type Notifier struct {
	mu   sync.Mutex
	subs []*subscription
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a handler and returns a function that removes it.
// The returned function is idempotent.
func (n *Notifier) Subscribe(h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &subscription{handler: h}
	n.subs = append(n.subs, sub)

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		if sub.removed {
			return
		}
		sub.removed = true
		for i, s := range n.subs {
			if s == sub {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish invokes the handlers registered when Publish was called, in
// registration order. Handlers added during the call are not invoked;
// handlers removed during the call are skipped if not yet reached.
// The lock is not held while handlers run, so a handler may subscribe,
// unsubscribe or trigger another Publish.
func (n *Notifier) Publish(event Event) {
	n.mu.Lock()
	snapshot := make([]*subscription, len(n.subs))
	copy(snapshot, n.subs)
	n.mu.Unlock()

	for _, sub := range snapshot {
		n.mu.Lock()
		removed := sub.removed
		n.mu.Unlock()
		if removed {
			continue
		}
		sub.handler(event)
	}
}

// Len returns the number of registered handlers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// SubscribeChan bridges the notifier to a buffered channel for consumers that
// live on another goroutine (e.g. a websocket writer). Sends never block the
// publisher: when the buffer is full the event is dropped. The returned
// function unsubscribes and closes the channel.
func (n *Notifier) SubscribeChan(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var once sync.Once
	var mu sync.Mutex
	closed := false

	unsubscribe := n.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			// Channel full, skip (non-blocking)
		}
	})

	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// MarshalEvent converts an event to JSON
func MarshalEvent(event Event) ([]byte, error) {
	return json.Marshal(event)
}
