// Package progress carries cache population progress events to whoever is
// listening: SSE clients through the Hub, other processes through Redis.
package progress

import "sync"

// Channel is the single named event channel for cache population progress
const Channel = "cache-progress"

// Stage values emitted by the cache populator
const (
	StageFetchingApps        = "fetching_apps"
	StageFetchingCollections = "fetching_collections"
	StageComplete            = "complete"
	StageError               = "error"
)

// Event is the payload of one progress notification.
// An error event always has Progress and Total set to zero and is final.
type Event struct {
	Stage      string `json:"stage"`
	Progress   int    `json:"progress"`
	Total      int    `json:"total"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	AppCount   *int   `json:"appCount,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
}

// ErrorEvent builds the terminal failure event
func ErrorEvent(message string, err error) Event {
	ev := Event{Stage: StageError, Message: message}
	if err != nil {
		ev.Details = err.Error()
	}
	return ev
}

// IsFinal reports whether no further events follow this one
func (e Event) IsFinal() bool {
	return e.Stage == StageError || e.Stage == StageComplete
}

// Emitter receives progress events
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(ev Event)

// Emit calls f(ev)
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Discard drops every event
var Discard Emitter = EmitterFunc(func(Event) {})

type multi []Emitter

func (m multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Multi fans one event out to several emitters; nil entries are skipped
func Multi(emitters ...Emitter) Emitter {
	var out multi
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Hub manages in-process subscribers for progress events
type Hub struct {
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	last        *Event
}

// NewHub creates a new progress hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe creates a new subscription channel for progress events
func (h *Hub) Subscribe() chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 32)
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription channel
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
}

// Emit sends the event to all subscribers
func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = &ev
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// Last returns the most recent event, if any
func (h *Hub) Last() (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
