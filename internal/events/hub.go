// Package events fans controller and scheduler activity out to in-process
// subscribers and keeps a short replay history for late SSE clients.
package events

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Matches reports whether the event type starts with one of prefixes.
// No prefixes matches everything.
func (e Event) Matches(prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(e.Type, p) {
			return true
		}
	}
	return false
}

type subscription struct {
	ch       chan Event
	prefixes []string
}

// Hub is an in-memory pub/sub over run events with bounded history.
// Publishing never blocks: a subscriber whose buffer is full misses the
// event and the miss is counted in Dropped.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Int64

	mu      sync.Mutex
	history []Event
	limit   int
	subs    map[int]subscription
	nextSub int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		history: make([]Event, 0, capacity),
		limit:   capacity,
		subs:    make(map[int]subscription),
	}
}

// Publish is safe on a nil Hub, which drops the event.
func (h *Hub) Publish(eventType string, data any) {
	if h == nil {
		return
	}

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}
	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.history) == h.limit {
		copy(h.history, h.history[1:])
		h.history = h.history[:h.limit-1]
	}
	h.history = append(h.history, ev)

	for _, sub := range h.subs {
		if !ev.Matches(sub.prefixes) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of future events whose type starts with one
// of prefixes (all events when none are given) and a func that ends the
// subscription. The func is idempotent and closes the channel.
func (h *Hub) Subscribe(prefixes ...string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 128)
	h.subs[id] = subscription{ch: ch, prefixes: prefixes}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// SnapshotSince returns retained events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.history))
	for _, ev := range h.history {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
