// Package events fans dispatch lifecycle events out to in-process
// subscribers and keeps a short history for clients that connect late.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the dispatcher and the API layer.
const (
	DispatchResolved = "dispatch.resolved"
	DispatchSpawned  = "dispatch.spawned"
	DispatchFailed   = "dispatch.failed"
	ProcessOutput    = "process.output"
	ProcessExited    = "process.exited"
)

const (
	defaultHistory   = 256
	subscriberBuffer = 64
)

// Event is one published occurrence. Data holds the JSON payload.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Dispatch is the payload of the dispatch.* and process.* events.
type Dispatch struct {
	ProfileID string `json:"profile_id"`
	Executor  string `json:"executor"`
	AttemptID string `json:"attempt_id,omitempty"`
	ProcessID string `json:"process_id,omitempty"`
	ActionID  string `json:"action_id,omitempty"`
	PID       int    `json:"pid,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Output is the payload of process.output: one stdout line of an agent.
// Line holds the raw JSON when the agent emitted JSON, otherwise a string.
type Output struct {
	ProcessID string          `json:"process_id"`
	Line      json.RawMessage `json:"line"`
}

// Hub is an in-memory pub/sub with a bounded history ring.
// Publish never blocks: a subscriber whose buffer is full misses the event
// and can recover it from History.
type Hub struct {
	seq atomic.Int64

	mu      sync.Mutex
	history []Event
	head    int
	count   int
	subs    map[uint64]chan Event
	nextSub uint64
}

// NewHub creates a Hub retaining the last history events (256 when <= 0).
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{
		history: make([]Event, history),
		subs:    make(map[uint64]chan Event),
	}
}

// Publish records an event and delivers it to every subscriber.
func (h *Hub) Publish(eventType string, payload any) Event {
	data := json.RawMessage("{}")
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = b
		}
	}

	ev := Event{
		ID:   h.seq.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: data,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.record(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of future events and a function that ends the
// subscription and closes the channel. The function is safe to call twice.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// History returns retained events with ID greater than afterID, oldest first.
func (h *Hub) History(afterID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.count)
	for i := 0; i < h.count; i++ {
		ev := h.history[(h.head+i)%len(h.history)]
		if ev.ID > afterID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) record(ev Event) {
	size := len(h.history)
	if h.count < size {
		h.history[(h.head+h.count)%size] = ev
		h.count++
		return
	}
	h.history[h.head] = ev
	h.head = (h.head + 1) % size
}
