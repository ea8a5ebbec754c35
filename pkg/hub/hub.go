package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Message is a broadcast notification about pipeline activity, such as an
// ingested event or a delivery outcome.
type Message struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a small ring buffer for late subscribers.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Message
	start int
	size  int

	subs      map[int]chan Message
	nextSubID int
}

func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Message, capacity),
		subs: make(map[int]chan Message),
	}
}

// Publish marshals data and fans the message out to every subscriber. Slow
// subscribers are skipped rather than blocking the producer.
func (h *Hub) Publish(messageType string, data any) {
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	msg := Message{
		ID:   id,
		Type: messageType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(msg)
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a new subscriber and returns its channel along with a
// cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Message, 64)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered messages with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, 0, h.size)
	for i := 0; i < h.size; i++ {
		msg := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || msg.ID > lastID {
			out = append(out, msg)
		}
	}
	return out
}

func (h *Hub) pushLocked(msg Message) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = msg
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = msg
	h.start = (h.start + 1) % capacity
}
