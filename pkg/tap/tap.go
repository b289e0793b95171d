// Package tap broadcasts a summary of every completed gateway connection
// to any number of subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses records.
package tap

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/gateway/pkg/gateway"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Record is the serializable form of a gateway.RequestRecord.
type Record struct {
	Time       time.Time `json:"time"`
	Remote     string    `json:"remote"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	Status     string    `json:"status,omitempty"`
	Bytes      int       `json:"bytes"`
	DurationMS float64   `json:"duration_ms"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
}

// FromRequestRecord converts rec into a Record.
func FromRequestRecord(rec gateway.RequestRecord) Record {
	r := Record{
		Time:       rec.Started,
		Remote:     rec.Remote,
		Method:     rec.Method,
		Path:       rec.Path,
		Status:     rec.Status,
		Bytes:      rec.Bytes,
		DurationMS: float64(rec.Duration) / float64(time.Millisecond),
		State:      rec.State.String(),
	}
	if rec.Err != nil {
		r.Error = rec.Err.Error()
	}
	return r
}

// Hub fans records out to subscribers. It implements gateway.Hooks.
type Hub struct {
	gateway.NopHooks

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int

	published atomic.Int64
	dropped   atomic.Int64
}

type subscriber struct {
	ch chan Record
}

// NewHub creates a Hub. buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel of records and a function that ends the
// subscription and closes the channel. cancel is safe to call twice.
func (h *Hub) Subscribe() (<-chan Record, func()) {
	sub := &subscriber{ch: make(chan Record, h.buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers r to every subscriber with room in its buffer.
func (h *Hub) Publish(r Record) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- r:
		default:
			h.dropped.Add(1)
		}
	}
}

// OnComplete publishes the finished connection.
func (h *Hub) OnComplete(rec gateway.RequestRecord) {
	h.Publish(FromRequestRecord(rec))
}

// Subscribers returns the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Stats returns how many records were published and how many deliveries were dropped.
func (h *Hub) Stats() (published, dropped int64) {
	return h.published.Load(), h.dropped.Load()
}
