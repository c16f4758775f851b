// Package hub fans stored ChangeSets out to remote replicas and serves the
// HTTP API they use to read snapshots and send commands.
package hub

import (
	"log/slog"
	"sync"

	"github.com/alexanderramin/todotree/internal/domain"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 256

// Event is one published ChangeSet. Seq grows by one per Publish, so
// subscribers see events in Seq order.
type Event struct {
	Seq    uint64
	Change domain.ChangeSet
}

// Subscription receives every ChangeSet published after it was created.
type Subscription struct {
	ID     uint64
	ch     chan Event
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// C returns the channel of events. It is closed with the subscription.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close closes the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// Hub tracks subscribers and implements service.Publisher.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	seq        uint64
	bufferSize int
	logger     *slog.Logger
}

func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		ID:   h.nextID,
		ch:   make(chan Event, h.bufferSize),
		done: make(chan struct{}),
	}
	h.subs[sub.ID] = sub
	return sub
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.Close()
	}
}

// Publish queues cs for every subscriber. A subscriber whose queue is full
// is dropped instead of skipping the change, since a replica that misses a
// ChangeSet diverges; it reconnects and starts again from a snapshot.
func (h *Hub) Publish(cs domain.ChangeSet) {
	var overflowed []uint64

	h.mu.Lock()
	h.seq++
	ev := Event{Seq: h.seq, Change: cs}
	for id, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			overflowed = append(overflowed, id)
		}
	}
	h.mu.Unlock()

	for _, id := range overflowed {
		h.logger.Warn("subscriber fell behind, dropping", "subscriber", id)
		h.Unsubscribe(id)
	}
}

// Seq returns the sequence number of the last published ChangeSet, or zero
// before the first.
func (h *Hub) Seq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Count returns the number of active subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
