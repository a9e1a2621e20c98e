package relay

import (
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/tableap/internal/metrics"
	"github.com/dgnsrekt/tableap/internal/types"
)

// DefaultGestureBuffer is the per-subscriber queue depth.
const DefaultGestureBuffer = 16

// Broker fans gesture events out to every subscribed extension connection.
// Delivery is lossy: a subscriber whose buffer is full misses the event and
// neither the publisher nor other subscribers wait for it.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan types.GestureEvent
	nextID      atomic.Int64
	bufSize     int
	metrics     *metrics.Metrics
}

// NewBroker creates a broker whose subscribers buffer bufSize events.
func NewBroker(bufSize int, m *metrics.Metrics) *Broker {
	if bufSize < 1 {
		bufSize = DefaultGestureBuffer
	}
	return &Broker{
		subscribers: make(map[int64]chan types.GestureEvent),
		bufSize:     bufSize,
		metrics:     m,
	}
}

// Subscribe registers a new listener. The channel stays open until
// Unsubscribe is called with the returned ID.
func (b *Broker) Subscribe() (int64, <-chan types.GestureEvent) {
	id := b.nextID.Add(1)
	ch := make(chan types.GestureEvent, b.bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish offers evt to every subscriber without blocking and returns how
// many accepted it.
func (b *Broker) Publish(evt types.GestureEvent) int {
	delivered, dropped := 0, 0
	b.mu.RLock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
			delivered++
		default:
			dropped++
		}
	}
	b.mu.RUnlock()
	b.metrics.GesturePublished(dropped)
	return delivered
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
