// Package ws delivers order state events to live WebSocket subscribers. The
// contract is fire-and-forget, at-most-once, latest-subscriber-wins: each
// order id maps to at most one subscriber, publishing with nobody bound is a
// silent no-op, and there is no replay for late subscribers.
package ws

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solrouter/swapflow/internal/order"
)

// Subscriber receives event snapshots for one order.
type Subscriber interface {
	// Send queues the event for delivery. A non-nil error means the
	// subscriber is gone and should be unbound.
	Send(evt order.Event) error

	// Close tears the subscriber down. Safe to call more than once.
	Close()
}

// Hub owns the order id -> subscriber map. Bind/Unbind arrive from the
// transport layer while Publish arrives from pipeline goroutines, so the map
// sits behind one mutex.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]Subscriber
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]Subscriber),
		logger: logger,
	}
}

// Bind associates sub with the order, closing and replacing any prior
// binding.
func (h *Hub) Bind(orderID uuid.UUID, sub Subscriber) {
	h.mu.Lock()
	prev := h.subs[orderID]
	h.subs[orderID] = sub
	h.mu.Unlock()

	if prev != nil && prev != sub {
		prev.Close()
		h.logger.Debug("subscriber superseded", zap.String("order_id", orderID.String()))
	}
}

// Unbind removes sub's binding. A stale disconnect does not evict a newer
// subscriber bound in the meantime.
func (h *Hub) Unbind(orderID uuid.UUID, sub Subscriber) {
	h.mu.Lock()
	if h.subs[orderID] == sub {
		delete(h.subs, orderID)
	}
	h.mu.Unlock()
}

// Publish delivers the snapshot to the bound subscriber, if any. Never
// buffers and never errors the caller; a failed send unbinds the subscriber.
func (h *Hub) Publish(orderID uuid.UUID, evt order.Event) {
	h.mu.RLock()
	sub := h.subs[orderID]
	h.mu.RUnlock()

	if sub == nil {
		return
	}
	if err := sub.Send(evt); err != nil {
		h.logger.Debug("dropping dead subscriber",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		h.Unbind(orderID, sub)
		sub.Close()
	}
}

// Subscribers reports the number of live bindings.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
