package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscription receives events for one location, or for every location
// when LocationID is empty.
type Subscription struct {
	ID         string
	LocationID string
	C          <-chan Event

	send chan Event
}

// Hub fans events out to in-process subscribers over buffered channels.
// A subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Subscription
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Subscription), logger: logger}
}

func (h *Hub) Subscribe(locationID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	send := make(chan Event, buffer)
	sub := &Subscription{
		ID:         uuid.NewString(),
		LocationID: locationID,
		C:          send,
		send:       send,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sub.ID] = sub
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub.ID]; !ok {
		return
	}
	delete(h.clients, sub.ID)
	close(sub.send)
}

func (h *Hub) Notify(_ context.Context, locationID string, event Event) {
	event.LocationID = locationID
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.LocationID != "" && client.LocationID != locationID {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.logger.Warn("drop event for subscriber",
				zap.String("subscription_id", client.ID),
				zap.String("action", event.Action))
		}
	}
}
