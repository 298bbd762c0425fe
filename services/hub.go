// services/hub.go
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// Subscription is one connection's membership in a room's broadcast group.
// Membership is presence only; it says nothing about holding a seat.
type Subscription struct {
	ID     string
	RoomID string
	UserID string
	events chan Event
}

func (s *Subscription) Events() <-chan Event { return s.events }

// Hub fans room events out to subscribers. Sends never block: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Subscription
	conns  map[string]*Subscription
	buffer int
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Subscription),
		conns:  make(map[string]*Subscription),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(roomID, userID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		RoomID: roomID,
		UserID: userID,
		events: make(chan Event, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Subscription)
	}
	h.rooms[roomID][sub.ID] = sub
	h.conns[sub.ID] = sub
	return sub
}

// Unsubscribe removes the connection and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(connID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.conns[connID]
	if !ok {
		return nil
	}
	delete(h.conns, connID)
	if room := h.rooms[sub.RoomID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, sub.RoomID)
		}
	}
	close(sub.events)
	return sub
}

// Connection returns the live subscription with the given id.
func (h *Hub) Connection(connID string) (*Subscription, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.conns[connID]
	return sub, ok
}

func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.rooms[ev.RoomID] {
		h.deliver(sub, ev)
	}
}

// SendTo delivers ev to a single connection.
func (h *Hub) SendTo(connID string, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sub, ok := h.conns[connID]; ok {
		h.deliver(sub, ev)
	}
}

// Members reports how many connections watch a room.
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// deliver must run under h.mu so Unsubscribe cannot close the channel mid-send.
func (h *Hub) deliver(sub *Subscription, ev Event) {
	select {
	case sub.events <- ev:
	default:
		h.logger.Warn("[Hub] subscriber channel full, dropping event",
			zap.String("room_id", sub.RoomID),
			zap.String("conn_id", sub.ID),
			zap.String("event", string(ev.Type)),
		)
	}
}
