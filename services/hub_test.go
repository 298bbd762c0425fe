package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// drain returns whatever is buffered on sub without waiting.
func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []Event) []EventType {
	out := make([]EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestHubPublishesToRoomMembersOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := hub.Subscribe("room-1", "a")
	b := hub.Subscribe("room-1", "b")
	other := hub.Subscribe("room-2", "c")
	assert.Equal(t, 2, hub.Members("room-1"))

	hub.Publish(Event{Type: EventChat, RoomID: "room-1"})

	for _, sub := range []*Subscription{a, b} {
		evs := drain(sub)
		require.Len(t, evs, 1)
		assert.Equal(t, EventChat, evs[0].Type)
		assert.False(t, evs[0].At.IsZero())
	}
	assert.Empty(t, drain(other))
}

func TestHubSendToTargetsOneConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := hub.Subscribe("room-1", "a")
	b := hub.Subscribe("room-1", "a")

	hub.SendTo(a.ID, Event{Type: EventError, RoomID: "room-1"})
	hub.SendTo("nobody", Event{Type: EventError, RoomID: "room-1"})

	assert.Equal(t, []EventType{EventError}, eventTypes(drain(a)))
	assert.Empty(t, drain(b))
}

func TestHubUnsubscribeClosesOnce(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub := hub.Subscribe("room-1", "a")

	require.NotNil(t, hub.Unsubscribe(sub.ID))
	assert.Nil(t, hub.Unsubscribe(sub.ID))
	_, ok := hub.Connection(sub.ID)
	assert.False(t, ok)
	assert.Zero(t, hub.Members("room-1"))

	_, open := <-sub.Events()
	assert.False(t, open)

	hub.Publish(Event{Type: EventChat, RoomID: "room-1"})
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.buffer = 2
	sub := hub.Subscribe("room-1", "a")

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Type: EventMoveMade, RoomID: "room-1"})
	}
	assert.Len(t, drain(sub), 2)
}
