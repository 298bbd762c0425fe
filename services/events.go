package services

import "time"

type EventType string

const (
	EventRoomCreated   EventType = "roomCreated"
	EventPlayerJoined  EventType = "playerJoined"
	EventReadyUpdate   EventType = "readyUpdate"
	EventGameStarted   EventType = "gameStarted"
	EventMoveMade      EventType = "moveMade"
	EventTurnPassed    EventType = "turnPassed"
	EventGameEnded     EventType = "gameEnded"
	EventGameCancelled EventType = "gameCancelled"
	EventPlayerLeft    EventType = "playerLeft"
	EventChat          EventType = "chat"
	EventError         EventType = "error"

	EventPlayerDisconnected EventType = "playerDisconnected"
)

// Event is one state delta fanned out to a room's connections.
type Event struct {
	Type    EventType `json:"type"`
	RoomID  string    `json:"room_id"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher receives room events. Implementations must not block.
type Publisher interface {
	Publish(ev Event)
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}
