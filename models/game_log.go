package models

import (
	"time"

	"gorm.io/datatypes"
)

type GameAction string

const (
	GameActionCreate      GameAction = "CREATE"
	GameActionJoin        GameAction = "JOIN"
	GameActionReady       GameAction = "READY_TOGGLE"
	GameActionStart       GameAction = "START"
	GameActionMove        GameAction = "MOVE"
	GameActionRollNoMove  GameAction = "ROLL_NO_MOVE"
	GameActionTurnTimeout GameAction = "TURN_TIMEOUT"
	GameActionSettled     GameAction = "SETTLED"
	GameActionCancel      GameAction = "CANCEL"
)

// GameLogEntry is one append-only audit row. Seq orders entries within a room.
type GameLogEntry struct {
	ID        uint           `json:"-" gorm:"primaryKey;autoIncrement"`
	RoomID    string         `json:"room_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_game_log_room_seq"`
	Seq       int            `json:"seq" gorm:"not null;uniqueIndex:idx_game_log_room_seq"`
	Action    GameAction     `json:"action" gorm:"type:varchar(32);not null"`
	Actor     string         `json:"actor" gorm:"type:varchar(64)"`
	Payload   datatypes.JSON `json:"payload"`
	Timestamp time.Time      `json:"timestamp" gorm:"not null"`
}
