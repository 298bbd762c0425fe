// models/game.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type GameType string

const (
	GameTypeClassic2P  GameType = "CLASSIC_2P"
	GameTypeClassic4P  GameType = "CLASSIC_4P"
	GameTypeQuick2P    GameType = "QUICK_2P"
	GameTypeTournament GameType = "TOURNAMENT"
)

// MaxPlayers returns the seat count fixed by the game type, or 0 for an unknown type.
func (t GameType) MaxPlayers() int {
	switch t {
	case GameTypeClassic2P, GameTypeQuick2P:
		return 2
	case GameTypeClassic4P, GameTypeTournament:
		return 4
	}
	return 0
}

func (t GameType) Valid() bool { return t.MaxPlayers() > 0 }

type GameStatus string

const (
	GameStatusWaiting           GameStatus = "WAITING"
	GameStatusInProgress        GameStatus = "IN_PROGRESS"
	GameStatusSettlementPending GameStatus = "SETTLEMENT_PENDING"
	GameStatusCompleted         GameStatus = "COMPLETED"
	GameStatusCancelled         GameStatus = "CANCELLED"
)

// Terminal reports whether no further play transition can leave this status.
func (s GameStatus) Terminal() bool {
	return s == GameStatusCompleted || s == GameStatusCancelled
}

type Token struct {
	ID       int  `json:"id"`
	Position int  `json:"position"`
	InLane   bool `json:"in_lane"`
	Finished bool `json:"finished"`
}

type Player struct {
	UserID     string    `json:"user_id"`
	BoardIndex int       `json:"board_index"`
	Tokens     [4]Token  `json:"tokens"`
	IsReady    bool      `json:"is_ready"`
	JoinedAt   time.Time `json:"joined_at"`
}

type LastMove struct {
	UserID   string    `json:"user_id"`
	TokenID  int       `json:"token_id"`
	Dice     int       `json:"dice"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	Captured string    `json:"captured,omitempty"` // user id of the captured player
	At       time.Time `json:"at"`
}

// Game is the durable record of one match. Rows are never deleted.
type Game struct {
	RoomID      string          `json:"room_id" gorm:"primaryKey;type:varchar(64)"`
	GameType    GameType        `json:"game_type" gorm:"type:varchar(32);not null;index"`
	MaxPlayers  int             `json:"max_players" gorm:"not null"`
	EntryFee    decimal.Decimal `json:"entry_fee" gorm:"type:numeric(14,2);not null"`
	PlatformFee decimal.Decimal `json:"platform_fee" gorm:"type:numeric(14,2);not null"`
	Prize       decimal.Decimal `json:"prize" gorm:"type:numeric(14,2);not null"`
	CreatedBy   string          `json:"created_by" gorm:"type:varchar(64)"`

	// 🎲 Board state
	Players       []Player   `json:"players" gorm:"type:jsonb;serializer:json"`
	Status        GameStatus `json:"status" gorm:"type:varchar(32);not null;index"`
	CurrentTurn   int        `json:"current_turn"`
	LastDiceValue int        `json:"last_dice_value"`
	LastMove      *LastMove  `json:"last_move,omitempty" gorm:"type:jsonb;serializer:json"`
	Winner        *string    `json:"winner,omitempty" gorm:"type:varchar(64)"`

	// Optimistic write guard, bumped on every persisted transition.
	Version int64 `json:"version" gorm:"not null;default:0"`

	Log []GameLogEntry `json:"log,omitempty" gorm:"foreignKey:RoomID;references:RoomID"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// PlayerByUser returns the seat index of userID, or -1.
func (g *Game) PlayerByUser(userID string) int {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the owning room.
func (g *Game) Clone() *Game {
	c := *g
	c.Players = append([]Player(nil), g.Players...)
	if g.LastMove != nil {
		lm := *g.LastMove
		c.LastMove = &lm
	}
	if g.Winner != nil {
		w := *g.Winner
		c.Winner = &w
	}
	c.Log = make([]GameLogEntry, len(g.Log))
	for i, e := range g.Log {
		e.Payload = append(datatypes.JSON(nil), e.Payload...)
		c.Log[i] = e
	}
	return &c
}

// GameParticipant indexes which users sat in which room, for history lookups.
type GameParticipant struct {
	RoomID     string    `json:"room_id" gorm:"primaryKey;type:varchar(64)"`
	UserID     string    `json:"user_id" gorm:"primaryKey;type:varchar(64);index"`
	BoardIndex int       `json:"board_index"`
	JoinedAt   time.Time `json:"joined_at"`
}
