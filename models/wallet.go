// models/wallet.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a player's spendable balance. Locked tracks entry fees held by live rooms;
// those funds have already left Balance.
type Wallet struct {
	UserID        string          `json:"user_id" gorm:"primaryKey;type:varchar(64)"`
	Balance       decimal.Decimal `json:"balance" gorm:"type:numeric(14,2);not null;default:0"`
	Locked        decimal.Decimal `json:"locked" gorm:"type:numeric(14,2);not null;default:0"`
	TotalWinnings decimal.Decimal `json:"total_winnings" gorm:"type:numeric(14,2);not null;default:0"`

	Timestamps
}

type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "HELD"
	HoldStatusSettled  HoldStatus = "SETTLED"  // consumed into a prize pool
	HoldStatusRefunded HoldStatus = "REFUNDED" // returned to the balance
)

// EntryHold is the escrow lock for one seat. At most one row exists per (room, user).
type EntryHold struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	RoomID     string          `json:"room_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_entry_hold_room_user"`
	UserID     string          `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_entry_hold_room_user;index"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	Status     HoldStatus      `json:"status" gorm:"type:varchar(16);not null;index"`
	ReleasedAt *time.Time      `json:"released_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
