package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement marks a room as paid out. The unique room id makes payout idempotent.
type Settlement struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	RoomID       string          `json:"room_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	WinnerID     string          `json:"winner_id" gorm:"type:varchar(64);not null"`
	Prize        decimal.Decimal `json:"prize" gorm:"type:numeric(14,2);not null"`
	Participants int             `json:"participants"`
	SettledAt    time.Time       `json:"settled_at"`
}
