package models

import "github.com/shopspring/decimal"

// PlayerStats is the per-user aggregate updated by settlement.
type PlayerStats struct {
	UserID        string          `json:"user_id" gorm:"primaryKey;type:varchar(64)"`
	GamesPlayed   int64           `json:"games_played" gorm:"not null;default:0"`
	GamesWon      int64           `json:"games_won" gorm:"not null;default:0"`
	TotalEarnings decimal.Decimal `json:"total_earnings" gorm:"type:numeric(14,2);not null;default:0"`
	WinRate       float64         `json:"win_rate" gorm:"not null;default:0"` // percent, 0..100

	Timestamps
}
