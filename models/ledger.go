package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LedgerType string

const (
	LedgerGameEntry    LedgerType = "GAME_ENTRY"
	LedgerGameWinning  LedgerType = "GAME_WINNING"
	LedgerEntryRelease LedgerType = "ENTRY_RELEASE"
	LedgerRefund       LedgerType = "REFUND"
)

// LedgerEntry is an append-only money movement. Rows are never updated.
type LedgerEntry struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	RefID         string          `json:"ref_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID        string          `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Type          LedgerType      `json:"type" gorm:"type:varchar(32);not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	RoomRef       string          `json:"room_ref" gorm:"type:varchar(64);index"`
	BalanceBefore decimal.Decimal `json:"balance_before" gorm:"type:numeric(14,2)"`
	BalanceAfter  decimal.Decimal `json:"balance_after" gorm:"type:numeric(14,2)"`
	Metadata      datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}
