package services

import (
	"encoding/json"
	"fmt"

	"ludo-arena/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerRecord describes one money movement to append.
type LedgerRecord struct {
	Type          models.LedgerType
	UserID        string
	Amount        decimal.Decimal
	RoomRef       string
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Metadata      map[string]any
}

// LedgerService appends ledger rows inside the caller's transaction.
type LedgerService struct{}

func NewLedgerService() *LedgerService { return &LedgerService{} }

// Record appends one entry. An error here must abort the surrounding transaction.
func (s *LedgerService) Record(tx *gorm.DB, rec LedgerRecord) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		RefID:         uuid.NewString(),
		UserID:        rec.UserID,
		Type:          rec.Type,
		Amount:        rec.Amount,
		RoomRef:       rec.RoomRef,
		BalanceBefore: rec.BalanceBefore,
		BalanceAfter:  rec.BalanceAfter,
	}
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode ledger metadata: %w", err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("record %s for %s: %w", rec.Type, rec.UserID, err)
	}
	return entry, nil
}

// Entries lists a user's ledger rows, oldest first.
func (s *LedgerService) Entries(tx *gorm.DB, userID string) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	if err := tx.Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list ledger for %s: %w", userID, err)
	}
	return out, nil
}
