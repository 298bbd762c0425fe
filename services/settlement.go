// services/settlement.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ludo-arena/apperrors"
	"ludo-arena/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settler pays out a finished room.
type Settler interface {
	Settle(ctx context.Context, roomID string) (*models.Settlement, error)
}

// SettlementService credits the winner, releases every entry hold, writes the
// ledger and stats, and marks the room COMPLETED, all in one transaction.
type SettlementService struct {
	DB      *gorm.DB
	Wallets *WalletService
	Stats   *StatsService
	logger  *zap.Logger
	now     func() time.Time
}

func NewSettlementService(db *gorm.DB, wallets *WalletService, stats *StatsService, logger *zap.Logger) *SettlementService {
	return &SettlementService{DB: db, Wallets: wallets, Stats: stats, logger: logger, now: time.Now}
}

// Settle is idempotent: a room that already has a settlement row returns it untouched.
func (s *SettlementService) Settle(ctx context.Context, roomID string) (*models.Settlement, error) {
	var (
		out     models.Settlement
		already bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Game
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("room_id = ?", roomID).First(&g).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound(apperrors.ReasonRoomNotFound, fmt.Sprintf("room %s not found", roomID))
		}
		if err != nil {
			return fmt.Errorf("lock game: %w", err)
		}

		err = tx.Where("room_id = ?", roomID).First(&out).Error
		if err == nil {
			already = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load settlement marker: %w", err)
		}

		if g.Status != models.GameStatusSettlementPending || g.Winner == nil {
			return apperrors.IllegalState(apperrors.ReasonWrongStatus,
				fmt.Sprintf("room %s is %s, nothing to settle", roomID, g.Status))
		}
		winner := *g.Winner
		now := s.now().UTC()

		if err := s.Wallets.Credit(tx, winner, g.Prize, roomID); err != nil {
			return err
		}
		for _, p := range g.Players {
			if err := s.Wallets.SettleHold(tx, p.UserID, roomID); err != nil {
				return err
			}
			if err := s.Stats.IncrementPlayed(tx, p.UserID); err != nil {
				return err
			}
		}
		if err := s.Stats.IncrementWon(tx, winner, g.Prize); err != nil {
			return err
		}

		out = models.Settlement{
			ID:           uuid.NewString(),
			RoomID:       roomID,
			WinnerID:     winner,
			Prize:        g.Prize,
			Participants: len(g.Players),
			SettledAt:    now,
		}
		if err := tx.Create(&out).Error; err != nil {
			return fmt.Errorf("write settlement marker: %w", err)
		}

		var seq int64
		if err := tx.Model(&models.GameLogEntry{}).Where("room_id = ?", roomID).Count(&seq).Error; err != nil {
			return fmt.Errorf("count log: %w", err)
		}
		payload, _ := json.Marshal(map[string]any{"winner": winner, "prize": g.Prize, "settlement_id": out.ID})
		entry := models.GameLogEntry{
			RoomID:    roomID,
			Seq:       int(seq) + 1,
			Action:    models.GameActionSettled,
			Actor:     winner,
			Payload:   datatypes.JSON(payload),
			Timestamp: now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append settlement log: %w", err)
		}

		return tx.Model(&models.Game{}).Where("room_id = ?", roomID).Updates(map[string]any{
			"status":       models.GameStatusCompleted,
			"settled_at":   now,
			"completed_at": now,
			"version":      gorm.Expr("version + 1"),
		}).Error
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Code != apperrors.CodeInternal {
			return nil, err
		}
		return nil, apperrors.SettlementFailure(fmt.Sprintf("settle room %s", roomID), err)
	}

	if already {
		s.logger.Info("[Settlement] room already settled, nothing to do", zap.String("room_id", roomID))
	} else {
		s.logger.Info("[Settlement] ✅ room settled",
			zap.String("room_id", roomID),
			zap.String("winner", out.WinnerID),
			zap.String("prize", out.Prize.StringFixed(2)),
		)
	}
	return &out, nil
}
