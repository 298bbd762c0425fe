// services/game_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ludo-arena/apperrors"
	"ludo-arena/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameStore persists game records and their audit log.
type GameStore interface {
	Create(ctx context.Context, g *models.Game, entries []models.GameLogEntry) error
	// Save writes g if its stored version still matches, then bumps g.Version.
	Save(ctx context.Context, g *models.Game, entries []models.GameLogEntry) error
	Load(ctx context.Context, roomID string) (*models.Game, error)
}

// columns written by Save; everything else is fixed at creation
var gameStateColumns = []string{
	"players", "status", "current_turn", "last_dice_value", "last_move", "winner",
	"version", "started_at", "completed_at", "cancelled_at", "settled_at", "updated_at",
}

type GormGameStore struct {
	DB *gorm.DB
}

func NewGormGameStore(db *gorm.DB) *GormGameStore {
	return &GormGameStore{DB: db}
}

func (s *GormGameStore) Create(ctx context.Context, g *models.Game, entries []models.GameLogEntry) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(g).Error; err != nil {
			return fmt.Errorf("create game %s: %w", g.RoomID, err)
		}
		return writeLogAndSeats(tx, g, entries)
	})
}

func (s *GormGameStore) Save(ctx context.Context, g *models.Game, entries []models.GameLogEntry) error {
	prev := g.Version
	g.Version = prev + 1
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(g).Where("version = ?", prev).Select(gameStateColumns).Updates(g)
		if res.Error != nil {
			return fmt.Errorf("save game %s: %w", g.RoomID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict(fmt.Sprintf("game %s changed underneath version %d", g.RoomID, prev))
		}
		return writeLogAndSeats(tx, g, entries)
	})
	if err != nil {
		g.Version = prev
	}
	return err
}

func writeLogAndSeats(tx *gorm.DB, g *models.Game, entries []models.GameLogEntry) error {
	if len(entries) > 0 {
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("append log for %s: %w", g.RoomID, err)
		}
	}
	if len(g.Players) == 0 {
		return nil
	}
	seats := make([]models.GameParticipant, len(g.Players))
	for i, p := range g.Players {
		seats[i] = models.GameParticipant{RoomID: g.RoomID, UserID: p.UserID, BoardIndex: p.BoardIndex, JoinedAt: p.JoinedAt}
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seats).Error; err != nil {
		return fmt.Errorf("index participants for %s: %w", g.RoomID, err)
	}
	return nil
}

func (s *GormGameStore) Load(ctx context.Context, roomID string) (*models.Game, error) {
	var g models.Game
	err := s.DB.WithContext(ctx).
		Preload("Log", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("room_id = ?", roomID).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(apperrors.ReasonRoomNotFound, fmt.Sprintf("room %s not found", roomID))
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", roomID, err)
	}
	return &g, nil
}

// ListOpen returns joinable rooms, newest first.
func (s *GormGameStore) ListOpen(ctx context.Context, gameType models.GameType, limit int) ([]models.Game, error) {
	var games []models.Game
	q := s.DB.WithContext(ctx).Where("status = ?", models.GameStatusWaiting)
	if gameType != "" {
		q = q.Where("game_type = ?", gameType)
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&games).Error; err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}
	return games, nil
}

// ListStaleWaiting returns WAITING rooms created before cutoff.
func (s *GormGameStore) ListStaleWaiting(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.Game{}).
		Where("status = ? AND created_at < ?", models.GameStatusWaiting, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("room_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list stale rooms: %w", err)
	}
	return ids, nil
}

// ListPendingSettlement returns rooms whose payout has not been confirmed.
func (s *GormGameStore) ListPendingSettlement(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.Game{}).
		Where("status = ?", models.GameStatusSettlementPending).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("room_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list pending settlements: %w", err)
	}
	return ids, nil
}

// History returns the completed games userID sat in, most recently finished
// first, plus the total count. Open and cancelled rooms are not history.
func (s *GormGameStore) History(ctx context.Context, userID string, page, limit int) ([]models.Game, int64, error) {
	var (
		games []models.Game
		total int64
	)
	base := s.DB.WithContext(ctx).Model(&models.Game{}).
		Joins("JOIN game_participants ON game_participants.room_id = games.room_id").
		Where("game_participants.user_id = ? AND games.status = ?", userID, models.GameStatusCompleted).
		Session(&gorm.Session{})
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}
	err := base.Select("games.*").
		Order("games.completed_at DESC").
		Order("games.created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, 0, fmt.Errorf("load history: %w", err)
	}
	return games, total, nil
}
