package services

import (
	"context"
	"errors"
	"fmt"

	"ludo-arena/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

func (s *StatsService) IncrementPlayed(tx *gorm.DB, userID string) error {
	return s.update(tx, userID, func(st *models.PlayerStats) {
		st.GamesPlayed++
	})
}

func (s *StatsService) IncrementWon(tx *gorm.DB, userID string, earnings decimal.Decimal) error {
	return s.update(tx, userID, func(st *models.PlayerStats) {
		st.GamesWon++
		st.TotalEarnings = st.TotalEarnings.Add(earnings)
	})
}

func (s *StatsService) update(tx *gorm.DB, userID string, mutate func(*models.PlayerStats)) error {
	seed := models.PlayerStats{UserID: userID, TotalEarnings: decimal.Zero}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed stats for %s: %w", userID, err)
	}

	var st models.PlayerStats
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&st).Error; err != nil {
		return fmt.Errorf("lock stats for %s: %w", userID, err)
	}
	mutate(&st)
	st.WinRate = winRate(st.GamesWon, st.GamesPlayed)
	if err := tx.Save(&st).Error; err != nil {
		return fmt.Errorf("save stats for %s: %w", userID, err)
	}
	return nil
}

func winRate(won, played int64) float64 {
	if played == 0 {
		return 0
	}
	return float64(won) / float64(played) * 100
}

// Get returns a user's aggregate; users who never played get zeroes.
func (s *StatsService) Get(ctx context.Context, userID string) (*models.PlayerStats, error) {
	var st models.PlayerStats
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.PlayerStats{UserID: userID, TotalEarnings: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats for %s: %w", userID, err)
	}
	return &st, nil
}
