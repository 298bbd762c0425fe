// services/wallet.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ludo-arena/apperrors"
	"ludo-arena/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Wallet is what a room needs from the money side while seating players.
type Wallet interface {
	// Reserve debits amount and locks it against roomID in one step, or fails
	// with InsufficientFunds. The balance check and the debit share a row lock.
	Reserve(ctx context.Context, userID, roomID string, amount decimal.Decimal) error
	// Refund returns a held entry fee to the balance. Holds already released are left alone.
	Refund(ctx context.Context, userID, roomID string) error
}

type WalletService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	now    func() time.Time
}

func NewWalletService(db *gorm.DB, ledger *LedgerService) *WalletService {
	return &WalletService{DB: db, Ledger: ledger, now: time.Now}
}

func lockWallet(tx *gorm.DB, userID string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// seedWallet creates an empty wallet for userID unless one exists.
func seedWallet(tx *gorm.DB, userID string) error {
	seed := models.Wallet{UserID: userID, Balance: decimal.Zero, Locked: decimal.Zero, TotalWinnings: decimal.Zero}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
}

// Reserve moves amount from balance to locked and records the hold. Users
// without a wallet get an empty one, so free rooms need no deposit first.
func (s *WalletService) Reserve(ctx context.Context, userID, roomID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.Validation("entry fee cannot be negative")
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedWallet(tx, userID); err != nil {
			return fmt.Errorf("seed wallet %s: %w", userID, err)
		}
		w, err := lockWallet(tx, userID)
		if err != nil {
			return fmt.Errorf("lock wallet %s: %w", userID, err)
		}

		var hold models.EntryHold
		err = tx.Where("room_id = ? AND user_id = ?", roomID, userID).First(&hold).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load hold: %w", err)
		}
		if found && hold.Status != models.HoldStatusRefunded {
			return apperrors.IllegalState(apperrors.ReasonAlreadyJoined, "entry fee already held for this room")
		}

		if w.Balance.LessThan(amount) {
			return apperrors.New(apperrors.CodeInsufficientFunds, "",
				fmt.Sprintf("balance %s is below entry fee %s", w.Balance.StringFixed(2), amount.StringFixed(2)))
		}

		before := w.Balance
		w.Balance = w.Balance.Sub(amount)
		w.Locked = w.Locked.Add(amount)
		if err := tx.Model(w).Updates(map[string]any{"balance": w.Balance, "locked": w.Locked}).Error; err != nil {
			return fmt.Errorf("debit wallet %s: %w", userID, err)
		}

		if found {
			err = tx.Model(&hold).Updates(map[string]any{
				"status": models.HoldStatusHeld, "amount": amount, "released_at": nil,
			}).Error
		} else {
			err = tx.Create(&models.EntryHold{
				ID:     uuid.NewString(),
				RoomID: roomID,
				UserID: userID,
				Amount: amount,
				Status: models.HoldStatusHeld,
			}).Error
		}
		if err != nil {
			return fmt.Errorf("hold entry fee: %w", err)
		}

		_, err = s.Ledger.Record(tx, LedgerRecord{
			Type:          models.LedgerGameEntry,
			UserID:        userID,
			Amount:        amount,
			RoomRef:       roomID,
			BalanceBefore: before,
			BalanceAfter:  w.Balance,
		})
		return err
	})
}

func (s *WalletService) Refund(ctx context.Context, userID, roomID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hold, w, err := s.releaseHold(tx, userID, roomID, models.HoldStatusRefunded)
		if err != nil || hold == nil {
			return err
		}
		before := w.Balance
		w.Balance = w.Balance.Add(hold.Amount)
		if err := tx.Model(w).Updates(map[string]any{"balance": w.Balance, "locked": w.Locked}).Error; err != nil {
			return fmt.Errorf("refund wallet %s: %w", userID, err)
		}
		_, err = s.Ledger.Record(tx, LedgerRecord{
			Type:          models.LedgerRefund,
			UserID:        userID,
			Amount:        hold.Amount,
			RoomRef:       roomID,
			BalanceBefore: before,
			BalanceAfter:  w.Balance,
		})
		return err
	})
}

// SettleHold consumes a held entry fee into the prize pool. It runs inside the
// settlement transaction and fails if the hold is not currently held.
func (s *WalletService) SettleHold(tx *gorm.DB, userID, roomID string) error {
	hold, w, err := s.releaseHold(tx, userID, roomID, models.HoldStatusSettled)
	if err != nil {
		return err
	}
	if hold == nil {
		return fmt.Errorf("no held entry fee for %s in room %s", userID, roomID)
	}
	if err := tx.Model(w).Update("locked", w.Locked).Error; err != nil {
		return fmt.Errorf("unlock wallet %s: %w", userID, err)
	}
	_, err = s.Ledger.Record(tx, LedgerRecord{
		Type:          models.LedgerEntryRelease,
		UserID:        userID,
		Amount:        hold.Amount,
		RoomRef:       roomID,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance,
	})
	return err
}

// releaseHold flips a HELD row to status and takes its amount off the wallet's
// locked total in memory. It returns a nil hold when nothing was held.
func (s *WalletService) releaseHold(tx *gorm.DB, userID, roomID string, status models.HoldStatus) (*models.EntryHold, *models.Wallet, error) {
	w, err := lockWallet(tx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock wallet %s: %w", userID, err)
	}
	var hold models.EntryHold
	err = tx.Where("room_id = ? AND user_id = ? AND status = ?", roomID, userID, models.HoldStatusHeld).First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, w, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load hold: %w", err)
	}

	res := tx.Model(&models.EntryHold{}).
		Where("id = ? AND status = ?", hold.ID, models.HoldStatusHeld).
		Updates(map[string]any{"status": status, "released_at": s.now()})
	if res.Error != nil {
		return nil, nil, fmt.Errorf("release hold %s: %w", hold.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, w, nil
	}
	w.Locked = w.Locked.Sub(hold.Amount)
	return &hold, w, nil
}

// Credit adds a payout to the user's balance inside the caller's transaction.
func (s *WalletService) Credit(tx *gorm.DB, userID string, amount decimal.Decimal, roomID string) error {
	w, err := lockWallet(tx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = &models.Wallet{UserID: userID, Balance: decimal.Zero, Locked: decimal.Zero, TotalWinnings: decimal.Zero}
		if err := tx.Create(w).Error; err != nil {
			return fmt.Errorf("open wallet %s: %w", userID, err)
		}
	} else if err != nil {
		return fmt.Errorf("lock wallet %s: %w", userID, err)
	}

	before := w.Balance
	w.Balance = w.Balance.Add(amount)
	w.TotalWinnings = w.TotalWinnings.Add(amount)
	if err := tx.Model(w).Updates(map[string]any{"balance": w.Balance, "total_winnings": w.TotalWinnings}).Error; err != nil {
		return fmt.Errorf("credit wallet %s: %w", userID, err)
	}
	_, err = s.Ledger.Record(tx, LedgerRecord{
		Type:          models.LedgerGameWinning,
		UserID:        userID,
		Amount:        amount,
		RoomRef:       roomID,
		BalanceBefore: before,
		BalanceAfter:  w.Balance,
	})
	return err
}

// Deposit tops up a wallet, creating it on first use.
func (s *WalletService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.Wallet, error) {
	var out models.Wallet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedWallet(tx, userID); err != nil {
			return err
		}
		w, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}
		w.Balance = w.Balance.Add(amount)
		if err := tx.Model(w).Update("balance", w.Balance).Error; err != nil {
			return err
		}
		out = *w
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deposit to %s: %w", userID, err)
	}
	return &out, nil
}

func (s *WalletService) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	var w models.Wallet
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// ListOrphanedHolds returns entry fees still held by rooms that were cancelled.
func (s *WalletService) ListOrphanedHolds(ctx context.Context, limit int) ([]models.EntryHold, error) {
	var holds []models.EntryHold
	err := s.DB.WithContext(ctx).
		Joins("JOIN games ON games.room_id = entry_holds.room_id").
		Where("entry_holds.status = ? AND games.status = ?", models.HoldStatusHeld, models.GameStatusCancelled).
		Limit(limit).
		Find(&holds).Error
	if err != nil {
		return nil, fmt.Errorf("list orphaned holds: %w", err)
	}
	return holds, nil
}
