package services

import (
	"context"
	"sync"
	"testing"

	"ludo-arena/apperrors"
	"ludo-arena/models"
	"ludo-arena/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newWallets(t *testing.T, balances map[string]int64) (*gorm.DB, *WalletService) {
	t.Helper()
	db := testutil.NewDB(t)
	wallets := NewWalletService(db, NewLedgerService())
	for u, b := range balances {
		_, err := wallets.Deposit(context.Background(), u, dec(b))
		require.NoError(t, err)
	}
	return db, wallets
}

func requireWallet(t *testing.T, wallets *WalletService, userID string, balance, locked int64) {
	t.Helper()
	w, err := wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec(balance)), "%s balance: got %s want %d", userID, w.Balance, balance)
	assert.True(t, w.Locked.Equal(dec(locked)), "%s locked: got %s want %d", userID, w.Locked, locked)
}

func ledgerTypes(t *testing.T, db *gorm.DB, userID string) []models.LedgerType {
	t.Helper()
	entries, err := NewLedgerService().Entries(db, userID)
	require.NoError(t, err)
	out := make([]models.LedgerType, len(entries))
	for i, e := range entries {
		out[i] = e.Type
	}
	return out
}

func TestReserveLocksFunds(t *testing.T) {
	db, wallets := newWallets(t, map[string]int64{"a": 500})
	ctx := context.Background()

	require.NoError(t, wallets.Reserve(ctx, "a", "room-1", dec(100)))
	requireWallet(t, wallets, "a", 400, 100)

	var hold models.EntryHold
	require.NoError(t, db.Where("room_id = ? AND user_id = ?", "room-1", "a").First(&hold).Error)
	assert.Equal(t, models.HoldStatusHeld, hold.Status)
	assert.True(t, hold.Amount.Equal(dec(100)))
	assert.Equal(t, []models.LedgerType{models.LedgerGameEntry}, ledgerTypes(t, db, "a"))

	err := wallets.Reserve(ctx, "a", "room-1", dec(100))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyJoined)
	requireWallet(t, wallets, "a", 400, 100)
}

func TestReserveInsufficientFunds(t *testing.T) {
	db, wallets := newWallets(t, map[string]int64{"a": 50})
	ctx := context.Background()

	err := wallets.Reserve(ctx, "a", "room-1", dec(100))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	requireWallet(t, wallets, "a", 50, 0)
	assert.Empty(t, ledgerTypes(t, db, "a"))

	assert.ErrorIs(t, wallets.Reserve(ctx, "nobody", "room-1", dec(1)), apperrors.ErrInsufficientFunds)
	assert.ErrorIs(t, wallets.Reserve(ctx, "a", "room-1", dec(-1)), apperrors.ErrValidation)
}

func TestReserveFreeEntryWithoutWallet(t *testing.T) {
	db, wallets := newWallets(t, nil)
	ctx := context.Background()

	require.NoError(t, wallets.Reserve(ctx, "newcomer", "room-1", decimal.Zero))
	requireWallet(t, wallets, "newcomer", 0, 0)

	var hold models.EntryHold
	require.NoError(t, db.Where("room_id = ? AND user_id = ?", "room-1", "newcomer").First(&hold).Error)
	assert.Equal(t, models.HoldStatusHeld, hold.Status)
	assert.True(t, hold.Amount.IsZero())

	require.NoError(t, wallets.Refund(ctx, "newcomer", "room-1"))
	requireWallet(t, wallets, "newcomer", 0, 0)

	err := wallets.Reserve(ctx, "stranger", "room-1", dec(1))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	var count int64
	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", "stranger").Count(&count).Error)
	assert.Zero(t, count, "a failed reserve leaves no wallet behind")
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	_, wallets := newWallets(t, map[string]int64{"a": 150})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, room := range []string{"room-1", "room-2"} {
		wg.Add(1)
		go func(i int, room string) {
			defer wg.Done()
			errs[i] = wallets.Reserve(ctx, "a", room, dec(100))
		}(i, room)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	}
	assert.Equal(t, 1, succeeded)
	requireWallet(t, wallets, "a", 50, 100)
}

func TestRefundIsExactlyOnce(t *testing.T) {
	db, wallets := newWallets(t, map[string]int64{"a": 500})
	ctx := context.Background()
	require.NoError(t, wallets.Reserve(ctx, "a", "room-1", dec(100)))

	require.NoError(t, wallets.Refund(ctx, "a", "room-1"))
	require.NoError(t, wallets.Refund(ctx, "a", "room-1"))
	requireWallet(t, wallets, "a", 500, 0)
	assert.Equal(t, []models.LedgerType{models.LedgerGameEntry, models.LedgerRefund}, ledgerTypes(t, db, "a"))

	t.Run("re-reserve reuses the refunded hold", func(t *testing.T) {
		require.NoError(t, wallets.Reserve(ctx, "a", "room-1", dec(100)))
		requireWallet(t, wallets, "a", 400, 100)
		var count int64
		require.NoError(t, db.Model(&models.EntryHold{}).Where("room_id = ?", "room-1").Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})
}

func TestSettleHoldRequiresHeldFunds(t *testing.T) {
	db, wallets := newWallets(t, map[string]int64{"a": 500})
	ctx := context.Background()
	require.NoError(t, wallets.Reserve(ctx, "a", "room-1", dec(100)))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return wallets.SettleHold(tx, "a", "room-1")
	}))
	requireWallet(t, wallets, "a", 400, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		return wallets.SettleHold(tx, "a", "room-1")
	})
	assert.Error(t, err, "a settled hold cannot be settled twice")

	require.NoError(t, wallets.Refund(ctx, "a", "room-1"))
	requireWallet(t, wallets, "a", 400, 0)
}

func TestListOrphanedHolds(t *testing.T) {
	db, wallets := newWallets(t, map[string]int64{"a": 500, "b": 500})
	ctx := context.Background()
	store := NewGormGameStore(db)

	cancelled := waitingGame(models.GameTypeClassic2P, 100)
	cancelled.RoomID = "room-cancelled"
	cancelled.Status = models.GameStatusCancelled
	require.NoError(t, store.Create(ctx, cancelled, nil))
	live := waitingGame(models.GameTypeClassic2P, 100)
	live.RoomID = "room-live"
	require.NoError(t, store.Create(ctx, live, nil))

	require.NoError(t, wallets.Reserve(ctx, "a", "room-cancelled", dec(100)))
	require.NoError(t, wallets.Reserve(ctx, "b", "room-live", dec(100)))

	holds, err := wallets.ListOrphanedHolds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, "a", holds[0].UserID)
	assert.Equal(t, "room-cancelled", holds[0].RoomID)
}
