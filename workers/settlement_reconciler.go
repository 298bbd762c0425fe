// workers/settlement_reconciler.go
package workers

import (
	"context"
	"time"

	"ludo-arena/models"

	"go.uber.org/zap"
)

// SettlementRetrier re-runs the payout of one room.
type SettlementRetrier interface {
	RetrySettlement(ctx context.Context, roomID string) error
}

// PendingLister finds rooms whose payout has not been confirmed.
type PendingLister interface {
	ListPendingSettlement(ctx context.Context, limit int) ([]string, error)
}

// Refunder returns entry fees still held by cancelled rooms.
type Refunder interface {
	ListOrphanedHolds(ctx context.Context, limit int) ([]models.EntryHold, error)
	Refund(ctx context.Context, userID, roomID string) error
}

// Reconciler finishes money work that a room could not: payouts stuck in
// SETTLEMENT_PENDING and entry fees still held by cancelled rooms.
type Reconciler struct {
	Pending PendingLister
	Rooms   SettlementRetrier
	Wallet  Refunder
	Batch   int
	logger  *zap.Logger
}

func NewReconciler(pending PendingLister, rooms SettlementRetrier, wallet Refunder, logger *zap.Logger) *Reconciler {
	return &Reconciler{Pending: pending, Rooms: rooms, Wallet: wallet, Batch: 50, logger: logger}
}

// Run ticks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	r.logger.Info("[Reconciler] started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[Reconciler] stopped")
			return
		case <-ticker.C:
			settled, refunded, err := r.Tick(ctx)
			if err != nil {
				r.logger.Error("[Reconciler] ❌ tick failed", zap.Error(err))
				continue
			}
			if settled > 0 || refunded > 0 {
				r.logger.Info("[Reconciler] ✅ reconciled", zap.Int("settled", settled), zap.Int("refunded", refunded))
			}
		}
	}
}

// Tick runs one pass and reports how many rooms settled and holds were refunded.
func (r *Reconciler) Tick(ctx context.Context) (settled, refunded int, err error) {
	pending, err := r.Pending.ListPendingSettlement(ctx, r.Batch)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range pending {
		if err := r.Rooms.RetrySettlement(ctx, id); err != nil {
			r.logger.Warn("[Reconciler] settlement retry failed", zap.String("room_id", id), zap.Error(err))
			continue
		}
		settled++
	}

	holds, err := r.Wallet.ListOrphanedHolds(ctx, r.Batch)
	if err != nil {
		return settled, 0, err
	}
	for _, h := range holds {
		if err := r.Wallet.Refund(ctx, h.UserID, h.RoomID); err != nil {
			r.logger.Warn("[Reconciler] refund failed", zap.String("room_id", h.RoomID), zap.String("user_id", h.UserID), zap.Error(err))
			continue
		}
		refunded++
	}
	return settled, refunded, nil
}
