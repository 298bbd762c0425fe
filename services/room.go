// services/room.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ludo-arena/apperrors"
	"ludo-arena/ludo"
	"ludo-arena/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Archiver stores a finished game's record outside the database.
type Archiver interface {
	Archive(ctx context.Context, g *models.Game) error
}

// RoomDeps are the collaborators every room shares.
type RoomDeps struct {
	Store       GameStore
	Wallet      Wallet
	Settler     Settler
	Dice        ludo.Roller
	Events      Publisher
	Archiver    Archiver // optional
	Logger      *zap.Logger
	TurnTimeout time.Duration // 0 disables the turn timer
	Now         func() time.Time
}

// MoveResult describes what a single move command did.
type MoveResult struct {
	Dice     int          `json:"dice"`
	TokenID  int          `json:"token_id"`
	Moved    bool         `json:"moved"`
	From     int          `json:"from"`
	To       int          `json:"to"`
	Captured string       `json:"captured,omitempty"`
	Won      bool         `json:"won"`
	Game     *models.Game `json:"game"`
}

// Room owns one game record. Every command runs on the room's own goroutine,
// one at a time, so transitions never interleave.
type Room struct {
	id      string
	rec     *models.Game // touched only on the loop goroutine
	deps    RoomDeps
	logger  *zap.Logger
	mailbox chan func()
	done    chan struct{}
	stop    sync.Once

	snapshot atomic.Pointer[models.Game]

	timer    *time.Timer
	turnGen  uint64
	onClosed func(roomID string)
}

func newRoom(g *models.Game, deps RoomDeps) *Room {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := &Room{
		id:      g.RoomID,
		rec:     g,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("room_id", g.RoomID)),
		mailbox: make(chan func()),
		done:    make(chan struct{}),
	}
	r.snapshot.Store(g.Clone())
	go r.loop()
	if g.Status == models.GameStatusInProgress {
		r.armTurnTimer()
	}
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) loop() {
	for {
		select {
		case fn := <-r.mailbox:
			fn()
		case <-r.done:
			return
		}
	}
}

// close stops the loop. Commands already running finish; later ones are refused.
func (r *Room) close() {
	r.stop.Do(func() {
		close(r.done)
		if r.timer != nil {
			r.timer.Stop()
		}
	})
}

// do runs fn on the room goroutine and waits for its result.
func (r *Room) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	cmd := func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("[Room] command panicked", zap.Any("panic", p))
				errc <- fmt.Errorf("room command panicked: %v", p)
			}
		}()
		errc <- fn()
	}
	select {
	case r.mailbox <- cmd:
	case <-r.done:
		return apperrors.IllegalState(apperrors.ReasonRoomClosed, "room is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the record as of the last committed transition.
func (r *Room) Snapshot() *models.Game {
	return r.snapshot.Load().Clone()
}

func (r *Room) now() time.Time { return r.deps.Now().UTC() }

func (r *Room) entry(next *models.Game, action models.GameAction, actor string, payload map[string]any) models.GameLogEntry {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	e := models.GameLogEntry{
		RoomID:    next.RoomID,
		Seq:       len(next.Log) + 1,
		Action:    action,
		Actor:     actor,
		Payload:   datatypes.JSON(raw),
		Timestamp: r.now(),
	}
	next.Log = append(next.Log, e)
	return e
}

// commit persists next with its new log entries and makes it the live record.
// On error the live record is untouched.
func (r *Room) commit(ctx context.Context, next *models.Game, fromSeq int) error {
	entries := next.Log[fromSeq:]
	if err := r.deps.Store.Save(ctx, next, entries); err != nil {
		if errors.Is(err, apperrors.ErrConcurrencyConflict) {
			r.logger.Error("[Room] 🚨 version conflict on a single-writer room", zap.Error(err))
		}
		return err
	}
	r.rec = next
	r.snapshot.Store(next.Clone())
	return nil
}

func (r *Room) publish(t EventType, payload any) {
	if r.deps.Events == nil {
		return
	}
	r.deps.Events.Publish(Event{Type: t, RoomID: r.id, Payload: payload, At: r.now()})
}

func (r *Room) Join(ctx context.Context, userID string) (*models.Game, error) {
	var out *models.Game
	err := r.do(ctx, func() error {
		g := r.rec
		if g.Status != models.GameStatusWaiting {
			return apperrors.IllegalState(apperrors.ReasonWrongStatus, fmt.Sprintf("cannot join a room that is %s", g.Status))
		}
		if g.PlayerByUser(userID) >= 0 {
			return apperrors.IllegalState(apperrors.ReasonAlreadyJoined, "already joined this room")
		}
		if len(g.Players) >= g.MaxPlayers {
			return apperrors.IllegalState(apperrors.ReasonRoomFull, "room is full")
		}

		if err := r.deps.Wallet.Reserve(ctx, userID, g.RoomID, g.EntryFee); err != nil {
			return err
		}

		next := g.Clone()
		from := len(next.Log)
		seat := len(next.Players)
		next.Players = append(next.Players, models.Player{
			UserID:     userID,
			BoardIndex: seat,
			Tokens:     ludo.HomeTokens(),
			JoinedAt:   r.now(),
		})
		r.entry(next, models.GameActionJoin, userID, map[string]any{"board_index": seat})

		if err := r.commit(ctx, next, from); err != nil {
			if rerr := r.deps.Wallet.Refund(context.WithoutCancel(ctx), userID, g.RoomID); rerr != nil {
				r.logger.Error("[Room] refund after failed join", zap.String("user_id", userID), zap.Error(rerr))
			}
			return err
		}
		r.logger.Info("[Room] player joined", zap.String("user_id", userID), zap.Int("board_index", seat))
		r.publish(EventPlayerJoined, map[string]any{"players": next.Players})
		r.armTurnTimer()
		out = r.Snapshot()
		return nil
	})
	return out, err
}

func (r *Room) SetReady(ctx context.Context, userID string) (*models.Game, error) {
	var out *models.Game
	err := r.do(ctx, func() error {
		g := r.rec
		if g.Status != models.GameStatusWaiting {
			return apperrors.IllegalState(apperrors.ReasonWrongStatus, fmt.Sprintf("cannot change readiness while %s", g.Status))
		}
		seat := g.PlayerByUser(userID)
		if seat < 0 {
			return apperrors.NotFound(apperrors.ReasonPlayerNotFound, "not a player in this room")
		}

		next := g.Clone()
		from := len(next.Log)
		next.Players[seat].IsReady = !next.Players[seat].IsReady
		r.entry(next, models.GameActionReady, userID, map[string]any{"is_ready": next.Players[seat].IsReady})

		started := false
		if len(next.Players) == next.MaxPlayers && allReady(next.Players) {
			if err := r.start(next); err != nil {
				return err
			}
			started = true
		}

		if err := r.commit(ctx, next, from); err != nil {
			return err
		}
		r.publish(EventReadyUpdate, map[string]any{"players": next.Players})
		if started {
			r.logger.Info("[Room] 🎲 game started", zap.Int("players", len(next.Players)))
			r.publish(EventGameStarted, map[string]any{"current_turn": next.CurrentTurn, "players": next.Players})
		}
		r.armTurnTimer()
		out = r.Snapshot()
		return nil
	})
	return out, err
}

func allReady(players []models.Player) bool {
	for _, p := range players {
		if !p.IsReady {
			return false
		}
	}
	return len(players) > 0
}

// start moves a WAITING record into play. It only mutates next.
func (r *Room) start(next *models.Game) error {
	if next.Status != models.GameStatusWaiting {
		return apperrors.IllegalState(apperrors.ReasonWrongStatus, fmt.Sprintf("cannot start a room that is %s", next.Status))
	}
	if !allReady(next.Players) {
		return apperrors.IllegalState(apperrors.ReasonNotAllReady, "not every player is ready")
	}
	now := r.now()
	next.Status = models.GameStatusInProgress
	next.CurrentTurn = 0
	next.StartedAt = &now
	r.entry(next, models.GameActionStart, "", map[string]any{"players": len(next.Players)})
	return nil
}

func (r *Room) Move(ctx context.Context, userID string, tokenID int) (*MoveResult, error) {
	var out *MoveResult
	err := r.do(ctx, func() error {
		g := r.rec
		if g.Status != models.GameStatusInProgress {
			return apperrors.IllegalState(apperrors.ReasonWrongStatus, fmt.Sprintf("cannot move while %s", g.Status))
		}
		seat := g.PlayerByUser(userID)
		if seat < 0 || seat != g.CurrentTurn {
			return apperrors.IllegalState(apperrors.ReasonNotYourTurn, "not your turn")
		}
		if tokenID < 0 || tokenID >= ludo.TokenCount {
			return apperrors.New(apperrors.CodeValidation, apperrors.ReasonInvalidToken, fmt.Sprintf("token %d does not exist", tokenID))
		}

		dice, err := r.deps.Dice.Roll()
		if err != nil {
			return fmt.Errorf("roll dice: %w", err)
		}

		next := g.Clone()
		from := len(next.Log)
		next.LastDiceValue = dice
		player := &next.Players[seat]
		token := player.Tokens[tokenID]
		res := &MoveResult{Dice: dice, TokenID: tokenID, From: token.Position, To: token.Position}

		// The roll is spent on the chosen token even when another token could
		// have used it.
		if !ludo.CanMove(token, dice, player.BoardIndex) {
			next.CurrentTurn = ludo.NextTurn(seat, len(next.Players), dice, false, false)
			r.entry(next, models.GameActionRollNoMove, userID, map[string]any{
				"token_id": tokenID, "dice": dice, "next_turn": next.CurrentTurn,
				"other_movable": ludo.AnyMovable(*player, dice),
			})
			if err := r.commit(ctx, next, from); err != nil {
				return err
			}
			res.Game = r.Snapshot()
			r.publish(EventMoveMade, moveEvent(userID, res))
			r.armTurnTimer()
			out = res
			return nil
		}

		moved := ludo.Apply(token, dice, player.BoardIndex)
		player.Tokens[tokenID] = moved
		res.Moved, res.To = true, moved.Position

		captured := -1
		if !moved.InLane {
			captured = ludo.Capture(next.Players, userID, moved.Position)
		}
		if captured >= 0 {
			res.Captured = next.Players[captured].UserID
		}

		next.LastMove = &models.LastMove{
			UserID: userID, TokenID: tokenID, Dice: dice,
			From: res.From, To: res.To, Captured: res.Captured, At: r.now(),
		}

		res.Won = ludo.HasWon(*player)
		if res.Won {
			winner := userID
			next.Winner = &winner
			next.Status = models.GameStatusSettlementPending
		} else {
			next.CurrentTurn = ludo.NextTurn(seat, len(next.Players), dice, true, captured >= 0)
		}
		r.entry(next, models.GameActionMove, userID, map[string]any{
			"token_id": tokenID, "dice": dice, "from": res.From, "to": res.To,
			"captured": res.Captured, "won": res.Won,
		})

		if err := r.commit(ctx, next, from); err != nil {
			return err
		}
		res.Game = r.Snapshot()
		r.publish(EventMoveMade, moveEvent(userID, res))

		if res.Won {
			r.stopTurnTimer()
			r.logger.Info("[Room] 🏆 winner decided, settling", zap.String("winner", userID))
			r.settle(ctx)
			res.Game = r.Snapshot()
		} else {
			r.armTurnTimer()
		}
		out = res
		return nil
	})
	return out, err
}

func moveEvent(actor string, res *MoveResult) map[string]any {
	return map[string]any{
		"actor":     actor,
		"token_id":  res.TokenID,
		"dice":      res.Dice,
		"moved":     res.Moved,
		"captured":  res.Captured,
		"new_state": res.Game,
	}
}

// settle runs the payout for a SETTLEMENT_PENDING record. A failure leaves the
// room pending for the reconciler; it is never reported to the mover.
func (r *Room) settle(ctx context.Context) {
	if r.rec.Status != models.GameStatusSettlementPending {
		return
	}
	settlement, err := r.deps.Settler.Settle(ctx, r.id)
	if err != nil {
		r.logger.Warn("[Room] settlement pending, reconciler will retry", zap.Error(err))
		return
	}

	fresh, err := r.deps.Store.Load(ctx, r.id)
	if err != nil {
		r.logger.Error("[Room] reload after settlement", zap.Error(err))
		fresh = r.rec.Clone()
		at := settlement.SettledAt
		fresh.Status = models.GameStatusCompleted
		fresh.SettledAt, fresh.CompletedAt = &at, &at
		fresh.Version++
	}
	r.rec = fresh
	r.snapshot.Store(fresh.Clone())

	r.publish(EventGameEnded, map[string]any{"winner": settlement.WinnerID, "prize": settlement.Prize})
	if r.deps.Archiver != nil {
		archived := fresh.Clone()
		go func() {
			actx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := r.deps.Archiver.Archive(actx, archived); err != nil {
				r.logger.Warn("[Room] archive failed", zap.Error(err))
			}
		}()
	}
	if r.onClosed != nil {
		r.onClosed(r.id)
	}
}

// RetrySettlement re-runs a pending payout. Rooms in any other state are left alone.
func (r *Room) RetrySettlement(ctx context.Context) error {
	return r.do(ctx, func() error {
		r.settle(ctx)
		if r.rec.Status == models.GameStatusSettlementPending {
			return apperrors.SettlementFailure("settlement still pending", nil)
		}
		return nil
	})
}

// Cancel closes a WAITING room and refunds every entry fee. Refunds that fail
// stay held and are picked up by the reconciler.
func (r *Room) Cancel(ctx context.Context, reason string) (*models.Game, error) {
	var out *models.Game
	err := r.do(ctx, func() error {
		g := r.rec
		if g.Status != models.GameStatusWaiting {
			return apperrors.IllegalState(apperrors.ReasonWrongStatus, fmt.Sprintf("cannot cancel a room that is %s", g.Status))
		}
		next := g.Clone()
		from := len(next.Log)
		now := r.now()
		next.Status = models.GameStatusCancelled
		next.CancelledAt = &now
		users := make([]string, len(next.Players))
		for i, p := range next.Players {
			users[i] = p.UserID
		}
		r.entry(next, models.GameActionCancel, "", map[string]any{"reason": reason, "refunded": users})
		if err := r.commit(ctx, next, from); err != nil {
			return err
		}
		r.stopTurnTimer()

		for _, u := range users {
			if err := r.deps.Wallet.Refund(ctx, u, r.id); err != nil {
				r.logger.Error("[Room] refund failed", zap.String("user_id", u), zap.Error(err))
			}
		}
		r.logger.Info("[Room] room cancelled", zap.String("reason", reason), zap.Int("refunds", len(users)))
		r.publish(EventGameCancelled, map[string]any{"reason": reason})
		out = r.Snapshot()
		if r.onClosed != nil {
			r.onClosed(r.id)
		}
		return nil
	})
	return out, err
}

// ForceTurnPass hands the turn to the next player when the turn timer fires.
// gen guards against a timer that fired after the turn already moved on.
func (r *Room) ForceTurnPass(ctx context.Context, gen uint64) error {
	return r.do(ctx, func() error {
		g := r.rec
		if gen != r.turnGen || g.Status != models.GameStatusInProgress {
			return nil
		}
		next := g.Clone()
		from := len(next.Log)
		skipped := next.Players[next.CurrentTurn].UserID
		next.CurrentTurn = (next.CurrentTurn + 1) % len(next.Players)
		r.entry(next, models.GameActionTurnTimeout, skipped, map[string]any{"next_turn": next.CurrentTurn})
		if err := r.commit(ctx, next, from); err != nil {
			return err
		}
		r.logger.Info("[Room] ⏱️ turn timed out", zap.String("user_id", skipped))
		r.publish(EventTurnPassed, map[string]any{"skipped": skipped, "current_turn": next.CurrentTurn})
		r.armTurnTimer()
		return nil
	})
}

// armTurnTimer restarts the turn clock. Runs on the loop goroutine.
func (r *Room) armTurnTimer() {
	r.turnGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.deps.TurnTimeout <= 0 || r.rec.Status != models.GameStatusInProgress {
		return
	}
	gen := r.turnGen
	r.timer = time.AfterFunc(r.deps.TurnTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.ForceTurnPass(ctx, gen); err != nil && !errors.Is(err, apperrors.ErrIllegalState) {
			r.logger.Warn("[Room] forced turn pass failed", zap.Error(err))
		}
	})
}

func (r *Room) stopTurnTimer() {
	r.turnGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
