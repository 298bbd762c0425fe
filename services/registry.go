// services/registry.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ludo-arena/apperrors"
	"ludo-arena/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var platformFeeRate = decimal.NewFromFloat(0.10)

// StaleRoomLister finds WAITING rooms that outlived the join window, live or not.
type StaleRoomLister interface {
	ListStaleWaiting(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Registry maps room ids to live rooms. Records outlive their rooms: evicted
// rooms stay readable through the store.
type Registry struct {
	mu             sync.Mutex
	rooms          map[string]*Room
	deps           RoomDeps
	stale          StaleRoomLister // optional
	waitingTimeout time.Duration
	logger         *zap.Logger
}

func NewRegistry(deps RoomDeps, stale StaleRoomLister, waitingTimeout time.Duration) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		rooms:          make(map[string]*Room),
		deps:           deps,
		stale:          stale,
		waitingTimeout: waitingTimeout,
		logger:         deps.Logger,
	}
}

// PrizeFor returns the platform fee and prize pool for a room. The fee rounds
// up to the cent so the prize never exceeds what the seats paid in.
func PrizeFor(entryFee decimal.Decimal, maxPlayers int) (fee, prize decimal.Decimal) {
	fee = entryFee.Mul(platformFeeRate).RoundUp(2)
	prize = entryFee.Sub(fee).Mul(decimal.NewFromInt(int64(maxPlayers)))
	return fee, prize
}

// Create persists a new WAITING room and starts its loop.
func (reg *Registry) Create(ctx context.Context, gameType models.GameType, entryFee decimal.Decimal, creatorID string) (*Room, error) {
	if !gameType.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("unknown game type %q", gameType))
	}
	if entryFee.IsNegative() {
		return nil, apperrors.Validation("entry fee cannot be negative")
	}
	if !entryFee.Equal(entryFee.Round(2)) {
		return nil, apperrors.Validation("entry fee has more than two decimal places")
	}

	now := reg.deps.Now().UTC()
	fee, prize := PrizeFor(entryFee, gameType.MaxPlayers())
	g := &models.Game{
		RoomID:      uuid.NewString(),
		GameType:    gameType,
		MaxPlayers:  gameType.MaxPlayers(),
		EntryFee:    entryFee,
		PlatformFee: fee,
		Prize:       prize,
		CreatedBy:   creatorID,
		Players:     []models.Player{},
		Status:      models.GameStatusWaiting,
		CreatedAt:   now,
	}
	payload, _ := json.Marshal(map[string]any{
		"game_type": gameType, "entry_fee": entryFee, "prize": prize,
	})
	g.Log = []models.GameLogEntry{{
		RoomID:    g.RoomID,
		Seq:       1,
		Action:    models.GameActionCreate,
		Actor:     creatorID,
		Payload:   datatypes.JSON(payload),
		Timestamp: now,
	}}
	if err := reg.deps.Store.Create(ctx, g, g.Log); err != nil {
		return nil, err
	}

	room := reg.track(g)
	reg.logger.Info("[Registry] room created",
		zap.String("room_id", g.RoomID),
		zap.String("game_type", string(gameType)),
		zap.String("entry_fee", entryFee.StringFixed(2)),
	)
	if reg.deps.Events != nil {
		reg.deps.Events.Publish(Event{Type: EventRoomCreated, RoomID: g.RoomID, Payload: g.Clone(), At: now})
	}
	return room, nil
}

func (reg *Registry) track(g *models.Game) *Room {
	room := newRoom(g, reg.deps)
	room.onClosed = reg.remove
	reg.mu.Lock()
	reg.rooms[g.RoomID] = room
	reg.mu.Unlock()
	return room
}

// Get returns the live room, bringing a persisted unfinished room back to life
// when needed.
func (reg *Registry) Get(ctx context.Context, roomID string) (*Room, error) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if ok {
		return room, nil
	}

	g, err := reg.deps.Store.Load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if g.Status.Terminal() {
		return nil, apperrors.IllegalState(apperrors.ReasonRoomClosed, fmt.Sprintf("room is %s", g.Status))
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[roomID]; ok {
		return room, nil
	}
	room = newRoom(g, reg.deps)
	room.onClosed = reg.remove
	reg.rooms[roomID] = room
	reg.logger.Info("[Registry] room rehydrated", zap.String("room_id", roomID), zap.String("status", string(g.Status)))
	return room, nil
}

// Snapshot reads a room's record whether or not it is live.
func (reg *Registry) Snapshot(ctx context.Context, roomID string) (*models.Game, error) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if ok {
		return room.Snapshot(), nil
	}
	return reg.deps.Store.Load(ctx, roomID)
}

// Cancel closes a WAITING room and refunds its entry fees.
func (reg *Registry) Cancel(ctx context.Context, roomID, reason string) (*models.Game, error) {
	room, err := reg.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Cancel(ctx, reason)
}

// RetrySettlement re-runs the payout of a SETTLEMENT_PENDING room.
func (reg *Registry) RetrySettlement(ctx context.Context, roomID string) error {
	room, err := reg.Get(ctx, roomID)
	if err != nil {
		return err
	}
	return room.RetrySettlement(ctx)
}

// Live reports how many rooms currently have a running loop.
func (reg *Registry) Live() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

func (reg *Registry) remove(roomID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[roomID]
	delete(reg.rooms, roomID)
	reg.mu.Unlock()
	if ok {
		room.close()
	}
}

// Sweep evicts finished rooms and cancels WAITING rooms that never filled
// within the join window. It returns how many rooms left the registry.
func (reg *Registry) Sweep(ctx context.Context) int {
	reg.mu.Lock()
	live := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		live = append(live, room)
	}
	reg.mu.Unlock()

	cutoff := reg.deps.Now().UTC().Add(-reg.waitingTimeout)
	evicted := 0
	seen := make(map[string]bool, len(live))
	for _, room := range live {
		seen[room.ID()] = true
		snap := room.Snapshot()
		switch {
		case snap.Status.Terminal():
			reg.remove(room.ID())
			evicted++
		case reg.expired(snap, cutoff):
			if _, err := room.Cancel(ctx, "waiting room timed out"); err != nil {
				reg.logger.Warn("[Registry] cancel stale room", zap.String("room_id", room.ID()), zap.Error(err))
				continue
			}
			evicted++
		}
	}

	if reg.stale == nil {
		return evicted
	}
	// rooms left WAITING by a previous process
	ids, err := reg.stale.ListStaleWaiting(ctx, cutoff, 100)
	if err != nil {
		reg.logger.Warn("[Registry] list stale rooms", zap.Error(err))
		return evicted
	}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		room, err := reg.Get(ctx, id)
		if err != nil {
			continue
		}
		if !reg.expired(room.Snapshot(), cutoff) {
			continue
		}
		if _, err := room.Cancel(ctx, "waiting room timed out"); err != nil {
			reg.logger.Warn("[Registry] cancel stale room", zap.String("room_id", id), zap.Error(err))
			continue
		}
		evicted++
	}
	return evicted
}

func (reg *Registry) expired(g *models.Game, cutoff time.Time) bool {
	return g.Status == models.GameStatusWaiting &&
		len(g.Players) < g.MaxPlayers &&
		g.CreatedAt.Before(cutoff)
}

// Shutdown stops every room loop. Records are already persisted.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := reg.rooms
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()
	for _, room := range rooms {
		room.close()
	}
}
