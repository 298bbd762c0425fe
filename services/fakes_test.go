package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ludo-arena/apperrors"
	"ludo-arena/ludo"
	"ludo-arena/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type memStore struct {
	mu       sync.Mutex
	games    map[string]*models.Game
	failSave error
}

func newMemStore() *memStore {
	return &memStore{games: make(map[string]*models.Game)}
}

func (s *memStore) Create(_ context.Context, g *models.Game, _ []models.GameLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.RoomID] = g.Clone()
	return nil
}

func (s *memStore) Save(_ context.Context, g *models.Game, _ []models.GameLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	stored, ok := s.games[g.RoomID]
	if !ok || stored.Version != g.Version {
		return apperrors.Conflict("stale version")
	}
	g.Version++
	s.games[g.RoomID] = g.Clone()
	return nil
}

func (s *memStore) Load(_ context.Context, roomID string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	if !ok {
		return nil, apperrors.NotFound(apperrors.ReasonRoomNotFound, "room not found")
	}
	return g.Clone(), nil
}

func (s *memStore) get(roomID string) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games[roomID].Clone()
}

type memWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	held     map[string]decimal.Decimal
	refunds  map[string]int
}

func newMemWallet(balances map[string]int64) *memWallet {
	w := &memWallet{
		balances: make(map[string]decimal.Decimal),
		held:     make(map[string]decimal.Decimal),
		refunds:  make(map[string]int),
	}
	for u, b := range balances {
		w.balances[u] = decimal.NewFromInt(b)
	}
	return w
}

func (w *memWallet) Reserve(_ context.Context, userID, roomID string, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[userID].LessThan(amount) {
		return apperrors.New(apperrors.CodeInsufficientFunds, "", "insufficient funds")
	}
	w.balances[userID] = w.balances[userID].Sub(amount)
	w.held[roomID+"/"+userID] = amount
	return nil
}

func (w *memWallet) Refund(_ context.Context, userID, roomID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := roomID + "/" + userID
	amount, ok := w.held[key]
	if !ok {
		return nil
	}
	delete(w.held, key)
	w.balances[userID] = w.balances[userID].Add(amount)
	w.refunds[key]++
	return nil
}

func (w *memWallet) balance(userID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

func (w *memWallet) refundCount(roomID, userID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refunds[roomID+"/"+userID]
}

// fakeSettler marks the stored record COMPLETED the way the real coordinator does.
type fakeSettler struct {
	mu    sync.Mutex
	store *memStore
	err   error
	calls int
}

func (f *fakeSettler) Settle(_ context.Context, roomID string) (*models.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	g := f.store.games[roomID]
	now := time.Now().UTC()
	g.Status = models.GameStatusCompleted
	g.SettledAt, g.CompletedAt = &now, &now
	g.Version++
	return &models.Settlement{RoomID: roomID, WinnerID: *g.Winner, Prize: g.Prize, SettledAt: now}, nil
}

func (f *fakeSettler) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSettler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errDiceExhausted = errors.New("scripted dice exhausted")

type scriptedDice struct {
	mu    sync.Mutex
	faces []int
}

func dice(faces ...int) *scriptedDice { return &scriptedDice{faces: faces} }

func (d *scriptedDice) Roll() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.faces) == 0 {
		return 0, errDiceExhausted
	}
	v := d.faces[0]
	d.faces = d.faces[1:]
	return v, nil
}

func (d *scriptedDice) remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.faces)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type roomFixture struct {
	store   *memStore
	wallet  *memWallet
	settler *fakeSettler
	dice    *scriptedDice
	events  *recorder
	deps    RoomDeps
}

func newRoomFixture(balances map[string]int64, faces ...int) *roomFixture {
	store := newMemStore()
	f := &roomFixture{
		store:   store,
		wallet:  newMemWallet(balances),
		settler: &fakeSettler{store: store},
		dice:    dice(faces...),
		events:  &recorder{},
	}
	f.deps = RoomDeps{
		Store:   f.store,
		Wallet:  f.wallet,
		Settler: f.settler,
		Dice:    f.dice,
		Events:  f.events,
		Logger:  zap.NewNop(),
	}
	return f
}

func waitingGame(gameType models.GameType, fee int64) *models.Game {
	entryFee := decimal.NewFromInt(fee)
	platformFee, prize := PrizeFor(entryFee, gameType.MaxPlayers())
	return &models.Game{
		RoomID:      "room-" + string(gameType),
		GameType:    gameType,
		MaxPlayers:  gameType.MaxPlayers(),
		EntryFee:    entryFee,
		PlatformFee: platformFee,
		Prize:       prize,
		Players:     []models.Player{},
		Status:      models.GameStatusWaiting,
		CreatedAt:   time.Now().UTC(),
	}
}

// playingGame returns a started game with the given users seated in order.
func playingGame(fee int64, users ...string) *models.Game {
	gameType := models.GameTypeClassic2P
	if len(users) > 2 {
		gameType = models.GameTypeClassic4P
	}
	g := waitingGame(gameType, fee)
	for i, u := range users {
		g.Players = append(g.Players, models.Player{UserID: u, BoardIndex: i, Tokens: ludo.HomeTokens(), IsReady: true})
	}
	now := time.Now().UTC()
	g.Status = models.GameStatusInProgress
	g.StartedAt = &now
	return g
}

func (f *roomFixture) open(t *testing.T, g *models.Game) *Room {
	t.Helper()
	if err := f.store.Create(context.Background(), g, nil); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	room := newRoom(g.Clone(), f.deps)
	t.Cleanup(room.close)
	return room
}

func finishedToken(id, boardIndex int) models.Token {
	return models.Token{ID: id, Position: ludo.LaneEnd(boardIndex), InLane: true, Finished: true}
}

// assertInvariants checks the board invariants that must hold after every transition.
func assertInvariants(t *testing.T, g *models.Game) {
	t.Helper()
	for _, p := range g.Players {
		for _, tok := range p.Tokens {
			if !ludo.InDomain(tok.Position, p.BoardIndex) {
				t.Fatalf("player %s token %d at %d is outside its domain", p.UserID, tok.ID, tok.Position)
			}
			if tok.Finished != (tok.Position == ludo.LaneEnd(p.BoardIndex)) {
				t.Fatalf("player %s token %d finished flag disagrees with position %d", p.UserID, tok.ID, tok.Position)
			}
		}
	}
	if g.Status == models.GameStatusInProgress && (g.CurrentTurn < 0 || g.CurrentTurn >= len(g.Players)) {
		t.Fatalf("current turn %d out of range for %d players", g.CurrentTurn, len(g.Players))
	}
}
