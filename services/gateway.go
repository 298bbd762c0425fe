// services/gateway.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ludo-arena/apperrors"
	"ludo-arena/ludo"
	"ludo-arena/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxChatLength = 500

type IntentKind string

const (
	IntentCreate   IntentKind = "create"
	IntentJoin     IntentKind = "join"
	IntentSetReady IntentKind = "setReady"
	IntentMove     IntentKind = "move"
	IntentChat     IntentKind = "chat"
	IntentLeave    IntentKind = "leave"
)

// Intent is one inbound client request. UserID comes from the identity layer
// and is trusted as-is. ConnID, when set, names the connection that should
// receive error events. It only counts when that connection belongs to UserID.
type Intent struct {
	Kind     IntentKind
	UserID   string
	RoomID   string
	ConnID   string
	GameType models.GameType
	EntryFee decimal.Decimal
	TokenID  int
	Text     string
}

// Reply is what a handled intent produced for the caller.
type Reply struct {
	Game *models.Game `json:"game,omitempty"`
	Move *MoveResult  `json:"move,omitempty"`
}

// Gateway turns intents into room commands and fans the results out through the hub.
// It knows nothing about the transport carrying them.
type Gateway struct {
	Hub      *Hub
	Registry *Registry
	logger   *zap.Logger
}

func NewGateway(hub *Hub, registry *Registry, logger *zap.Logger) *Gateway {
	return &Gateway{Hub: hub, Registry: registry, logger: logger}
}

func (gw *Gateway) Handle(ctx context.Context, in Intent) (*Reply, error) {
	reply, err := gw.dispatch(ctx, in)
	if err != nil {
		gw.reportError(in, err)
		return nil, err
	}
	return reply, nil
}

func (gw *Gateway) dispatch(ctx context.Context, in Intent) (*Reply, error) {
	if err := validateIntent(in); err != nil {
		return nil, err
	}

	switch in.Kind {
	case IntentCreate:
		return gw.create(ctx, in)

	case IntentJoin:
		room, err := gw.Registry.Get(ctx, in.RoomID)
		if err != nil {
			return nil, err
		}
		g, err := room.Join(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		return &Reply{Game: g}, nil

	case IntentSetReady:
		room, err := gw.Registry.Get(ctx, in.RoomID)
		if err != nil {
			return nil, err
		}
		g, err := room.SetReady(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		return &Reply{Game: g}, nil

	case IntentMove:
		room, err := gw.Registry.Get(ctx, in.RoomID)
		if err != nil {
			return nil, err
		}
		res, err := room.Move(ctx, in.UserID, in.TokenID)
		if err != nil {
			return nil, err
		}
		return &Reply{Game: res.Game, Move: res}, nil

	case IntentChat:
		if _, err := gw.Registry.Snapshot(ctx, in.RoomID); err != nil {
			return nil, err
		}
		gw.Hub.Publish(Event{Type: EventChat, RoomID: in.RoomID, Payload: map[string]any{
			"user_id": in.UserID, "text": in.Text,
		}})
		return &Reply{}, nil

	case IntentLeave:
		if in.ConnID != "" {
			if _, ok := gw.ownConnection(in); !ok {
				return nil, apperrors.Validation("connection belongs to another user")
			}
			gw.Hub.Unsubscribe(in.ConnID)
		}
		gw.Hub.Publish(Event{Type: EventPlayerLeft, RoomID: in.RoomID, Payload: map[string]any{"user_id": in.UserID}})
		return &Reply{}, nil
	}
	return nil, apperrors.Validation(fmt.Sprintf("unknown intent %q", in.Kind))
}

// create opens a room and seats its creator. A creator who cannot pay leaves
// behind a cancelled room, never an orphaned one.
func (gw *Gateway) create(ctx context.Context, in Intent) (*Reply, error) {
	room, err := gw.Registry.Create(ctx, in.GameType, in.EntryFee, in.UserID)
	if err != nil {
		return nil, err
	}
	g, err := room.Join(ctx, in.UserID)
	if err != nil {
		if _, cerr := room.Cancel(context.WithoutCancel(ctx), "creator could not join"); cerr != nil {
			gw.logger.Error("[Gateway] cancel room after failed creator join",
				zap.String("room_id", room.ID()), zap.Error(cerr))
		}
		return nil, err
	}
	return &Reply{Game: g}, nil
}

func validateIntent(in Intent) error {
	if strings.TrimSpace(in.UserID) == "" {
		return apperrors.Validation("missing user identity")
	}
	if in.Kind != IntentCreate && strings.TrimSpace(in.RoomID) == "" {
		return apperrors.Validation("room id is required")
	}
	switch in.Kind {
	case IntentMove:
		if in.TokenID < 0 || in.TokenID >= ludo.TokenCount {
			return apperrors.New(apperrors.CodeValidation, apperrors.ReasonInvalidToken,
				fmt.Sprintf("token id must be between 0 and %d", ludo.TokenCount-1))
		}
	case IntentChat:
		if strings.TrimSpace(in.Text) == "" {
			return apperrors.Validation("chat message is empty")
		}
		if utf8.RuneCountInString(in.Text) > maxChatLength {
			return apperrors.Validation(fmt.Sprintf("chat message exceeds %d characters", maxChatLength))
		}
	}
	return nil
}

func (gw *Gateway) reportError(in Intent, err error) {
	payload := ErrorPayload{Code: string(apperrors.CodeInternal), Message: "internal error"}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		payload = ErrorPayload{Code: string(appErr.Code), Reason: appErr.Reason, Message: appErr.Message}
	}
	gw.logger.Info("[Gateway] intent rejected",
		zap.String("intent", string(in.Kind)),
		zap.String("room_id", in.RoomID),
		zap.String("user_id", in.UserID),
		zap.String("code", payload.Code),
		zap.Error(err),
	)
	if sub, ok := gw.ownConnection(in); ok {
		gw.Hub.SendTo(sub.ID, Event{Type: EventError, RoomID: in.RoomID, Payload: payload})
	}
}

// ownConnection resolves in.ConnID to a live subscription held by in.UserID.
func (gw *Gateway) ownConnection(in Intent) (*Subscription, bool) {
	if in.ConnID == "" {
		return nil, false
	}
	sub, ok := gw.Hub.Connection(in.ConnID)
	if !ok || sub.UserID != in.UserID {
		return nil, false
	}
	return sub, true
}

// Disconnect drops a connection whose transport went away. The room is told the
// user is no longer watching, but seats and turns are untouched. A connection
// already removed by a leave intent produces nothing.
func (gw *Gateway) Disconnect(connID string) {
	sub := gw.Hub.Unsubscribe(connID)
	if sub == nil {
		return
	}
	gw.Hub.Publish(Event{Type: EventPlayerDisconnected, RoomID: sub.RoomID, Payload: map[string]any{
		"user_id": sub.UserID, "conn_id": sub.ID,
	}})
}
