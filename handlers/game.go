// handlers/game.go
package handlers

import (
	"errors"
	"strconv"

	"ludo-arena/apperrors"
	"ludo-arena/middleware"
	"ludo-arena/models"
	"ludo-arena/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const openRoomsLimit = 20

// RoomHandler maps HTTP requests onto gateway intents and read models.
type RoomHandler struct {
	Gateway *services.Gateway
	Store   *services.GormGameStore
	Stats   *services.StatsService
	logger  *zap.Logger
}

func NewRoomHandler(gw *services.Gateway, store *services.GormGameStore, stats *services.StatsService, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{Gateway: gw, Store: store, Stats: stats, logger: logger}
}

func SetupRoomRoutes(app *fiber.App, h *RoomHandler, streamAuth fiber.Handler) {
	// event stream carries its own identity check
	app.Get("/rooms/:roomId/stream", streamAuth, h.StreamRoom)

	secured := app.Group("/", middleware.UserContextMiddleware(h.logger))

	secured.Get("/rooms", h.ListOpenRooms)
	secured.Post("/rooms", h.CreateRoom)
	secured.Get("/rooms/:roomId", h.GetRoom)
	secured.Post("/rooms/:roomId/join", h.intent(services.IntentJoin))
	secured.Post("/rooms/:roomId/ready", h.intent(services.IntentSetReady))
	secured.Post("/rooms/:roomId/move", h.Move)
	secured.Post("/rooms/:roomId/chat", h.Chat)
	secured.Post("/rooms/:roomId/leave", h.intent(services.IntentLeave))

	secured.Get("/users/me/games", h.History)
	secured.Get("/users/me/stats", h.PlayerStats)
}

type createRoomRequest struct {
	GameType models.GameType `json:"game_type"`
	EntryFee decimal.Decimal `json:"entry_fee"`
}

func (h *RoomHandler) CreateRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	reply, err := h.Gateway.Handle(c.UserContext(), services.Intent{
		Kind:     services.IntentCreate,
		UserID:   middleware.UserID(c),
		ConnID:   c.Get("X-Connection-ID"),
		GameType: req.GameType,
		EntryFee: req.EntryFee,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(reply.Game)
}

// intent serves the body-less room commands.
func (h *RoomHandler) intent(kind services.IntentKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reply, err := h.Gateway.Handle(c.UserContext(), services.Intent{
			Kind:   kind,
			UserID: middleware.UserID(c),
			RoomID: c.Params("roomId"),
			ConnID: c.Get("X-Connection-ID"),
		})
		if err != nil {
			return respondError(c, err)
		}
		if reply.Game == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(reply.Game)
	}
}

type moveRequest struct {
	TokenID *int `json:"token_id"`
}

func (h *RoomHandler) Move(c *fiber.Ctx) error {
	var req moveRequest
	if err := c.BodyParser(&req); err != nil || req.TokenID == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token_id is required"})
	}
	reply, err := h.Gateway.Handle(c.UserContext(), services.Intent{
		Kind:    services.IntentMove,
		UserID:  middleware.UserID(c),
		RoomID:  c.Params("roomId"),
		ConnID:  c.Get("X-Connection-ID"),
		TokenID: *req.TokenID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(reply.Move)
}

type chatRequest struct {
	Text string `json:"text"`
}

func (h *RoomHandler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	_, err := h.Gateway.Handle(c.UserContext(), services.Intent{
		Kind:   services.IntentChat,
		UserID: middleware.UserID(c),
		RoomID: c.Params("roomId"),
		ConnID: c.Get("X-Connection-ID"),
		Text:   req.Text,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *RoomHandler) GetRoom(c *fiber.Ctx) error {
	g, err := h.Gateway.Registry.Snapshot(c.UserContext(), c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(g)
}

func (h *RoomHandler) ListOpenRooms(c *fiber.Ctx) error {
	gameType := models.GameType(c.Query("game_type"))
	if gameType != "" && !gameType.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown game_type"})
	}
	games, err := h.Store.ListOpen(c.UserContext(), gameType, openRoomsLimit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(games)
}

func (h *RoomHandler) History(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}

	games, total, err := h.Store.History(c.UserContext(), middleware.UserID(c), page, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"games": games,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": (total + int64(limit) - 1) / int64(limit),
		},
	})
}

func (h *RoomHandler) PlayerStats(c *fiber.Ctx) error {
	st, err := h.Stats.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}

func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(appErr.Code.HTTPStatus()).JSON(fiber.Map{
		"error":  appErr.Message,
		"code":   appErr.Code,
		"reason": appErr.Reason,
	})
}
