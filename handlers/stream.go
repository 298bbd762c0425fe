// handlers/stream.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"ludo-arena/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const streamKeepAlive = 15 * time.Second

// StreamRoom streams a room's events over SSE. The first frame carries the
// connection id clients echo back in X-Connection-ID to receive their own errors.
func (h *RoomHandler) StreamRoom(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	snap, err := h.Gateway.Registry.Snapshot(c.UserContext(), roomID)
	if err != nil {
		return respondError(c, err)
	}

	sub := h.Gateway.Hub.Subscribe(roomID, middleware.UserID(c))
	hello, _ := json.Marshal(fiber.Map{"conn_id": sub.ID, "game": snap})

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx
	c.Set("X-Connection-ID", sub.ID)

	gw, logger := h.Gateway, h.logger
	done := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer gw.Disconnect(sub.ID)

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", hello)
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					// left the room
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					logger.Warn("[Stream] encode event", zap.String("event", string(ev.Type)), zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-ticker.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-done:
				return
			}
		}
	})

	return nil
}
