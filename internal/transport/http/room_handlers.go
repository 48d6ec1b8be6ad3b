package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

// RoomHandlers serves read-only room queries over REST.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub: hub,
		log: logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RoomsResponse lists the rooms a mobile can access.
type RoomsResponse struct {
	Mobile string      `json:"mobile"`
	Rooms  []core.Room `json:"rooms"`
}

// ListRooms returns the rooms of a mobile.
// GET /api/rooms?mobile=
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	mobile := c.Query("mobile")
	if !proto.ValidMobile(mobile) {
		h.log.Debug().Str("mobile", mobile).Msg("rooms query with invalid mobile")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid mobile number", Code: proto.CodeInvalidMobile})
		return
	}

	rooms := h.hub.RoomsForMobile(mobile)
	h.log.Debug().Str("mobile", mobile).Int("room_count", len(rooms)).Msg("rooms listed")
	c.JSON(http.StatusOK, RoomsResponse{Mobile: mobile, Rooms: rooms})
}
