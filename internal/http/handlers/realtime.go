package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mediaforge-backend/internal/http/response"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/events?video_id=
// Without video_id the stream carries every video's events.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	channel := realtime.ChannelAll
	if raw := strings.TrimSpace(c.Query("video_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_video_id", err)
			return
		}
		channel = id.String()
	}

	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, channel)
	h.log.Debug("SSE stream open", "client_id", client.ID, "channel", channel)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSE stream closed", "client_id", client.ID, "channel", channel)
}
